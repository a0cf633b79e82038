package lightgbm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/metrics"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

// EarlyStopping handles early stopping logic
type EarlyStopping struct {
	Rounds          int     // Number of rounds without improvement to stop
	BestScore       float64 // Best validation score so far
	BestIteration   int     // Iteration with best score, -1 before the first update
	RoundsNoImprove int     // Current rounds without improvement
	Metric          string  // Metric to use for early stopping
	Minimize        bool    // Whether to minimize the metric
	Enabled         bool    // Whether early stopping is enabled
}

// NewEarlyStopping creates a new early stopping handler. rounds <= 0 disables it.
func NewEarlyStopping(rounds int, metric string) *EarlyStopping {
	if rounds <= 0 {
		return &EarlyStopping{Enabled: false, BestIteration: -1, Metric: metric}
	}

	minimize := !higherIsBetter(metric)
	bestScore := math.Inf(1)
	if !minimize {
		bestScore = math.Inf(-1)
	}

	return &EarlyStopping{
		Rounds:        rounds,
		BestScore:     bestScore,
		BestIteration: -1,
		Metric:        metric,
		Minimize:      minimize,
		Enabled:       true,
	}
}

// Update records the score of an iteration and reports whether to stop.
func (es *EarlyStopping) Update(iteration int, score float64) bool {
	if !es.Enabled {
		return false
	}

	var improved bool
	if es.Minimize {
		improved = score < es.BestScore
	} else {
		improved = score > es.BestScore
	}

	if improved {
		es.BestScore = score
		es.BestIteration = iteration
		es.RoundsNoImprove = 0
	} else {
		es.RoundsNoImprove++
	}

	return es.RoundsNoImprove >= es.Rounds
}

// ShouldStop returns whether training should stop
func (es *EarlyStopping) ShouldStop() bool {
	if !es.Enabled {
		return false
	}
	return es.RoundsNoImprove >= es.Rounds
}

// GetBestIteration returns the best iteration
func (es *EarlyStopping) GetBestIteration() int {
	if !es.Enabled {
		return -1
	}
	return es.BestIteration
}

// ValidationData holds validation dataset
type ValidationData struct {
	X mat.Matrix
	Y mat.Matrix
}

func higherIsBetter(metric string) bool {
	switch metric {
	case "auc", "accuracy", "precision", "recall", "f1":
		return true
	}
	return false
}

func defaultMetric(objective ObjectiveType) string {
	if objective == BinaryLogistic {
		return "binary_logloss"
	}
	return "l2"
}

// validationState caches summed tree outputs for the validation rows so each
// iteration only evaluates the newest tree.
type validationState struct {
	X       *mat.Dense
	y       []float64
	treeSum []float64
}

func newValidationState(valData *ValidationData, nFeatures int) (*validationState, error) {
	if valData.X == nil || valData.Y == nil {
		return nil, errors.NewValueError("Trainer.FitWithValidation", "validation X and Y are required")
	}
	rows, cols := valData.X.Dims()
	yRows, _ := valData.Y.Dims()
	if rows == 0 {
		return nil, errors.NewValueError("Trainer.FitWithValidation", "empty validation data")
	}
	if cols != nFeatures {
		return nil, errors.NewDimensionError("Trainer.FitWithValidation", nFeatures, cols, 1)
	}
	if rows != yRows {
		return nil, errors.NewDimensionError("Trainer.FitWithValidation", rows, yRows, 0)
	}
	return &validationState{
		X:       mat.DenseCopyOf(valData.X),
		y:       mat.Col(nil, 0, valData.Y),
		treeSum: make([]float64, rows),
	}, nil
}

func (v *validationState) add(tree *Tree) {
	for i := range v.treeSum {
		v.treeSum[i] += tree.Predict(v.X.RawRowView(i))
	}
}

// evaluate computes metric over the validation rows; raw maps a row to its
// untransformed score.
func (v *validationState) evaluate(metric string, objective ObjectiveFunction, raw func(i int) float64) (float64, error) {
	n := len(v.y)
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = raw(i)
	}
	yTrue := mat.NewVecDense(n, v.y)

	switch metric {
	case "binary_logloss":
		prob := make([]float64, n)
		for i, s := range scores {
			prob[i] = sigmoid(s)
		}
		return metrics.BinaryLogLoss(yTrue, mat.NewVecDense(n, prob))
	case "auc":
		return metrics.AUC(yTrue, mat.NewVecDense(n, scores))
	case "binary_error":
		pred := make([]float64, n)
		for i, s := range scores {
			if sigmoid(s) > 0.5 {
				pred[i] = 1
			}
		}
		return metrics.ClassificationError(yTrue, mat.NewVecDense(n, pred))
	case "l2":
		sum := 0.0
		for i, s := range scores {
			d := s - v.y[i]
			sum += d * d
		}
		return sum / float64(n), nil
	case "", "loss":
		sum := 0.0
		for i, s := range scores {
			sum += objective.CalculateLoss(s, v.y[i])
		}
		return sum / float64(n), nil
	default:
		return 0, errors.NewValueError("Trainer.FitWithValidation", "unknown metric: "+metric)
	}
}
