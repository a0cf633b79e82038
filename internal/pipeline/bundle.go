package pipeline

import (
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/core/model"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/sklearn/lightgbm"
)

// Bundle is the serving artifact: a fitted classifier plus everything needed
// to turn a booking into its feature vector.
type Bundle struct {
	Classifier *lightgbm.LGBMClassifier

	// FeatureNames is the classifier's column order.
	FeatureNames []string

	// LogColumns are features that receive log1p before prediction.
	LogColumns []string

	// Encoders holds the classes of categorical features; a label's code is
	// its index.
	Encoders map[string][]string

	TargetColumn  string
	PositiveLabel string

	Metrics    map[string]float64
	BestParams map[string]interface{}
	RunID      string
	CreatedAt  time.Time
}

// Validate checks that the bundle can serve predictions.
func (b *Bundle) Validate() error {
	if b.Classifier == nil || b.Classifier.State == nil || !b.Classifier.State.IsFitted() {
		return errors.NewModelError("Bundle.Validate", "classifier is not fitted", errors.ErrModelNotLoaded)
	}
	if len(b.FeatureNames) == 0 {
		return errors.NewValueError("Bundle.Validate", "bundle has no feature names")
	}
	if n, _ := b.Classifier.State.GetDimensions(); n != len(b.FeatureNames) {
		return errors.NewDimensionError("Bundle.Validate", n, len(b.FeatureNames), 1)
	}
	return nil
}

// Save writes the bundle atomically.
func (b *Bundle) Save(path string) error {
	return model.SaveModel(b, path)
}

// LoadBundle reads and validates a bundle.
func LoadBundle(path string) (*Bundle, error) {
	var b Bundle
	err := errors.SafeExecute("LoadBundle", func() error {
		if err := model.LoadModel(&b, path); err != nil {
			return err
		}
		return b.Validate()
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Vector builds the feature vector for one booking. values is keyed by
// dataset column name and holds raw (unlogged) numbers and category codes.
func (b *Bundle) Vector(values map[string]float64) ([]float64, error) {
	out := make([]float64, len(b.FeatureNames))
	for j, name := range b.FeatureNames {
		v, ok := values[name]
		if !ok {
			return nil, errors.NewValidationError(name, "feature is required by the model", nil)
		}
		if classes, isCat := b.Encoders[name]; isCat {
			if v != math.Trunc(v) || v < 0 || int(v) >= len(classes) {
				return nil, errors.NewValidationError(name, "unknown category code", v)
			}
		}
		if slices.Contains(b.LogColumns, name) {
			if v <= -1 {
				return nil, errors.NewValidationError(name, "log1p needs values greater than -1", v)
			}
			v = math.Log1p(v)
		}
		out[j] = v
	}
	return out, nil
}

// Predict returns the class (1 means PositiveLabel) and its probability.
func (b *Bundle) Predict(values map[string]float64) (label int, probability float64, err error) {
	defer errors.Recover(&err, "Bundle.Predict")
	vec, err := b.Vector(values)
	if err != nil {
		return 0, 0, err
	}
	proba, err := b.Classifier.PredictProba(mat.NewDense(1, len(vec), vec))
	if err != nil {
		return 0, 0, err
	}
	probability = proba.At(0, 1)
	if probability > 0.5 {
		label = 1
	}
	return label, probability, nil
}
