package lightgbm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/core/model"
	"github.com/YuminosukeSato/hotelres/metrics"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// LGBMClassifier implements a binary LightGBM classifier with a scikit-learn
// style API. Labels must be 0 or 1; PredictProba column 1 is P(y=1).
//
// All fields are exported so the fitted classifier can be gob encoded.
type LGBMClassifier struct {
	State *model.StateManager
	Model *Model

	// Hyperparameters, named as in the LightGBM scikit-learn API
	NumLeaves           int     // Number of leaves in one tree
	MaxDepth            int     // Maximum tree depth, <= 0 for no limit
	LearningRate        float64 // Boosting learning rate
	NumIterations       int     // Number of boosting iterations (n_estimators)
	MinChildSamples     int     // Minimum number of data in one leaf
	MinChildWeight      float64 // Minimum sum of hessians in one leaf
	Subsample           float64 // Subsample ratio of training data
	SubsampleFreq       int     // Frequency of subsample
	ColsampleBytree     float64 // Subsample ratio of columns when constructing tree
	RegLambda           float64 // L2 regularization
	MinSplitGain        float64 // Minimum gain to make a split
	BoostingType        string  // gbdt, goss or rf
	TopRate             float64 // goss
	OtherRate           float64 // goss
	RandomState         int     // Random seed
	EarlyStoppingRounds int     // Early stopping rounds, used by FitWithValidation
	EvalMetric          string  // Validation metric for early stopping
	Verbosity           int     // Verbosity level

	FeatureNames []string
}

var (
	_ model.Classifier      = (*LGBMClassifier)(nil)
	_ model.ParameterGetter = (*LGBMClassifier)(nil)
	_ model.ParameterSetter = (*LGBMClassifier)(nil)
)

// NewLGBMClassifier creates a new LightGBM classifier with default parameters
func NewLGBMClassifier() *LGBMClassifier {
	return &LGBMClassifier{
		State:           model.NewStateManager(),
		NumLeaves:       31,
		MaxDepth:        -1,
		LearningRate:    0.1,
		NumIterations:   100,
		MinChildSamples: 20,
		MinChildWeight:  1e-3,
		Subsample:       1.0,
		ColsampleBytree: 1.0,
		BoostingType:    string(GBDT),
		TopRate:         0.2,
		OtherRate:       0.1,
		RandomState:     42,
		Verbosity:       -1,
	}
}

// WithNumLeaves sets the number of leaves
func (lgb *LGBMClassifier) WithNumLeaves(n int) *LGBMClassifier {
	lgb.NumLeaves = n
	return lgb
}

// WithMaxDepth sets the maximum depth
func (lgb *LGBMClassifier) WithMaxDepth(d int) *LGBMClassifier {
	lgb.MaxDepth = d
	return lgb
}

// WithLearningRate sets the learning rate
func (lgb *LGBMClassifier) WithLearningRate(lr float64) *LGBMClassifier {
	lgb.LearningRate = lr
	return lgb
}

// WithNumIterations sets the number of iterations
func (lgb *LGBMClassifier) WithNumIterations(n int) *LGBMClassifier {
	lgb.NumIterations = n
	return lgb
}

// WithMinChildSamples sets the minimum number of samples per leaf
func (lgb *LGBMClassifier) WithMinChildSamples(n int) *LGBMClassifier {
	lgb.MinChildSamples = n
	return lgb
}

// WithBoostingType sets the boosting type
func (lgb *LGBMClassifier) WithBoostingType(b string) *LGBMClassifier {
	lgb.BoostingType = b
	return lgb
}

// WithSubsample sets bagging fraction and frequency
func (lgb *LGBMClassifier) WithSubsample(fraction float64, freq int) *LGBMClassifier {
	lgb.Subsample = fraction
	lgb.SubsampleFreq = freq
	return lgb
}

// WithColsampleBytree sets the feature fraction
func (lgb *LGBMClassifier) WithColsampleBytree(f float64) *LGBMClassifier {
	lgb.ColsampleBytree = f
	return lgb
}

// WithRandomState sets the random seed
func (lgb *LGBMClassifier) WithRandomState(seed int) *LGBMClassifier {
	lgb.RandomState = seed
	return lgb
}

// WithEarlyStopping sets early stopping rounds and metric
func (lgb *LGBMClassifier) WithEarlyStopping(rounds int, metric string) *LGBMClassifier {
	lgb.EarlyStoppingRounds = rounds
	lgb.EvalMetric = metric
	return lgb
}

// WithFeatureNames records the column names of X
func (lgb *LGBMClassifier) WithFeatureNames(names []string) *LGBMClassifier {
	lgb.FeatureNames = append([]string(nil), names...)
	return lgb
}

func (lgb *LGBMClassifier) trainingParams() TrainingParams {
	return TrainingParams{
		NumIterations:       lgb.NumIterations,
		LearningRate:        lgb.LearningRate,
		NumLeaves:           lgb.NumLeaves,
		MaxDepth:            lgb.MaxDepth,
		MinDataInLeaf:       lgb.MinChildSamples,
		MinSumHessianInLeaf: lgb.MinChildWeight,
		Lambda:              lgb.RegLambda,
		MinGainToSplit:      lgb.MinSplitGain,
		BaggingFraction:     lgb.Subsample,
		BaggingFreq:         lgb.SubsampleFreq,
		FeatureFraction:     lgb.ColsampleBytree,
		TopRate:             lgb.TopRate,
		OtherRate:           lgb.OtherRate,
		MaxBin:              255,
		Objective:           string(BinaryLogistic),
		BoostingType:        lgb.BoostingType,
		Seed:                lgb.RandomState,
		Verbosity:           lgb.Verbosity,
		EarlyStopping:       lgb.EarlyStoppingRounds,
		Metric:              lgb.EvalMetric,
	}
}

// Fit trains the classifier on X (n×d) and binary labels y (n×1)
func (lgb *LGBMClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LGBMClassifier.Fit")
	return lgb.fit(X, y, nil)
}

// FitWithValidation trains with a held-out set for early stopping
func (lgb *LGBMClassifier) FitWithValidation(X, y, XVal, yVal mat.Matrix) (err error) {
	defer errors.Recover(&err, "LGBMClassifier.FitWithValidation")
	if err := checkBinaryTarget("LGBMClassifier.FitWithValidation", yVal); err != nil {
		return err
	}
	return lgb.fit(X, y, &ValidationData{X: XVal, Y: yVal})
}

func (lgb *LGBMClassifier) fit(X, y mat.Matrix, val *ValidationData) error {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()

	if rows == 0 || cols == 0 {
		return errors.Wrap(errors.ErrEmptyData, "LGBMClassifier.Fit")
	}
	if rows != yRows {
		return errors.NewDimensionError("LGBMClassifier.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LGBMClassifier.Fit", 1, yCols, 1)
	}
	if len(lgb.FeatureNames) > 0 && len(lgb.FeatureNames) != cols {
		return errors.NewDimensionError("LGBMClassifier.Fit", len(lgb.FeatureNames), cols, 1)
	}
	if err := checkBinaryTarget("LGBMClassifier.Fit", y); err != nil {
		return err
	}

	logger := log.GetLoggerWithName("lightgbm.classifier")
	if lgb.Verbosity > 0 {
		logger.Info("Training LGBMClassifier",
			log.OperationKey, log.OperationFit,
			log.SamplesKey, rows,
			log.FeaturesKey, cols,
			"boosting_type", lgb.BoostingType)
	}

	trainer := NewTrainer(lgb.trainingParams())
	if err := trainer.FitWithValidation(X, y, val); err != nil {
		return errors.Wrap(err, "training failed")
	}

	lgb.Model = trainer.GetModel()
	lgb.Model.FeatureNames = lgb.FeatureNames
	if lgb.State == nil {
		lgb.State = model.NewStateManager()
	}
	lgb.State.SetDimensions(cols, rows)
	lgb.State.SetFitted()
	return nil
}

func checkBinaryTarget(op string, y mat.Matrix) error {
	rows, _ := y.Dims()
	for i := 0; i < rows; i++ {
		if v := y.At(i, 0); v != 0 && v != 1 {
			return errors.NewValidationError("y", op+": labels must be 0 or 1", v)
		}
	}
	return nil
}

func (lgb *LGBMClassifier) checkPredict(method string, X mat.Matrix) error {
	if lgb.State == nil || lgb.Model == nil {
		return errors.NewNotFittedError("LGBMClassifier", method)
	}
	if err := lgb.State.RequireFitted("LGBMClassifier", method); err != nil {
		return err
	}
	_, cols := X.Dims()
	return lgb.State.RequireFeatures("LGBMClassifier."+method, cols)
}

// PredictProba returns class probabilities (n×2): column 0 is P(y=0), column 1 is P(y=1)
func (lgb *LGBMClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lgb.checkPredict("PredictProba", X); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	out := mat.NewDense(rows, 2, nil)
	features := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(features, i, X)
		p := lgb.Model.PredictSingle(features)
		if math.IsNaN(p) {
			return nil, errors.NewNumericalInstabilityError("PredictProba", []float64{p}, i)
		}
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

// Predict returns class labels (n×1): 1 when P(y=1) > 0.5
func (lgb *LGBMClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := lgb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		if proba.At(i, 1) > 0.5 {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lgb *LGBMClassifier) Score(X, y mat.Matrix) (float64, error) {
	return lgb.ScoreWith(metrics.KeyAccuracy, X, y)
}

// ScoreWith evaluates the classifier with a named scorer:
// accuracy, precision, recall, f1 or roc_auc.
func (lgb *LGBMClassifier) ScoreWith(scoring string, X, y mat.Matrix) (float64, error) {
	proba, err := lgb.PredictProba(X)
	if err != nil {
		return 0, err
	}
	rows, _ := proba.Dims()
	yTrue := metrics.ColumnVector(y)
	if yTrue.Len() != rows {
		return 0, errors.NewDimensionError("LGBMClassifier.ScoreWith", rows, yTrue.Len(), 0)
	}

	pos := mat.NewVecDense(rows, mat.Col(nil, 1, proba))
	if scoring == metrics.KeyROCAUC {
		return metrics.AUC(yTrue, pos)
	}

	pred := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		if pos.AtVec(i) > 0.5 {
			pred.SetVec(i, 1)
		}
	}
	switch scoring {
	case metrics.KeyAccuracy, "":
		return metrics.Accuracy(yTrue, pred)
	case metrics.KeyPrecision:
		return metrics.Precision(yTrue, pred)
	case metrics.KeyRecall:
		return metrics.Recall(yTrue, pred)
	case metrics.KeyF1:
		return metrics.F1Score(yTrue, pred)
	default:
		return 0, errors.NewValidationError("scoring", "must be accuracy, precision, recall, f1 or roc_auc", scoring)
	}
}

// FeatureImportance returns normalized "gain" or "split" importance per feature
func (lgb *LGBMClassifier) FeatureImportance(importanceType string) ([]float64, error) {
	if lgb.State == nil || lgb.Model == nil || !lgb.State.IsFitted() {
		return nil, errors.NewNotFittedError("LGBMClassifier", "FeatureImportance")
	}
	if importanceType != "gain" && importanceType != "split" {
		return nil, errors.NewValidationError("importance_type", "must be gain or split", importanceType)
	}
	return lgb.Model.GetFeatureImportance(importanceType), nil
}

// GetParams returns the parameters of the classifier
func (lgb *LGBMClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"num_leaves":            lgb.NumLeaves,
		"max_depth":             lgb.MaxDepth,
		"learning_rate":         lgb.LearningRate,
		"n_estimators":          lgb.NumIterations,
		"min_child_samples":     lgb.MinChildSamples,
		"min_child_weight":      lgb.MinChildWeight,
		"subsample":             lgb.Subsample,
		"subsample_freq":        lgb.SubsampleFreq,
		"colsample_bytree":      lgb.ColsampleBytree,
		"reg_lambda":            lgb.RegLambda,
		"min_split_gain":        lgb.MinSplitGain,
		"boosting_type":         lgb.BoostingType,
		"top_rate":              lgb.TopRate,
		"other_rate":            lgb.OtherRate,
		"random_state":          lgb.RandomState,
		"early_stopping_rounds": lgb.EarlyStoppingRounds,
		"eval_metric":           lgb.EvalMetric,
		"verbosity":             lgb.Verbosity,
	}
}

// SetParams sets the parameters of the classifier. Numeric values are
// converted between int and float64; unknown keys are rejected.
func (lgb *LGBMClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "num_leaves":
			lgb.NumLeaves, err = toInt(key, value)
		case "max_depth":
			lgb.MaxDepth, err = toInt(key, value)
		case "learning_rate":
			lgb.LearningRate, err = toFloat(key, value)
		case "n_estimators", "num_iterations":
			lgb.NumIterations, err = toInt(key, value)
		case "min_child_samples":
			lgb.MinChildSamples, err = toInt(key, value)
		case "min_child_weight":
			lgb.MinChildWeight, err = toFloat(key, value)
		case "subsample":
			lgb.Subsample, err = toFloat(key, value)
		case "subsample_freq":
			lgb.SubsampleFreq, err = toInt(key, value)
		case "colsample_bytree":
			lgb.ColsampleBytree, err = toFloat(key, value)
		case "reg_lambda":
			lgb.RegLambda, err = toFloat(key, value)
		case "min_split_gain":
			lgb.MinSplitGain, err = toFloat(key, value)
		case "boosting_type":
			var b BoostingType
			s, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			if b, err = ParseBoostingType(s); err == nil {
				lgb.BoostingType = string(b)
			}
		case "top_rate":
			lgb.TopRate, err = toFloat(key, value)
		case "other_rate":
			lgb.OtherRate, err = toFloat(key, value)
		case "random_state":
			lgb.RandomState, err = toInt(key, value)
		case "early_stopping_rounds":
			lgb.EarlyStoppingRounds, err = toInt(key, value)
		case "eval_metric":
			s, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			lgb.EvalMetric = s
		case "verbosity":
			lgb.Verbosity, err = toInt(key, value)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func toInt(key string, value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, errors.NewValidationError(key, "must be an integer", v)
		}
		return int(v), nil
	default:
		return 0, errors.NewValidationError(key, fmt.Sprintf("unsupported type %T", value), value)
	}
}

func toFloat(key string, value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, errors.NewValidationError(key, fmt.Sprintf("unsupported type %T", value), value)
	}
}

// Clone returns an unfitted classifier with the same parameters
func (lgb *LGBMClassifier) Clone() *LGBMClassifier {
	c := *lgb
	c.State = model.NewStateManager()
	c.Model = nil
	c.FeatureNames = append([]string(nil), lgb.FeatureNames...)
	return &c
}
