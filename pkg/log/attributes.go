// Standard attribute keys for hotelres logs.
//
// The keys follow a hierarchical naming convention ("model.name",
// "data.samples") so that pipeline and serving logs can be filtered the same
// way.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of machine learning model.
	// Examples: "LGBMClassifier", "SkewTransformer"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which component is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"

	// StageKey names the offline pipeline stage ("ingest", "process", "train").
	StageKey = "pipeline.stage"

	// RunIDKey identifies one training run end to end.
	RunIDKey = "pipeline.run_id"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of rows in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of feature columns.
	FeaturesKey = "data.features"

	// ColumnKey names a single dataset column.
	ColumnKey = "data.column"

	// PathKey is a local file path being read or written.
	PathKey = "data.path"

	// BucketKey is the cloud storage bucket a file is fetched from.
	BucketKey = "data.bucket"

	// ObjectKey is the object name inside BucketKey.
	ObjectKey = "data.object"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records model accuracy for evaluation operations.
	AccuracyKey = "metrics.accuracy"

	// PrecisionKey records precision of the positive class.
	PrecisionKey = "metrics.precision"

	// RecallKey records recall of the positive class.
	RecallKey = "metrics.recall"

	// F1Key records the F1 score of the positive class.
	F1Key = "metrics.f1"

	// AUCKey records the area under the ROC curve.
	AUCKey = "metrics.roc_auc"

	// LossKey records loss value during training or evaluation.
	LossKey = "metrics.loss"

	// IterationKey records the current boosting iteration.
	IterationKey = "training.iteration"
)

// Prediction and Serving Context
const (
	// PredictionKey is the predicted class.
	PredictionKey = "preds.class"

	// ConfidenceKey records the predicted probability of the positive class.
	ConfidenceKey = "preds.confidence"

	// RequestIDKey correlates log lines of one HTTP request.
	RequestIDKey = "http.request_id"

	// SourceKey records where a prediction request came from ("form", "api").
	SourceKey = "preds.source"
)

// Error and Warning Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"

	// SuggestionKey provides helpful suggestions for resolving issues.
	SuggestionKey = "error.suggestion"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// LearningRateKey records the learning rate of the booster.
	LearningRateKey = "hyperparams.learning_rate"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
)
