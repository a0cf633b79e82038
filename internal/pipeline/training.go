package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/dataset"
	"github.com/YuminosukeSato/hotelres/internal/config"
	"github.com/YuminosukeSato/hotelres/metrics"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
	"github.com/YuminosukeSato/hotelres/sklearn/lightgbm"
)

// TrainStage is the stage name of model training.
const TrainStage = "train"

// Split holds train and test matrices. Features is the column order of X.
type Split struct {
	XTrain, YTrain *mat.Dense
	XTest, YTest   *mat.Dense
	Features       []string
}

// Training fits the classifier with a randomized search, evaluates it on the
// test split and writes the serving bundle and the report.
type Training struct {
	TrainPath         string
	TestPath          string
	PreprocessingPath string
	ModelPath         string
	ReportDir         string
	TargetColumn      string
	PositiveLabel     string
	Search            config.ModelTrainingConfig

	logger log.Logger
}

// NewTraining builds a Training from the configuration.
func NewTraining(cfg *config.Config) *Training {
	p := cfg.Paths
	return &Training{
		TrainPath:         p.Resolve(p.ProcessedTrainFile),
		TestPath:          p.Resolve(p.ProcessedTestFile),
		PreprocessingPath: p.Resolve(p.PreprocessingFile),
		ModelPath:         p.Resolve(p.ModelOutput),
		ReportDir:         p.Resolve(p.ReportDir),
		TargetColumn:      cfg.DataProcessing.TargetColumn,
		PositiveLabel:     cfg.DataProcessing.PositiveLabel,
		Search:            cfg.ModelTraining,
		logger:            log.GetLoggerWithName("pipeline.train").With(log.StageKey, TrainStage),
	}
}

// LoadAndSplitData reads the processed CSVs and separates features from the
// target. Unreadable or empty data fails with "Failed to load data".
func (t *Training) LoadAndSplitData() (*Split, error) {
	fail := func(err error) (*Split, error) {
		t.logger.Error("Error while loading data", log.ErrAttrKey, err)
		return nil, errors.NewStageError(TrainStage, "Failed to load data", err)
	}

	train, err := dataset.ReadCSV(t.TrainPath)
	if err != nil {
		return fail(err)
	}
	test, err := dataset.ReadCSV(t.TestPath)
	if err != nil {
		return fail(err)
	}

	XTrain, yTrain, features, err := dataset.ToXY(train, t.TargetColumn)
	if err != nil {
		return fail(err)
	}
	test, err = test.Select(append(append([]string(nil), features...), t.TargetColumn)...)
	if err != nil {
		return fail(err)
	}
	XTest, yTest, _, err := dataset.ToXY(test, t.TargetColumn)
	if err != nil {
		return fail(err)
	}

	t.logger.Info("Data loaded",
		"train_rows", train.Len(), "test_rows", test.Len(), log.FeaturesKey, len(features))
	return &Split{XTrain: XTrain, YTrain: yTrain, XTest: XTest, YTest: yTest, Features: features}, nil
}

// Distributions returns the search space configured in model_training.
func (t *Training) Distributions() map[string]lightgbm.Distribution {
	s := t.Search
	boosting := make([]interface{}, len(s.BoostingType))
	for i, b := range s.BoostingType {
		boosting[i] = b
	}
	return map[string]lightgbm.Distribution{
		"n_estimators":  lightgbm.IntRange{Low: s.NEstimators.Min, High: s.NEstimators.Max},
		"max_depth":     lightgbm.IntRange{Low: s.MaxDepth.Min, High: s.MaxDepth.Max},
		"learning_rate": lightgbm.FloatRange{Low: s.LearningRate.Min, High: s.LearningRate.Max},
		"num_leaves":    lightgbm.IntRange{Low: s.NumLeaves.Min, High: s.NumLeaves.Max},
		"boosting_type": lightgbm.Choice{Values: boosting},
	}
}

// TrainLGBM runs the randomized search and returns it; BestEstimator is the
// refitted best classifier.
func (t *Training) TrainLGBM(ctx context.Context, X, y mat.Matrix, features []string) (*lightgbm.RandomizedSearchCV, error) {
	base := lightgbm.NewLGBMClassifier().
		WithRandomState(t.Search.RandomState).
		WithFeatureNames(features)

	search := lightgbm.NewRandomizedSearchCV(base, t.Distributions())
	search.NIter = t.Search.NIter
	search.CV = t.Search.CV
	search.Scoring = t.Search.Scoring
	search.RandomState = t.Search.RandomState
	search.NJobs = t.Search.Parallelism

	t.logger.Info("Starting hyperparameter search",
		"n_iter", search.NIter, "cv", search.CV, "scoring", search.Scoring,
		log.RandomSeedKey, search.RandomState)
	if err := search.Fit(ctx, X, y); err != nil {
		return nil, err
	}
	t.logger.Info("Best parameters found",
		log.HyperParamsKey, search.BestParams, "best_score", search.BestScore)
	return search, nil
}

// EvaluateModel scores clf on X/y and returns accuracy, precision, recall,
// f1 and roc_auc.
func (t *Training) EvaluateModel(clf *lightgbm.LGBMClassifier, X, y mat.Matrix) (map[string]float64, error) {
	pred, err := clf.Predict(X)
	if err != nil {
		return nil, err
	}
	proba, err := clf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	yProb := mat.NewVecDense(rows, mat.Col(nil, 1, proba))

	report, err := metrics.ClassificationReport(metrics.ColumnVector(y), metrics.ColumnVector(pred), yProb)
	if err != nil {
		return nil, err
	}
	t.logger.Info("Model evaluation",
		log.AccuracyKey, report[metrics.KeyAccuracy],
		log.PrecisionKey, report[metrics.KeyPrecision],
		log.RecallKey, report[metrics.KeyRecall],
		log.F1Key, report[metrics.KeyF1],
		log.AUCKey, report[metrics.KeyROCAUC])
	return report, nil
}

// SaveModel writes the bundle to ModelPath.
func (t *Training) SaveModel(b *Bundle) error {
	if err := b.Save(t.ModelPath); err != nil {
		return err
	}
	t.logger.Info("Model saved", log.PathKey, t.ModelPath, log.RunIDKey, b.RunID)
	return nil
}

// Run loads the data, trains, evaluates, saves the bundle and writes the
// report. Every failure is returned as a StageError.
func (t *Training) Run(ctx context.Context) (bundle *Bundle, err error) {
	defer errors.Recover(&err, "Training.Run")
	start := time.Now()
	runID := uuid.NewString()
	t.logger.Info("Starting model training pipeline", log.RunIDKey, runID)

	split, err := t.LoadAndSplitData()
	if err != nil {
		return nil, err
	}

	pre, err := LoadPreprocessing(t.PreprocessingPath)
	if err != nil {
		// processed CSVs produced elsewhere carry no preprocessing record
		t.logger.Warn("Preprocessing artifact not found, serving will use raw features",
			log.PathKey, t.PreprocessingPath, log.ErrAttrKey, err)
		pre = &Preprocessing{TargetColumn: t.TargetColumn, PositiveLabel: t.PositiveLabel}
	}

	search, err := t.TrainLGBM(ctx, split.XTrain, split.YTrain, split.Features)
	if err != nil {
		t.logger.Error("Error while training model", log.ErrAttrKey, err)
		return nil, errors.NewStageError(TrainStage, "Failed to train model", err)
	}
	clf := search.BestEstimator

	scores, err := t.EvaluateModel(clf, split.XTest, split.YTest)
	if err != nil {
		t.logger.Error("Error while evaluating model", log.ErrAttrKey, err)
		return nil, errors.NewStageError(TrainStage, "Failed to evaluate model", err)
	}

	bundle = &Bundle{
		Classifier:    clf,
		FeatureNames:  split.Features,
		LogColumns:    pre.LogColumns,
		Encoders:      pre.Encoders,
		TargetColumn:  t.TargetColumn,
		PositiveLabel: t.PositiveLabel,
		Metrics:       scores,
		BestParams:    search.BestParams,
		RunID:         runID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := t.SaveModel(bundle); err != nil {
		t.logger.Error("Error while saving model", log.ErrAttrKey, err)
		return nil, errors.NewStageError(TrainStage, "Failed to save model", err)
	}

	report := NewReport(bundle, search, time.Since(start))
	if err := report.Write(t.ReportDir, clf, split); err != nil {
		t.logger.Error("Error while writing report", log.ErrAttrKey, err)
		return nil, errors.NewStageError(TrainStage, "Failed to write report", err)
	}

	t.logger.Info("Model training completed",
		log.RunIDKey, runID, log.DurationMsKey, time.Since(start).Milliseconds())
	return bundle, nil
}
