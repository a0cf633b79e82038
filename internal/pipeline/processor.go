// Package pipeline implements the offline stages that turn the raw bookings
// CSV into a serving bundle: preprocessing, model training and reporting.
package pipeline

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/core/model"
	"github.com/YuminosukeSato/hotelres/dataset"
	"github.com/YuminosukeSato/hotelres/internal/config"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
	"github.com/YuminosukeSato/hotelres/preprocessing"
)

// ProcessStage is the stage name of the preprocessing step.
const ProcessStage = "process"

// Preprocessing records what the processor learned on the training split.
// The serving bundle copies it so requests are transformed the same way.
type Preprocessing struct {
	TargetColumn  string
	PositiveLabel string

	// Encoders maps each categorical column to its classes; the code of a
	// label is its index.
	Encoders map[string][]string

	// LogColumns received log1p because their skewness exceeded the threshold.
	LogColumns []string
	Skewness   map[string]float64

	// SelectedFeatures is the model's feature order.
	SelectedFeatures  []string
	FeatureImportance map[string]float64
}

// Processor cleans, encodes, balances and selects features.
type Processor struct {
	TrainPath          string
	TestPath           string
	ProcessedTrainPath string
	ProcessedTestPath  string
	PreprocessingPath  string
	Config             config.DataProcessingConfig

	logger log.Logger
}

// NewProcessor builds a Processor from the data_processing and paths sections.
func NewProcessor(cfg *config.Config) *Processor {
	p := cfg.Paths
	return &Processor{
		TrainPath:          p.Resolve(p.TrainFile),
		TestPath:           p.Resolve(p.TestFile),
		ProcessedTrainPath: p.Resolve(p.ProcessedTrainFile),
		ProcessedTestPath:  p.Resolve(p.ProcessedTestFile),
		PreprocessingPath:  p.Resolve(p.PreprocessingFile),
		Config:             cfg.DataProcessing,
		logger:             log.GetLoggerWithName("pipeline.process").With(log.StageKey, ProcessStage),
	}
}

func (p *Processor) fail(message string, err error) error {
	p.logger.Error(message, log.ErrAttrKey, err)
	return errors.NewStageError(ProcessStage, message, err)
}

// Process runs the whole preprocessing stage and writes processed train/test
// CSVs plus the Preprocessing artifact.
func (p *Processor) Process(ctx context.Context) (pre *Preprocessing, err error) {
	defer errors.Recover(&err, "Processor.Process")
	start := time.Now()

	train, err := dataset.ReadCSV(p.TrainPath)
	if err != nil {
		return nil, p.fail("Failed to load data", err)
	}
	test, err := dataset.ReadCSV(p.TestPath)
	if err != nil {
		return nil, p.fail("Failed to load data", err)
	}
	p.logger.Info("Loaded data", "train_rows", train.Len(), "test_rows", test.Len())

	pre = &Preprocessing{
		TargetColumn:  p.Config.TargetColumn,
		PositiveLabel: p.Config.PositiveLabel,
	}

	train, test, err = p.clean(train, test)
	if err != nil {
		return nil, p.fail("Error during preprocess step", err)
	}
	if train, test, err = p.encode(pre, train, test); err != nil {
		return nil, p.fail("Error during preprocess step", err)
	}
	if err := p.reduceSkew(pre, train, test); err != nil {
		return nil, p.fail("Error during preprocess step", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	X, y, features, err := dataset.ToXY(train, p.Config.TargetColumn)
	if err != nil {
		return nil, p.fail("Error during preprocess step", err)
	}
	Xb, yb, err := p.balance(X, y)
	if err != nil {
		return nil, p.fail("Error while balancing data", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.selectFeatures(pre, Xb, yb, features); err != nil {
		return nil, p.fail("Error during feature selection step", err)
	}

	if err := p.save(pre, Xb, yb, features, test); err != nil {
		return nil, p.fail("Error while saving data", err)
	}
	p.logger.Info("Data processing completed",
		"selected", pre.SelectedFeatures, log.DurationMsKey, time.Since(start).Milliseconds())
	return pre, nil
}

// clean drops configured columns and duplicate rows.
func (p *Processor) clean(train, test *dataset.Frame) (*dataset.Frame, *dataset.Frame, error) {
	train = train.Drop(p.Config.DropColumns...).DropDuplicates()
	test = test.Drop(p.Config.DropColumns...).DropDuplicates()
	if !train.Has(p.Config.TargetColumn) {
		return nil, nil, errors.NewValueError("Processor.clean", "target column "+p.Config.TargetColumn+" is missing")
	}
	if train.Len() == 0 {
		return nil, nil, errors.ErrEmptyData
	}
	return train, test, nil
}

// encode fits one LabelEncoder per categorical column on train and applies
// it to both splits. Test rows holding a label never seen in train are
// dropped. The target is mapped to 1 for PositiveLabel and 0 otherwise.
func (p *Processor) encode(pre *Preprocessing, train, test *dataset.Frame) (*dataset.Frame, *dataset.Frame, error) {
	pre.Encoders = make(map[string][]string)
	unseen := make(map[int]bool)

	for _, col := range p.Config.CategoricalColumns {
		if col == p.Config.TargetColumn || !train.Has(col) {
			continue
		}
		values, err := train.Column(col)
		if err != nil {
			return nil, nil, err
		}
		enc := preprocessing.NewLabelEncoder()
		codes, err := enc.FitTransform(values)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "encoding %s", col)
		}
		if err := train.SetFloatColumn(col, codes); err != nil {
			return nil, nil, err
		}
		pre.Encoders[col] = enc.Classes()

		if !test.Has(col) {
			continue
		}
		testValues, err := test.Column(col)
		if err != nil {
			return nil, nil, err
		}
		testCodes := make([]float64, len(testValues))
		for i, v := range testValues {
			code, ok := enc.Lookup(v)
			if !ok {
				unseen[i] = true
			}
			testCodes[i] = code
		}
		if err := test.SetFloatColumn(col, testCodes); err != nil {
			return nil, nil, err
		}
	}

	if len(unseen) > 0 {
		keep := make([]int, 0, test.Len()-len(unseen))
		for i := 0; i < test.Len(); i++ {
			if !unseen[i] {
				keep = append(keep, i)
			}
		}
		p.logger.Warn("Dropping test rows with labels unseen in train", "rows", len(unseen))
		test = test.Subset(keep)
	}

	target := preprocessing.NewTargetEncoder(p.Config.PositiveLabel)
	trainTarget, err := train.Column(p.Config.TargetColumn)
	if err != nil {
		return nil, nil, err
	}
	if err := target.Fit(trainTarget); err != nil {
		return nil, nil, err
	}
	if err := train.SetFloatColumn(p.Config.TargetColumn, target.Transform(trainTarget)); err != nil {
		return nil, nil, err
	}
	testTarget, err := test.Column(p.Config.TargetColumn)
	if err != nil {
		return nil, nil, err
	}
	if err := test.SetFloatColumn(p.Config.TargetColumn, target.Transform(testTarget)); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

// reduceSkew applies log1p to numerical columns whose train skewness exceeds
// the threshold.
func (p *Processor) reduceSkew(pre *Preprocessing, train, test *dataset.Frame) error {
	var cols []string
	for _, c := range p.Config.NumericalColumns {
		if c != p.Config.TargetColumn && train.Has(c) {
			cols = append(cols, c)
		}
	}
	pre.Skewness = make(map[string]float64, len(cols))
	if len(cols) == 0 {
		return nil
	}

	Xtr, err := train.Matrix(cols...)
	if err != nil {
		return err
	}
	skew := preprocessing.NewSkewTransformer(p.Config.SkewnessThreshold)
	out, err := skew.FitTransform(Xtr)
	if err != nil {
		return err
	}
	for j, c := range cols {
		pre.Skewness[c] = skew.Skewness[j]
	}
	pre.LogColumns = skew.Selected(cols)
	if len(pre.LogColumns) == 0 {
		return nil
	}
	p.logger.Info("Applying log1p to skewed columns", "columns", pre.LogColumns)

	if err := writeColumns(train, cols, out, skew.Mask); err != nil {
		return err
	}
	if test.Len() == 0 {
		return nil
	}
	Xte, err := test.Matrix(cols...)
	if err != nil {
		return err
	}
	outTest, err := skew.Transform(Xte)
	if err != nil {
		return err
	}
	return writeColumns(test, cols, outTest, skew.Mask)
}

func writeColumns(f *dataset.Frame, cols []string, X mat.Matrix, mask []bool) error {
	for j, c := range cols {
		if !mask[j] {
			continue
		}
		if err := f.SetFloatColumn(c, mat.Col(nil, j, X)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) balance(X, y *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	smote := preprocessing.NewSMOTE(p.Config.SmoteKNeighbors, p.Config.RandomState)
	Xb, yb, err := smote.FitResample(X, y)
	if err != nil {
		return nil, nil, err
	}
	before, _ := X.Dims()
	after, _ := Xb.Dims()
	p.logger.Info("Balanced training data", "rows_before", before, "rows_after", after)
	return Xb, yb, nil
}

func (p *Processor) selectFeatures(pre *Preprocessing, X, y *mat.Dense, features []string) error {
	sel := preprocessing.NewSelectKBest(p.Config.NoOfFeatures, p.Config.RandomState)
	sel.Selectable = p.Config.SelectableFeatures
	if err := sel.Fit(X, y, features); err != nil {
		return err
	}
	pre.SelectedFeatures = sel.Selected
	pre.FeatureImportance = make(map[string]float64, len(features))
	for j, f := range features {
		pre.FeatureImportance[f] = sel.Importance[j]
	}
	p.logger.Info("Selected features", log.FeaturesKey, len(sel.Selected), "features", sel.Selected)
	return nil
}

// save writes the balanced train split and the test split restricted to the
// selected features (target last), then the Preprocessing artifact.
func (p *Processor) save(pre *Preprocessing, X, y *mat.Dense, features []string, test *dataset.Frame) error {
	columns := append(append([]string(nil), pre.SelectedFeatures...), p.Config.TargetColumn)

	train, err := dataset.FromMatrix(features, X)
	if err != nil {
		return err
	}
	if err := train.SetFloatColumn(p.Config.TargetColumn, mat.Col(nil, 0, y)); err != nil {
		return err
	}
	if train, err = train.Select(columns...); err != nil {
		return err
	}
	if test, err = test.Select(columns...); err != nil {
		return err
	}

	if err := train.WriteCSV(p.ProcessedTrainPath); err != nil {
		return err
	}
	if err := test.WriteCSV(p.ProcessedTestPath); err != nil {
		return err
	}
	if err := model.SaveModel(pre, p.PreprocessingPath); err != nil {
		return err
	}
	p.logger.Info("Saved processed data",
		"train_path", p.ProcessedTrainPath, "test_path", p.ProcessedTestPath, log.PathKey, p.PreprocessingPath)
	return nil
}

// LoadPreprocessing reads a Preprocessing artifact written by Process.
func LoadPreprocessing(path string) (*Preprocessing, error) {
	var pre Preprocessing
	if err := model.LoadModel(&pre, path); err != nil {
		return nil, err
	}
	return &pre, nil
}
