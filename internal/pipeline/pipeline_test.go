package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/hotelres/dataset"
	"github.com/YuminosukeSato/hotelres/internal/config"
	"github.com/YuminosukeSato/hotelres/internal/ingest"
	"github.com/YuminosukeSato/hotelres/internal/testinfra"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/sklearn/lightgbm"
)

// testConfig points every path into a temp dir, reads bookings from a local
// file and shrinks the search so the suite stays fast.
func testConfig(t *testing.T, rows int) *config.Config {
	t.Helper()
	dir := t.TempDir()
	src, err := testinfra.WriteBookings(dir, "Hotel_Reservations.csv", rows, 7)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.DataIngestion.Source = "file"
	cfg.DataIngestion.LocalPath = src
	cfg.Paths.ArtifactsDir = filepath.Join(dir, "artifacts")
	cfg.ModelTraining.NIter = 2
	cfg.ModelTraining.NEstimators = config.IntBounds{Min: 10, Max: 30}
	cfg.ModelTraining.NumLeaves = config.IntBounds{Min: 4, Max: 16}
	require.NoError(t, cfg.Validate())
	return cfg
}

func ingested(t *testing.T, rows int) *config.Config {
	t.Helper()
	cfg := testConfig(t, rows)
	in, err := ingest.New(cfg)
	require.NoError(t, err)
	require.NoError(t, in.Run(context.Background()))
	return cfg
}

func TestProcess(t *testing.T) {
	cfg := ingested(t, 400)
	p := NewProcessor(cfg)

	pre, err := p.Process(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, config.ServingFeatures, pre.SelectedFeatures)
	assert.Equal(t, []string{"Meal Plan 1", "Meal Plan 2", "Not Selected"}, pre.Encoders["type_of_meal_plan"])
	assert.NotContains(t, pre.Encoders, "booking_status")
	assert.Len(t, pre.Skewness, len(cfg.DataProcessing.NumericalColumns))
	assert.Contains(t, pre.LogColumns, "no_of_previous_cancellations")

	train, err := dataset.ReadCSV(p.ProcessedTrainPath)
	require.NoError(t, err)
	wantCols := append(append([]string(nil), pre.SelectedFeatures...), "booking_status")
	assert.Equal(t, wantCols, train.Columns())

	// SMOTE balances the classes
	y, err := train.Float("booking_status")
	require.NoError(t, err)
	var pos int
	for _, v := range y {
		pos += int(v)
	}
	assert.Equal(t, len(y)-pos, pos)

	test, err := dataset.ReadCSV(p.ProcessedTestPath)
	require.NoError(t, err)
	assert.Equal(t, wantCols, test.Columns())

	saved, err := LoadPreprocessing(p.PreprocessingPath)
	require.NoError(t, err)
	assert.Equal(t, pre, saved)
}

func writeSplit(t *testing.T, p *Processor, train, test string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p.TrainPath), 0o755))
	require.NoError(t, os.WriteFile(p.TrainPath, []byte(train), 0o600))
	require.NoError(t, os.WriteFile(p.TestPath, []byte(test), 0o600))
}

func TestProcessDropsUnseenTestLabels(t *testing.T) {
	cfg := testConfig(t, 10)
	cfg.DataProcessing.CategoricalColumns = []string{"type_of_meal_plan"}
	cfg.DataProcessing.NumericalColumns = []string{"lead_time"}
	cfg.DataProcessing.SelectableFeatures = nil
	cfg.DataProcessing.NoOfFeatures = 2
	cfg.DataProcessing.SmoteKNeighbors = 1
	p := NewProcessor(cfg)

	train := "Booking_ID,type_of_meal_plan,lead_time,booking_status\n" +
		"A1,Meal Plan 1,10,Not_Canceled\n" +
		"A2,Meal Plan 2,200,Canceled\n" +
		"A3,Meal Plan 1,20,Not_Canceled\n" +
		"A4,Meal Plan 2,150,Canceled\n" +
		"A5,Meal Plan 1,30,Not_Canceled\n" +
		"A5,Meal Plan 1,30,Not_Canceled\n"
	test := "Booking_ID,type_of_meal_plan,lead_time,booking_status\n" +
		"B1,Meal Plan 1,15,Not_Canceled\n" +
		"B2,Meal Plan 3,180,Canceled\n"
	writeSplit(t, p, train, test)

	pre, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Meal Plan 1", "Meal Plan 2"}, pre.Encoders["type_of_meal_plan"])

	out, err := dataset.ReadCSV(p.ProcessedTestPath)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())

	processed, err := dataset.ReadCSV(p.ProcessedTrainPath)
	require.NoError(t, err)
	// the duplicate A5 row is dropped; 3 negatives vs 2 positives balance to 6 rows
	assert.Equal(t, 6, processed.Len())
}

func TestProcessFailures(t *testing.T) {
	cfg := testConfig(t, 10)
	p := NewProcessor(cfg)

	_, err := p.Process(context.Background())
	var se *errors.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Failed to load data", se.Message)

	writeSplit(t, p, "Booking_ID,lead_time\nA1,3\n", "Booking_ID,lead_time\nB1,4\n")
	_, err = p.Process(context.Background())
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Error during preprocess step", se.Message)

	writeSplit(t, p,
		"lead_time,booking_status\n1,Not_Canceled\n2,Not_Canceled\n",
		"lead_time,booking_status\n1,Not_Canceled\n")
	_, err = p.Process(context.Background())
	require.True(t, errors.As(err, &se))
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve), "a train split without the positive label is rejected")
}

func TestLoadAndSplitDataEmpty(t *testing.T) {
	cfg := testConfig(t, 10)
	tr := NewTraining(cfg)
	require.NoError(t, os.MkdirAll(filepath.Dir(tr.TrainPath), 0o755))
	require.NoError(t, os.WriteFile(tr.TrainPath, nil, 0o600))
	require.NoError(t, os.WriteFile(tr.TestPath, nil, 0o600))

	_, err := tr.LoadAndSplitData()
	var se *errors.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Failed to load data", se.Message)
	assert.Equal(t, TrainStage, se.Stage)

	_, err = tr.Run(context.Background())
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Failed to load data", se.Message)
}

func TestTrainingTinyData(t *testing.T) {
	cfg := testConfig(t, 10)
	cfg.ModelTraining.CV = 2
	tr := NewTraining(cfg)

	data := "lead_time,avg_price_per_room,booking_status\n" +
		"10,100,0\n" +
		"200,80,1\n" +
		"15,90,0\n"
	require.NoError(t, os.MkdirAll(filepath.Dir(tr.TrainPath), 0o755))
	require.NoError(t, os.WriteFile(tr.TrainPath, []byte(data), 0o600))
	require.NoError(t, os.WriteFile(tr.TestPath, []byte(data), 0o600))

	split, err := tr.LoadAndSplitData()
	require.NoError(t, err)
	assert.Equal(t, []string{"lead_time", "avg_price_per_room"}, split.Features)

	search, err := tr.TrainLGBM(context.Background(), split.XTrain, split.YTrain, split.Features)
	require.NoError(t, err)
	require.NotNil(t, search.BestEstimator)

	scores, err := tr.EvaluateModel(search.BestEstimator, split.XTest, split.YTest)
	require.NoError(t, err)
	for _, k := range []string{"accuracy", "precision", "recall", "f1", "roc_auc"} {
		require.Contains(t, scores, k)
		assert.GreaterOrEqual(t, scores[k], 0.0)
		assert.LessOrEqual(t, scores[k], 1.0)
	}

	bundle, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bundle.LogColumns, "no preprocessing artifact means raw features")
	assert.FileExists(t, tr.ModelPath)
}

func TestDistributions(t *testing.T) {
	d := NewTraining(config.Default()).Distributions()
	assert.Len(t, d, 5)
	assert.Equal(t, lightgbm.IntRange{Low: 100, High: 500}, d["n_estimators"])
	assert.Equal(t, lightgbm.FloatRange{Low: 0.01, High: 0.2}, d["learning_rate"])
	assert.Equal(t, lightgbm.Choice{Values: []interface{}{"gbdt", "goss"}}, d["boosting_type"])
}

func TestRun(t *testing.T) {
	cfg := testConfig(t, 400)

	bundle, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotEmpty(t, bundle.RunID)
	assert.ElementsMatch(t, config.ServingFeatures, bundle.FeatureNames)
	assert.Equal(t, "Canceled", bundle.PositiveLabel)
	for k, v := range bundle.Metrics {
		assert.GreaterOrEqual(t, v, 0.0, k)
		assert.LessOrEqual(t, v, 1.0, k)
	}
	assert.Greater(t, bundle.Metrics["accuracy"], 0.6)

	modelPath := cfg.Paths.Resolve(cfg.Paths.ModelOutput)
	loaded, err := LoadBundle(modelPath)
	require.NoError(t, err)
	assert.Equal(t, bundle.FeatureNames, loaded.FeatureNames)
	assert.Equal(t, bundle.RunID, loaded.RunID)

	reportDir := cfg.Paths.Resolve(cfg.Paths.ReportDir)
	assert.FileExists(t, filepath.Join(reportDir, FeatureImportanceFile))
	assert.FileExists(t, filepath.Join(reportDir, ROCCurveFile))

	raw, err := os.ReadFile(filepath.Join(reportDir, MetricsFile))
	require.NoError(t, err)
	var report struct {
		RunID      string             `json:"run_id"`
		Metrics    map[string]float64 `json:"metrics"`
		Candidates []json.RawMessage  `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, bundle.RunID, report.RunID)
	assert.Equal(t, bundle.Metrics, report.Metrics)
	assert.Len(t, report.Candidates, cfg.ModelTraining.NIter)

	// a long lead time without special requests is the synthetic cancel pattern
	risky := map[string]float64{
		"lead_time": 280, "no_of_special_requests": 0, "avg_price_per_room": 120,
		"arrival_month": 7, "arrival_date": 14, "market_segment_type": 3,
		"no_of_week_nights": 2, "no_of_weekend_nights": 1, "type_of_meal_plan": 0,
		"room_type_reserved": 0,
	}
	label, prob, err := loaded.Predict(risky)
	require.NoError(t, err)
	assert.Equal(t, 1, label)
	assert.Greater(t, prob, 0.5)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	cfg := testConfig(t, 10)
	cfg.DataIngestion.LocalPath = filepath.Join(t.TempDir(), "missing.csv")

	_, err := Run(context.Background(), cfg)
	var se *errors.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ingest.Stage, se.Stage)
	assert.NoFileExists(t, cfg.Paths.Resolve(cfg.Paths.ProcessedTrainFile))
}
