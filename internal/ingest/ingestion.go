package ingest

import (
	"context"
	"time"

	"github.com/YuminosukeSato/hotelres/dataset"
	"github.com/YuminosukeSato/hotelres/internal/config"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// Stage is the pipeline stage name reported in StageErrors and logs.
const Stage = "ingest"

// Ingestion downloads the raw CSV and writes the train/test split.
type Ingestion struct {
	Source      Source
	RawPath     string
	TrainPath   string
	TestPath    string
	TrainRatio  float64
	RandomState int

	logger log.Logger
}

// New builds an Ingestion from the data_ingestion and paths sections.
func New(cfg *config.Config) (*Ingestion, error) {
	d := cfg.DataIngestion
	var src Source
	switch d.Source {
	case "gcs":
		src = &GCSSource{Bucket: d.BucketName, Object: d.BucketFileName}
	case "file":
		src = &FileSource{Path: d.LocalPath}
	default:
		return nil, errors.NewValidationError("data_ingestion.source", "must be gcs or file", d.Source)
	}
	return &Ingestion{
		Source:      src,
		RawPath:     cfg.Paths.Resolve(cfg.Paths.RawFile),
		TrainPath:   cfg.Paths.Resolve(cfg.Paths.TrainFile),
		TestPath:    cfg.Paths.Resolve(cfg.Paths.TestFile),
		TrainRatio:  d.TrainRatio,
		RandomState: d.RandomState,
	}, nil
}

func (in *Ingestion) log() log.Logger {
	if in.logger == nil {
		in.logger = log.GetLoggerWithName("ingest").With(log.StageKey, Stage)
	}
	return in.logger
}

// Download fetches the raw file.
func (in *Ingestion) Download(ctx context.Context) error {
	if err := in.Source.Fetch(ctx, in.RawPath); err != nil {
		in.log().Error("Error while downloading the csv file",
			"source", in.Source.String(), log.PathKey, in.RawPath, log.ErrAttrKey, err)
		return errors.NewStageError(Stage, "Error while downloading the csv file", err)
	}
	in.log().Info("Successfully downloaded the csv file", "source", in.Source.String(), log.PathKey, in.RawPath)
	return nil
}

// Split reads the raw file and writes train and test CSVs. The test part is
// 1-TrainRatio of the rows.
func (in *Ingestion) Split() error {
	fail := func(err error) error {
		in.log().Error("Error while splitting the data into train and test sets", log.ErrAttrKey, err)
		return errors.NewStageError(Stage, "Error while splitting the data into train and test sets", err)
	}

	frame, err := dataset.ReadCSV(in.RawPath)
	if err != nil {
		return fail(err)
	}
	train, test, err := dataset.TrainTestSplit(frame, 1-in.TrainRatio, in.RandomState)
	if err != nil {
		return fail(err)
	}
	if err := train.WriteCSV(in.TrainPath); err != nil {
		return fail(err)
	}
	if err := test.WriteCSV(in.TestPath); err != nil {
		return fail(err)
	}
	in.log().Info("Successfully split the data into train and test sets",
		"train_path", in.TrainPath, "test_path", in.TestPath,
		"train_rows", train.Len(), "test_rows", test.Len())
	return nil
}

// Run downloads then splits. Failures of either step are wrapped once more
// as "Error while initiating the data ingestion".
func (in *Ingestion) Run(ctx context.Context) (err error) {
	defer errors.Recover(&err, "Ingestion.Run")
	start := time.Now()
	in.log().Info("Initiating the data ingestion", "source", in.Source.String())

	if err := in.Download(ctx); err != nil {
		return errors.NewStageError(Stage, "Error while initiating the data ingestion", err)
	}
	if err := in.Split(); err != nil {
		return errors.NewStageError(Stage, "Error while initiating the data ingestion", err)
	}
	in.log().Info("Data ingestion is completed", log.DurationMsKey, time.Since(start).Milliseconds())
	return nil
}
