// Package config loads the hotelres configuration. Values are layered:
// struct defaults, then an optional YAML file, then HOTELRES_* environment
// variables.
package config

import (
	"net"
	"path/filepath"
	"strconv"
	"time"
)

// Config is the full application configuration.
type Config struct {
	DataIngestion  DataIngestionConfig  `koanf:"data_ingestion" yaml:"data_ingestion"`
	DataProcessing DataProcessingConfig `koanf:"data_processing" yaml:"data_processing"`
	ModelTraining  ModelTrainingConfig  `koanf:"model_training" yaml:"model_training"`
	Paths          PathsConfig          `koanf:"paths" yaml:"paths"`
	Server         ServerConfig         `koanf:"server" yaml:"server"`
	Store          StoreConfig          `koanf:"store" yaml:"store"`
	Logging        LoggingConfig        `koanf:"logging" yaml:"logging"`
}

// DataIngestionConfig describes where the raw bookings CSV comes from and how
// it is split.
type DataIngestionConfig struct {
	// Source is gcs or file.
	Source         string  `koanf:"source" yaml:"source"`
	BucketName     string  `koanf:"bucket_name" yaml:"bucket_name"`
	BucketFileName string  `koanf:"bucket_file_name" yaml:"bucket_file_name"`
	LocalPath      string  `koanf:"local_path" yaml:"local_path"`
	TrainRatio     float64 `koanf:"train_ratio" yaml:"train_ratio"`
	RandomState    int     `koanf:"random_state" yaml:"random_state"`
}

// DataProcessingConfig drives the preprocessing stage.
type DataProcessingConfig struct {
	DropColumns        []string `koanf:"drop_columns" yaml:"drop_columns"`
	CategoricalColumns []string `koanf:"categorical_columns" yaml:"categorical_columns"`
	NumericalColumns   []string `koanf:"numerical_columns" yaml:"numerical_columns"`
	TargetColumn       string   `koanf:"target_column" yaml:"target_column"`
	PositiveLabel      string   `koanf:"positive_label" yaml:"positive_label"`
	SkewnessThreshold  float64  `koanf:"skewness_threshold" yaml:"skewness_threshold"`
	NoOfFeatures       int      `koanf:"no_of_features" yaml:"no_of_features"`
	// SelectableFeatures restricts feature selection to columns the
	// prediction API can supply. Empty means every column.
	SelectableFeatures []string `koanf:"selectable_features" yaml:"selectable_features"`
	SmoteKNeighbors    int      `koanf:"smote_k_neighbors" yaml:"smote_k_neighbors"`
	RandomState        int      `koanf:"random_state" yaml:"random_state"`
}

// IntBounds is a half-open integer search range [Min, Max).
type IntBounds struct {
	Min int `koanf:"min" yaml:"min"`
	Max int `koanf:"max" yaml:"max"`
}

// FloatBounds is a float search range [Min, Max).
type FloatBounds struct {
	Min float64 `koanf:"min" yaml:"min"`
	Max float64 `koanf:"max" yaml:"max"`
}

// ModelTrainingConfig configures the randomized hyperparameter search.
type ModelTrainingConfig struct {
	NIter       int    `koanf:"n_iter" yaml:"n_iter"`
	CV          int    `koanf:"cv" yaml:"cv"`
	Scoring     string `koanf:"scoring" yaml:"scoring"`
	RandomState int    `koanf:"random_state" yaml:"random_state"`
	// Parallelism bounds concurrently evaluated candidates. 0 uses every CPU.
	Parallelism int `koanf:"parallelism" yaml:"parallelism"`

	NEstimators  IntBounds   `koanf:"n_estimators" yaml:"n_estimators"`
	MaxDepth     IntBounds   `koanf:"max_depth" yaml:"max_depth"`
	LearningRate FloatBounds `koanf:"learning_rate" yaml:"learning_rate"`
	NumLeaves    IntBounds   `koanf:"num_leaves" yaml:"num_leaves"`
	BoostingType []string    `koanf:"boosting_type" yaml:"boosting_type"`
}

// PathsConfig holds artifact locations. Relative paths are resolved against
// ArtifactsDir.
type PathsConfig struct {
	ArtifactsDir       string `koanf:"artifacts_dir" yaml:"artifacts_dir"`
	RawFile            string `koanf:"raw_file" yaml:"raw_file"`
	TrainFile          string `koanf:"train_file" yaml:"train_file"`
	TestFile           string `koanf:"test_file" yaml:"test_file"`
	ProcessedTrainFile string `koanf:"processed_train_file" yaml:"processed_train_file"`
	ProcessedTestFile  string `koanf:"processed_test_file" yaml:"processed_test_file"`
	PreprocessingFile  string `koanf:"preprocessing_file" yaml:"preprocessing_file"`
	ModelOutput        string `koanf:"model_output" yaml:"model_output"`
	ReportDir          string `koanf:"report_dir" yaml:"report_dir"`
}

// Resolve returns p joined to ArtifactsDir unless p is absolute.
func (p PathsConfig) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.ArtifactsDir, path)
}

// ServerConfig configures the prediction web service.
type ServerConfig struct {
	Host               string        `koanf:"host" yaml:"host"`
	Port               int           `koanf:"port" yaml:"port"`
	ReadTimeout        time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout       time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins        []string      `koanf:"cors_origins" yaml:"cors_origins"`
	RateLimitPerMinute int           `koanf:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	Version            string        `koanf:"version" yaml:"version"`
	WatchModel         bool          `koanf:"watch_model" yaml:"watch_model"`
}

// Addr returns host:port for net.Listen.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StoreConfig configures the sqlite prediction log. An empty Path disables it.
type StoreConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// LoggingConfig configures pkg/log.
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
	Caller bool   `koanf:"caller" yaml:"caller"`
}

// ServingFeatures are the dataset columns the prediction form and API can
// supply.
var ServingFeatures = []string{
	"lead_time",
	"no_of_special_requests",
	"avg_price_per_room",
	"arrival_month",
	"arrival_date",
	"market_segment_type",
	"no_of_week_nights",
	"no_of_weekend_nights",
	"type_of_meal_plan",
	"room_type_reserved",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataIngestion: DataIngestionConfig{
			Source:         "gcs",
			BucketName:     "hotel-reservations-bucket",
			BucketFileName: "Hotel_Reservations.csv",
			TrainRatio:     0.8,
			RandomState:    42,
		},
		DataProcessing: DataProcessingConfig{
			DropColumns: []string{"Unnamed: 0", "Booking_ID"},
			CategoricalColumns: []string{
				"type_of_meal_plan",
				"required_car_parking_space",
				"room_type_reserved",
				"market_segment_type",
				"repeated_guest",
			},
			NumericalColumns: []string{
				"no_of_adults",
				"no_of_children",
				"no_of_weekend_nights",
				"no_of_week_nights",
				"lead_time",
				"arrival_year",
				"arrival_month",
				"arrival_date",
				"no_of_previous_cancellations",
				"no_of_previous_bookings_not_canceled",
				"avg_price_per_room",
				"no_of_special_requests",
			},
			TargetColumn:       "booking_status",
			PositiveLabel:      "Canceled",
			SkewnessThreshold:  5,
			NoOfFeatures:       10,
			SelectableFeatures: append([]string(nil), ServingFeatures...),
			SmoteKNeighbors:    5,
			RandomState:        42,
		},
		ModelTraining: ModelTrainingConfig{
			NIter:        4,
			CV:           2,
			Scoring:      "accuracy",
			RandomState:  42,
			NEstimators:  IntBounds{Min: 100, Max: 500},
			MaxDepth:     IntBounds{Min: 5, Max: 50},
			LearningRate: FloatBounds{Min: 0.01, Max: 0.2},
			NumLeaves:    IntBounds{Min: 20, Max: 100},
			BoostingType: []string{"gbdt", "goss"},
		},
		Paths: PathsConfig{
			ArtifactsDir:       "artifacts",
			RawFile:            "raw/raw.csv",
			TrainFile:          "raw/train.csv",
			TestFile:           "raw/test.csv",
			ProcessedTrainFile: "processed/processed_train.csv",
			ProcessedTestFile:  "processed/processed_test.csv",
			PreprocessingFile:  "processed/preprocessing.gob",
			ModelOutput:        "models/lgbm_model.gob",
			ReportDir:          "reports",
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       30 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			CORSOrigins:        []string{"*"},
			RateLimitPerMinute: 120,
			Version:            "1.0.0",
			WatchModel:         true,
		},
		Store: StoreConfig{
			Path: "artifacts/predictions.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
