package config

import (
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
	"github.com/YuminosukeSato/hotelres/sklearn/lightgbm"
)

// Validate rejects configurations no stage could run with.
func (c *Config) Validate() error {
	if err := c.validateIngestion(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateTraining(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if _, err := log.ToLogLevel(c.Logging.Level); err != nil {
		return errors.NewValidationError("logging.level", err.Error(), c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return errors.NewValidationError("logging.format", "must be json or console", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateIngestion() error {
	d := c.DataIngestion
	switch d.Source {
	case "gcs":
		if d.BucketName == "" || d.BucketFileName == "" {
			return errors.NewValidationError("data_ingestion.bucket_name",
				"bucket_name and bucket_file_name are required for the gcs source", d.BucketName)
		}
	case "file":
		if d.LocalPath == "" {
			return errors.NewValidationError("data_ingestion.local_path", "required for the file source", d.LocalPath)
		}
	default:
		return errors.NewValidationError("data_ingestion.source", "must be gcs or file", d.Source)
	}
	if d.TrainRatio <= 0 || d.TrainRatio >= 1 {
		return errors.NewValidationError("data_ingestion.train_ratio", "must be in (0, 1)", d.TrainRatio)
	}
	return nil
}

func (c *Config) validateProcessing() error {
	p := c.DataProcessing
	if p.TargetColumn == "" {
		return errors.NewValidationError("data_processing.target_column", "required", p.TargetColumn)
	}
	if p.PositiveLabel == "" {
		return errors.NewValidationError("data_processing.positive_label", "required", p.PositiveLabel)
	}
	if p.NoOfFeatures < 1 {
		return errors.NewValidationError("data_processing.no_of_features", "must be at least 1", p.NoOfFeatures)
	}
	if p.SmoteKNeighbors < 1 {
		return errors.NewValidationError("data_processing.smote_k_neighbors", "must be at least 1", p.SmoteKNeighbors)
	}
	return nil
}

func (c *Config) validateTraining() error {
	m := c.ModelTraining
	if m.NIter < 1 {
		return errors.NewValidationError("model_training.n_iter", "must be at least 1", m.NIter)
	}
	if m.CV < 2 {
		return errors.NewValidationError("model_training.cv", "must be at least 2", m.CV)
	}
	switch m.Scoring {
	case "accuracy", "f1", "roc_auc":
	default:
		return errors.NewValidationError("model_training.scoring", "must be accuracy, f1 or roc_auc", m.Scoring)
	}
	for name, b := range map[string]IntBounds{
		"model_training.n_estimators": m.NEstimators,
		"model_training.max_depth":    m.MaxDepth,
		"model_training.num_leaves":   m.NumLeaves,
	} {
		if b.Min < 1 || b.Max < b.Min {
			return errors.NewValidationError(name, "needs 1 <= min <= max", b)
		}
	}
	if m.NumLeaves.Min < 2 {
		return errors.NewValidationError("model_training.num_leaves", "min must be at least 2", m.NumLeaves.Min)
	}
	if m.LearningRate.Min <= 0 || m.LearningRate.Max < m.LearningRate.Min {
		return errors.NewValidationError("model_training.learning_rate", "needs 0 < min <= max", m.LearningRate)
	}
	if len(m.BoostingType) == 0 {
		return errors.NewValidationError("model_training.boosting_type", "at least one boosting type is required", nil)
	}
	for _, b := range m.BoostingType {
		bt, err := lightgbm.ParseBoostingType(b)
		if err != nil {
			return errors.NewValidationError("model_training.boosting_type", err.Error(), b)
		}
		// rf needs bagging parameters the search does not sample
		if bt == lightgbm.RF {
			return errors.NewValidationError("model_training.boosting_type", "rf is not searchable", b)
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	s := c.Server
	if s.Port < 1 || s.Port > 65535 {
		return errors.NewValidationError("server.port", "must be in 1..65535", s.Port)
	}
	if s.RateLimitPerMinute < 0 {
		return errors.NewValidationError("server.rate_limit_per_minute", "must not be negative", s.RateLimitPerMinute)
	}
	if s.ReadTimeout <= 0 || s.WriteTimeout <= 0 {
		return errors.NewValidationError("server.read_timeout", "timeouts must be positive", s.ReadTimeout)
	}
	return nil
}
