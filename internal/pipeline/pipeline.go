package pipeline

import (
	"context"
	"time"

	"github.com/YuminosukeSato/hotelres/internal/config"
	"github.com/YuminosukeSato/hotelres/internal/ingest"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// Run executes ingest, process and train in order and stops at the first
// failing stage.
func Run(ctx context.Context, cfg *config.Config) (*Bundle, error) {
	logger := log.GetLoggerWithName("pipeline")
	start := time.Now()

	in, err := ingest.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := in.Run(ctx); err != nil {
		return nil, err
	}

	if _, err := NewProcessor(cfg).Process(ctx); err != nil {
		return nil, err
	}

	bundle, err := NewTraining(cfg).Run(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Training pipeline finished",
		log.RunIDKey, bundle.RunID, log.DurationMsKey, time.Since(start).Milliseconds())
	return bundle, nil
}
