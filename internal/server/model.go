package server

import (
	"slices"
	"sync/atomic"

	"github.com/YuminosukeSato/hotelres/internal/config"
	"github.com/YuminosukeSato/hotelres/internal/pipeline"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// ModelHolder keeps the serving bundle. Readers always see either the old or
// the new bundle in full; Load swaps atomically.
type ModelHolder struct {
	path    string
	current atomic.Pointer[pipeline.Bundle]
	metrics *Metrics
	logger  log.Logger
}

// NewModelHolder creates an empty holder for the bundle stored at path.
func NewModelHolder(path string, m *Metrics) *ModelHolder {
	return &ModelHolder{
		path:    path,
		metrics: m,
		logger:  log.GetLoggerWithName("server.model"),
	}
}

// Path returns the bundle file the holder loads from.
func (h *ModelHolder) Path() string {
	return h.path
}

// Get returns the loaded bundle or nil.
func (h *ModelHolder) Get() *pipeline.Bundle {
	return h.current.Load()
}

// Loaded reports whether a bundle is available.
func (h *ModelHolder) Loaded() bool {
	return h.current.Load() != nil
}

// Set installs b after checking that requests can supply its features.
func (h *ModelHolder) Set(b *pipeline.Bundle) error {
	if err := checkServable(b); err != nil {
		return err
	}
	h.current.Store(b)
	h.metrics.modelLoaded.Set(1)
	return nil
}

// Load reads the bundle from disk and installs it. On failure the previous
// bundle stays in place.
func (h *ModelHolder) Load() error {
	b, err := pipeline.LoadBundle(h.path)
	if err == nil {
		err = h.Set(b)
	}
	if err != nil {
		h.metrics.modelReloads.WithLabelValues("failure").Inc()
		h.logger.Error("Error loading model", log.PathKey, h.path, log.ErrAttrKey, err)
		return err
	}
	h.metrics.modelReloads.WithLabelValues("success").Inc()
	h.logger.Info("Model loaded",
		log.PathKey, h.path, log.RunIDKey, b.RunID, log.FeaturesKey, len(b.FeatureNames))
	return nil
}

// checkServable rejects bundles trained on columns the booking form does not
// collect.
func checkServable(b *pipeline.Bundle) error {
	if b == nil {
		return errors.ErrModelNotLoaded
	}
	if err := b.Validate(); err != nil {
		return err
	}
	for _, name := range b.FeatureNames {
		if !slices.Contains(config.ServingFeatures, name) {
			return errors.NewValidationError(name, "model feature is not collected by the booking API", nil)
		}
	}
	return nil
}
