package server

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/YuminosukeSato/hotelres/internal/store"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

const recordTimeout = 2 * time.Second

// recorder writes predictions to the store behind a circuit breaker. A slow or
// broken database trips the breaker and predictions keep being served
// without a log entry.
type recorder struct {
	store   *store.Store
	cb      *gobreaker.CircuitBreaker[struct{}]
	metrics *Metrics
	logger  log.Logger
}

func newRecorder(s *store.Store, m *Metrics) *recorder {
	logger := log.GetLoggerWithName("server.recorder")
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "prediction-log",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.breakerState.Set(float64(to))
			logger.Warn("Circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &recorder{store: s, cb: cb, metrics: m, logger: logger}
}

// Record stores p. Errors are logged and counted, never returned: the
// prediction has already been served.
func (r *recorder) Record(ctx context.Context, p store.Prediction) {
	if r == nil || r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	_, err := r.cb.Execute(func() (struct{}, error) {
		return struct{}{}, r.store.Record(ctx, p)
	})
	switch {
	case err == nil:
		r.metrics.storeWrites.WithLabelValues("success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		r.metrics.storeWrites.WithLabelValues("rejected").Inc()
		r.logger.Debug("Prediction log write rejected", log.ErrAttrKey, err)
	default:
		r.metrics.storeWrites.WithLabelValues("failure").Inc()
		r.logger.Warn("Failed to record prediction", log.ErrAttrKey, err, log.RequestIDKey, p.RequestID)
	}
}
