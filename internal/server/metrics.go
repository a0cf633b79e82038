package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. Each server owns its
// registry so several servers can coexist in one process (tests).
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	predictions        *prometheus.CounterVec
	predictionDuration prometheus.Histogram
	modelLoaded        prometheus.Gauge
	modelReloads       *prometheus.CounterVec
	storeWrites        *prometheus.CounterVec
	breakerState       prometheus.Gauge
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hotelres_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hotelres_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		predictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hotelres_predictions_total",
			Help: "Predictions served by source (form, api) and predicted class",
		}, []string{"source", "class"}),
		predictionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hotelres_prediction_duration_seconds",
			Help:    "Time spent inside the model predict call",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		modelLoaded: f.NewGauge(prometheus.GaugeOpts{
			Name: "hotelres_model_loaded",
			Help: "1 when a model bundle is loaded",
		}),
		modelReloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hotelres_model_reloads_total",
			Help: "Model load attempts by result",
		}, []string{"result"}),
		storeWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hotelres_prediction_log_writes_total",
			Help: "Prediction log writes by result (success, failure, rejected)",
		}, []string{"result"}),
		breakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "hotelres_prediction_log_breaker_state",
			Help: "Circuit breaker state of the prediction log (0 closed, 1 half-open, 2 open)",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts requests by route pattern so that path parameters and
// unknown paths do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
