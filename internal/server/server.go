// Package server serves booking cancellation predictions over an HTML form
// and a JSON API.
package server

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/YuminosukeSato/hotelres/internal/config"
	"github.com/YuminosukeSato/hotelres/internal/pipeline"
	"github.com/YuminosukeSato/hotelres/internal/store"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// Title is shown in the page header and the API docs.
const Title = "Hotel Booking Prediction API"

// Server holds the router and everything the handlers share.
type Server struct {
	cfg     config.ServerConfig
	title   string
	version string

	model     *ModelHolder
	store     *store.Store
	recorder  *recorder
	metrics   *Metrics
	templates *template.Template
	validate  *validator.Validate
	logger    log.Logger

	bundle  *pipeline.Bundle
	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithStore logs every prediction to st.
func WithStore(st *store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithBundle serves b instead of loading the bundle from disk.
func WithBundle(b *pipeline.Bundle) Option {
	return func(s *Server) {
		s.bundle = b
	}
}

// New builds the server. A bundle that fails to load is logged and the
// server starts anyway; model routes answer 503 until a reload succeeds.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg.Server,
		title:     Title,
		version:   cfg.Server.Version,
		metrics:   NewMetrics(),
		templates: parseTemplates(),
		validate:  newValidator(),
		logger:    log.GetLoggerWithName("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.model = NewModelHolder(cfg.Paths.Resolve(cfg.Paths.ModelOutput), s.metrics)
	s.recorder = newRecorder(s.store, s.metrics)

	if s.bundle != nil {
		if err := s.model.Set(s.bundle); err != nil {
			s.logger.Error("Error installing model", log.ErrAttrKey, err)
		}
	} else {
		_ = s.model.Load()
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Model returns the holder of the serving bundle.
func (s *Server) Model() *ModelHolder {
	return s.model
}

// Addr is the listen address from the configuration.
func (s *Server) Addr() string {
	return s.cfg.Addr()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.metrics.Middleware)
	r.Use(s.recoverer)
	r.Use(s.requireModel)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeProblem(w, r, http.StatusNotFound, "Not Found", "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeProblem(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", "Method Not Allowed")
	})

	limit := s.rateLimit()

	r.Get("/", s.handleHome)
	r.With(limit).Post("/", s.handlePredictForm)
	r.Get("/health", s.handleHealth)
	r.Get("/openapi.json", s.handleOpenAPI)
	r.Handle("/metrics", s.metrics.Handler())
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(staticFS())))

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
		r.With(limit).Post("/predict", s.handlePredictAPI)
		r.Get("/predictions", s.handleRecent)
		r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/api/docs/index.html", http.StatusFound)
		})
		r.Get("/docs/*", httpSwagger.Handler(
			httpSwagger.URL("/openapi.json"),
			httpSwagger.DocExpansion("list"),
			httpSwagger.DomID("swagger-ui"),
		))
	})
	return r
}

// rateLimit limits prediction requests per client IP.
func (s *Server) rateLimit() func(http.Handler) http.Handler {
	if s.cfg.RateLimitPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(s.cfg.RateLimitPerMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.writeProblem(w, r, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Please retry later.")
		}),
	)
}

// ungated paths answer even while no model is loaded.
func ungated(path string) bool {
	switch {
	case path == "/health", path == "/metrics", path == "/openapi.json":
		return true
	case strings.HasPrefix(path, "/static/"), path == "/api/docs", strings.HasPrefix(path, "/api/docs/"):
		return true
	}
	return false
}

func (s *Server) requireModel(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.model.Loaded() || ungated(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if isAPIPath(r.URL.Path) {
			writeJSON(w, http.StatusServiceUnavailable, detail{Detail: "Model not loaded. Please check server logs."})
			return
		}
		s.renderError(w, http.StatusServiceUnavailable, "Service Unavailable",
			"The prediction model failed to load. Please contact the administrator.")
	})
}

// recoverer turns a handler panic into a 500 in the format of the path.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err := errors.Newf("panic: %v", rec)
			s.logger.Error("Recovered from panic",
				log.ErrAttrKey, err, log.RequestIDKey, chimiddleware.GetReqID(r.Context()), log.PathKey, r.URL.Path)
			if isAPIPath(r.URL.Path) {
				writeJSON(w, http.StatusInternalServerError, detail{Detail: "Internal Server Error"})
				return
			}
			s.renderError(w, http.StatusInternalServerError, "Internal Server Error",
				"An unexpected error occurred. Please try again later.")
		}()
		next.ServeHTTP(w, r)
	})
}
