package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/YuminosukeSato/hotelres/internal/store"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

const (
	defaultListLimit = 50
	maxBodyBytes     = 1 << 20
)

// PredictionResponse is the body of a successful POST /api/predict.
type PredictionResponse struct {
	Prediction     int                    `json:"prediction"`
	PredictionText string                 `json:"prediction_text"`
	Probability    float64                `json:"probability"`
	Features       map[string]interface{} `json:"features"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Version     string `json:"version"`
}

// predict runs the model once and records the outcome.
func (s *Server) predict(r *http.Request, b *BookingFeatures, source string) (int, float64, error) {
	bundle := s.model.Get()
	if bundle == nil {
		return 0, 0, errors.ErrModelNotLoaded
	}
	values := b.Values()

	start := time.Now()
	label, prob, err := bundle.Predict(values)
	s.metrics.predictionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, 0, err
	}
	s.metrics.predictions.WithLabelValues(source, strconv.Itoa(label)).Inc()

	reqID := chimiddleware.GetReqID(r.Context())
	s.logger.Info("Prediction served",
		log.RequestIDKey, reqID, log.SourceKey, source,
		log.PredictionKey, label, log.ConfidenceKey, prob, log.RunIDKey, bundle.RunID)

	s.recorder.Record(r.Context(), store.Prediction{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		RequestID:   reqID,
		Source:      source,
		ModelRunID:  bundle.RunID,
		Prediction:  label,
		Probability: prob,
		Features:    values,
	})
	return label, prob, nil
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	s.renderIndex(w, nil, "", nil)
}

func (s *Server) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.renderError(w, http.StatusBadRequest, "Bad Request", "The form could not be read.")
		return
	}
	submitted := make(map[string]string, len(bookingFields))
	for _, f := range bookingFields {
		submitted[f.Name] = r.PostForm.Get(f.Name)
	}

	booking, problems := parseForm(r.PostForm)
	if len(problems) > 0 {
		s.renderError(w, http.StatusUnprocessableEntity, "Validation Error", strings.Join(problems, "; "))
		return
	}
	if msg := booking.CheckCalendar(); msg != "" {
		s.renderIndex(w, submitted, msg, nil)
		return
	}

	label, prob, err := s.predict(r, booking, "form")
	if err != nil {
		s.logger.Warn("Prediction failed", log.ErrAttrKey, err, log.RequestIDKey, chimiddleware.GetReqID(r.Context()))
		s.renderIndex(w, submitted, "Prediction error: "+err.Error(), nil)
		return
	}
	s.renderIndex(w, submitted, "", &predictionView{
		Prediction: label,
		Text:       predictionText(label),
		Percent:    prob * 100,
	})
}

func (s *Server) handlePredictAPI(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, detail{Detail: "request body too large"})
		return
	}

	booking, problems := decodeBooking(body)
	if len(problems) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, detail{Detail: problems})
		return
	}
	if err := s.validate.Struct(booking); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, detail{Detail: validationMessages(err)})
		return
	}
	if msg := booking.CheckCalendar(); msg != "" {
		writeJSON(w, http.StatusUnprocessableEntity, detail{Detail: []string{"arrival_date: " + msg}})
		return
	}

	label, prob, err := s.predict(r, booking, "api")
	if err != nil {
		var ve *errors.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusUnprocessableEntity, detail{Detail: []string{requestName(ve.ParamName) + ": " + ve.Reason}})
			return
		}
		s.logger.Error("Prediction failed", log.ErrAttrKey, err, log.RequestIDKey, chimiddleware.GetReqID(r.Context()))
		writeJSON(w, http.StatusInternalServerError, detail{Detail: "Prediction error: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, PredictionResponse{
		Prediction:     label,
		PredictionText: predictionText(label),
		Probability:    prob,
		Features:       booking.Map(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		ModelLoaded: s.model.Loaded(),
		Version:     s.version,
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openAPIDocument(s.title, s.version))
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, detail{Detail: "Prediction log is disabled"})
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, detail{Detail: []string{"limit: value is not a valid integer"}})
			return
		}
		limit = n
	}
	preds, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list predictions", log.ErrAttrKey, err)
		writeJSON(w, http.StatusInternalServerError, detail{Detail: "failed to list predictions"})
		return
	}
	writeJSON(w, http.StatusOK, preds)
}
