package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/YuminosukeSato/hotelres/internal/pipeline"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

//go:embed web/templates/*.html web/static/*
var webFS embed.FS

func parseTemplates() *template.Template {
	return template.Must(template.ParseFS(webFS, "web/templates/*.html"))
}

func staticFS() http.FileSystem {
	sub, err := fs.Sub(webFS, "web/static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

// option is one entry of a categorical select; Code is the encoded value.
type option struct {
	Code  string
	Label string
}

type formField struct {
	field
	Value   string
	Options []option
}

type predictionView struct {
	Prediction int
	Text       string
	Percent    float64
}

type indexPage struct {
	Title   string
	Version string
	Fields  []formField
	Error   string
	Result  *predictionView
}

type errorPage struct {
	StatusCode int
	Message    string
	Detail     string
}

// formFields builds the form inputs. Categorical fields become selects with
// the bundle's encoder classes; submitted values are kept.
func formFields(b *pipeline.Bundle, submitted map[string]string) []formField {
	out := make([]formField, len(bookingFields))
	for i, f := range bookingFields {
		ff := formField{field: f, Value: submitted[f.Name]}
		if b != nil {
			for code, label := range b.Encoders[f.Column] {
				ff.Options = append(ff.Options, option{Code: strconv.Itoa(code), Label: label})
			}
		}
		out[i] = ff
	}
	return out
}

func predictionText(label int) string {
	if label == 1 {
		return "Booking likely to be CANCELLED"
	}
	return "Booking likely to be CONFIRMED"
}

// renderHTML executes a template into a buffer first so a template error
// still produces a clean 500.
func (s *Server) renderHTML(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("Error rendering template", "template", name, log.ErrAttrKey, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderIndex(w http.ResponseWriter, submitted map[string]string, errMsg string, result *predictionView) {
	s.renderHTML(w, http.StatusOK, "index.html", indexPage{
		Title:   s.title,
		Version: s.version,
		Fields:  formFields(s.model.Get(), submitted),
		Error:   errMsg,
		Result:  result,
	})
}

func (s *Server) renderError(w http.ResponseWriter, status int, message, detail string) {
	s.renderHTML(w, status, "error.html", errorPage{StatusCode: status, Message: message, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"detail":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// detail is the error body of every JSON endpoint. Detail is a string or a
// list of "field: message" strings.
type detail struct {
	Detail interface{} `json:"detail"`
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// writeProblem answers with JSON under /api/ and with the error page
// elsewhere.
func (s *Server) writeProblem(w http.ResponseWriter, r *http.Request, status int, message, msg string) {
	if isAPIPath(r.URL.Path) {
		writeJSON(w, status, detail{Detail: msg})
		return
	}
	s.renderError(w, status, message, msg)
}
