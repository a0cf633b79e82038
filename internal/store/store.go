// Package store keeps a log of served predictions in sqlite.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

// MaxLimit caps the number of rows Recent returns.
const MaxLimit = 500

// Prediction is one served prediction.
type Prediction struct {
	ID          string             `json:"id"`
	CreatedAt   time.Time          `json:"created_at"`
	RequestID   string             `json:"request_id,omitempty"`
	Source      string             `json:"source"`
	ModelRunID  string             `json:"model_run_id,omitempty"`
	Prediction  int                `json:"prediction"`
	Probability float64            `json:"probability"`
	Features    map[string]float64 `json:"features"`
}

// Store is a sqlite-backed prediction log.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	request_id TEXT,
	source TEXT NOT NULL,
	model_run_id TEXT,
	prediction INTEGER NOT NULL,
	probability REAL NOT NULL,
	features_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
`

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.NewValidationError("store.path", "required", path)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// a single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record appends a prediction.
func (s *Store) Record(ctx context.Context, p Prediction) error {
	if p.ID == "" {
		return errors.NewValidationError("id", "required", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	features, err := json.Marshal(p.Features)
	if err != nil {
		return errors.Wrap(err, "failed to encode features")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, created_at, request_id, source, model_run_id, prediction, probability, features_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CreatedAt.UnixNano(), p.RequestID, p.Source, p.ModelRunID, p.Prediction, p.Probability, string(features))
	return errors.Wrap(err, "failed to record prediction")
}

// Recent returns up to limit predictions, newest first. limit is clamped to
// 1..MaxLimit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Prediction, error) {
	switch {
	case limit < 1:
		limit = 1
	case limit > MaxLimit:
		limit = MaxLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, request_id, source, model_run_id, prediction, probability, features_json
		 FROM predictions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query predictions")
	}
	defer rows.Close()

	out := make([]Prediction, 0, limit)
	for rows.Next() {
		var (
			p         Prediction
			createdAt int64
			requestID sql.NullString
			runID     sql.NullString
			features  string
		)
		if err := rows.Scan(&p.ID, &createdAt, &requestID, &p.Source, &runID, &p.Prediction, &p.Probability, &features); err != nil {
			return nil, errors.Wrap(err, "failed to scan prediction")
		}
		p.CreatedAt = time.Unix(0, createdAt).UTC()
		p.RequestID = requestID.String
		p.ModelRunID = runID.String
		if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
			return nil, errors.Wrap(err, "failed to decode features")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "failed to read predictions")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
