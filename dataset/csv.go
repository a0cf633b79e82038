package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

// LoadStage is the Stage reported by ReadCSV failures.
const LoadStage = "load"

// ReadCSV reads a CSV file with a header row. An empty file, a missing
// header or a ragged row fails with a StageError "Failed to load data".
func ReadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewStageError(LoadStage, "Failed to load data", err)
	}
	defer file.Close()

	f, err := DecodeCSV(file)
	if err != nil {
		return nil, errors.NewStageError(LoadStage, "Failed to load data", errors.Wrapf(err, "reading %s", path))
	}
	return f, nil
}

// DecodeCSV parses CSV from r.
func DecodeCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(errors.ErrEmptyData, "no header row")
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	// pandas writes a UTF-8 BOM when asked to; tolerate it
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading rows")
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "no data rows")
	}
	return New(header, rows)
}

// WriteCSV writes the header and rows to path, creating parent directories.
func (f *Frame) WriteCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := f.EncodeCSV(file); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrap(file.Close(), "closing csv")
}

// EncodeCSV writes the frame as CSV to w.
func (f *Frame) EncodeCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.columns); err != nil {
		return errors.Wrap(err, "writing header")
	}
	if err := writer.WriteAll(f.rows); err != nil {
		return errors.Wrap(err, "writing rows")
	}
	return nil
}

