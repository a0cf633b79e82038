// Package dataset provides Frame, a small string-celled table with named
// columns, and the CSV and matrix conversions the pipeline stages share.
package dataset

import (
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

// Frame is a rectangular table of string cells addressed by column name.
// Rows are stored row-major; every row has len(Columns) cells.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New builds a Frame from a header and rows. Rows are not copied.
func New(columns []string, rows [][]string) (*Frame, error) {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := idx[c]; dup {
			return nil, errors.NewValueError("dataset.New", "duplicate column "+strconv.Quote(c))
		}
		idx[c] = i
	}
	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, errors.Newf("row %d has %d fields, expected %d", r+1, len(row), len(columns))
		}
	}
	return &Frame{columns: append([]string(nil), columns...), index: idx, rows: rows}, nil
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// Index returns the position of a column, or -1.
func (f *Frame) Index(name string) int {
	if i, ok := f.index[name]; ok {
		return i
	}
	return -1
}

// Has reports whether the column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Row returns row i. The slice aliases the frame.
func (f *Frame) Row(i int) []string {
	return f.rows[i]
}

// Column returns a copy of a column's cells.
func (f *Frame) Column(name string) ([]string, error) {
	j := f.Index(name)
	if j < 0 {
		return nil, errors.NewValueError("Frame.Column", "unknown column "+strconv.Quote(name))
	}
	out := make([]string, len(f.rows))
	for i, row := range f.rows {
		out[i] = row[j]
	}
	return out, nil
}

// Float parses a column as float64.
func (f *Frame) Float(name string) ([]float64, error) {
	cells, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return nil, errors.NewValidationError(name, "non-numeric value at row "+strconv.Itoa(i+1), c)
		}
		out[i] = v
	}
	return out, nil
}

// Drop returns a new Frame without the named columns. Absent names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []string
	for _, c := range f.columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	out, _ := f.Select(keep...)
	return out
}

// Select returns a new Frame holding only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	pos := make([]int, len(names))
	for k, n := range names {
		j := f.Index(n)
		if j < 0 {
			return nil, errors.NewValueError("Frame.Select", "unknown column "+strconv.Quote(n))
		}
		pos[k] = j
	}
	rows := make([][]string, len(f.rows))
	for i, row := range f.rows {
		r := make([]string, len(pos))
		for k, j := range pos {
			r[k] = row[j]
		}
		rows[i] = r
	}
	return New(names, rows)
}

// DropDuplicates removes rows identical to an earlier row. The first occurrence wins.
func (f *Frame) DropDuplicates() *Frame {
	seen := make(map[string]struct{}, len(f.rows))
	rows := make([][]string, 0, len(f.rows))
	for _, row := range f.rows {
		key := strings.Join(row, "\x1f")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, row)
	}
	return &Frame{columns: f.Columns(), index: f.index, rows: rows}
}

// Subset returns the rows at the given positions, in that order.
func (f *Frame) Subset(rows []int) *Frame {
	out := make([][]string, len(rows))
	for k, i := range rows {
		out[k] = f.rows[i]
	}
	return &Frame{columns: f.Columns(), index: f.index, rows: out}
}

// SetColumn replaces a column, or appends it when it does not exist yet.
func (f *Frame) SetColumn(name string, values []string) error {
	if len(values) != len(f.rows) {
		return errors.NewDimensionError("Frame.SetColumn", len(f.rows), len(values), 0)
	}
	j := f.Index(name)
	if j < 0 {
		f.columns = append(f.columns, name)
		idx := make(map[string]int, len(f.columns))
		for k, c := range f.columns {
			idx[c] = k
		}
		f.index = idx
		for i := range f.rows {
			row := make([]string, len(f.rows[i]), len(f.rows[i])+1)
			copy(row, f.rows[i])
			f.rows[i] = append(row, values[i])
		}
		return nil
	}
	for i := range f.rows {
		row := append([]string(nil), f.rows[i]...)
		row[j] = values[i]
		f.rows[i] = row
	}
	return nil
}

// SetFloatColumn formats values with the shortest representation and calls SetColumn.
func (f *Frame) SetFloatColumn(name string, values []float64) error {
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = FormatFloat(v)
	}
	return f.SetColumn(name, cells)
}

// Matrix converts the named columns to a dense float matrix.
func (f *Frame) Matrix(names ...string) (*mat.Dense, error) {
	if len(f.rows) == 0 || len(names) == 0 {
		return nil, errors.ErrEmptyData
	}
	X := mat.NewDense(len(f.rows), len(names), nil)
	for j, n := range names {
		col, err := f.Float(n)
		if err != nil {
			return nil, err
		}
		for i, v := range col {
			X.Set(i, j, v)
		}
	}
	return X, nil
}

// FromMatrix builds a Frame from a float matrix and column names.
func FromMatrix(columns []string, X mat.Matrix) (*Frame, error) {
	r, c := X.Dims()
	if c != len(columns) {
		return nil, errors.NewDimensionError("FromMatrix", len(columns), c, 1)
	}
	rows := make([][]string, r)
	for i := 0; i < r; i++ {
		row := make([]string, c)
		for j := 0; j < c; j++ {
			row[j] = FormatFloat(X.At(i, j))
		}
		rows[i] = row
	}
	return New(columns, rows)
}

// ToXY splits a Frame into a feature matrix (every non-target column, in
// order) and an n×1 target matrix. It also returns the feature names.
func ToXY(f *Frame, target string) (*mat.Dense, *mat.Dense, []string, error) {
	if !f.Has(target) {
		return nil, nil, nil, errors.NewValueError("ToXY", "unknown target column "+strconv.Quote(target))
	}
	var features []string
	for _, c := range f.columns {
		if c != target {
			features = append(features, c)
		}
	}
	X, err := f.Matrix(features...)
	if err != nil {
		return nil, nil, nil, err
	}
	y, err := f.Matrix(target)
	if err != nil {
		return nil, nil, nil, err
	}
	return X, y, features, nil
}

// FormatFloat renders v the way the CSV files store numbers: integers without
// a fractional part, everything else with the shortest round-tripping form.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
