package prepare

import (
	"fmt"
	"math"
)

// Frame is an in-memory rectangular observation table. Columns are either
// numeric (NaN marks a missing cell) or label-valued (empty string marks a
// missing cell). The engine never writes back to a Frame after load.
type Frame struct {
	n       int
	numeric map[string][]float64
	labels  map[string][]string
	order   []string
}

// NewFrame creates an empty frame with a fixed row count
func NewFrame(rows int) *Frame {
	return &Frame{
		n:       rows,
		numeric: make(map[string][]float64),
		labels:  make(map[string][]string),
	}
}

// Len returns the number of rows
func (f *Frame) Len() int { return f.n }

// Columns returns column names in insertion order
func (f *Frame) Columns() []string {
	return append([]string(nil), f.order...)
}

// AddNumeric adds a numeric column; use NaN for missing cells
func (f *Frame) AddNumeric(name string, values []float64) error {
	if err := f.checkAdd(name, len(values)); err != nil {
		return err
	}
	f.numeric[name] = append([]float64(nil), values...)
	f.order = append(f.order, name)
	return nil
}

// AddLabel adds a label (categorical) column; use "" for missing cells
func (f *Frame) AddLabel(name string, values []string) error {
	if err := f.checkAdd(name, len(values)); err != nil {
		return err
	}
	f.labels[name] = append([]string(nil), values...)
	f.order = append(f.order, name)
	return nil
}

func (f *Frame) checkAdd(name string, n int) error {
	if name == "" {
		return fmt.Errorf("column name cannot be empty")
	}
	if f.Has(name) {
		return fmt.Errorf("column %q already exists", name)
	}
	if n != f.n {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, n, f.n)
	}
	return nil
}

// Has reports whether the column exists
func (f *Frame) Has(name string) bool {
	_, numeric := f.numeric[name]
	_, label := f.labels[name]
	return numeric || label
}

// IsNumeric reports whether the column exists and is numeric
func (f *Frame) IsNumeric(name string) bool {
	_, ok := f.numeric[name]
	return ok
}

// Numeric returns a numeric column
func (f *Frame) Numeric(name string) ([]float64, bool) {
	col, ok := f.numeric[name]
	return col, ok
}

// Label returns a label column
func (f *Frame) Label(name string) ([]string, bool) {
	col, ok := f.labels[name]
	return col, ok
}

// groupKey returns the grouping label for a row, accepting either a label
// column or a numeric column used as an identifier; ok is false when the
// cell is missing
func (f *Frame) groupKey(name string, row int) (string, bool) {
	if col, ok := f.labels[name]; ok {
		v := col[row]
		return v, v != ""
	}
	if col, ok := f.numeric[name]; ok {
		v := col[row]
		if math.IsNaN(v) {
			return "", false
		}
		return fmt.Sprintf("%g", v), true
	}
	return "", false
}
