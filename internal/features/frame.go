package features

import (
	"fmt"
	"time"
)

// Frame is an ordered set of equal-length float64 columns over one candle
// series. Columns keep insertion order; the inference-mode selection pass
// re-orders into registry order.
type Frame struct {
	Symbol string
	Times  []time.Time
	order  []string
	cols   map[string][]float64
}

// NewFrame creates an empty frame over the given timestamps.
func NewFrame(symbol string, times []time.Time) *Frame {
	return &Frame{
		Symbol: symbol,
		Times:  times,
		cols:   make(map[string][]float64),
	}
}

// Len returns the row count.
func (f *Frame) Len() int { return len(f.Times) }

// Set stores a column. Length must match the frame's row count.
func (f *Frame) Set(name string, vals []float64) error {
	if len(vals) != f.Len() {
		return fmt.Errorf("column %s: length %d != frame length %d", name, len(vals), f.Len())
	}
	if _, exists := f.cols[name]; !exists {
		f.order = append(f.order, name)
	}
	f.cols[name] = vals
	return nil
}

// Get returns a column by name.
func (f *Frame) Get(name string) ([]float64, bool) {
	c, ok := f.cols[name]
	return c, ok
}

// Has reports whether a column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Names returns column names in insertion order. Callers must not mutate.
func (f *Frame) Names() []string { return f.order }

// Drop removes a column if present.
func (f *Frame) Drop(name string) {
	if _, ok := f.cols[name]; !ok {
		return
	}
	delete(f.cols, name)
	for i, n := range f.order {
		if n == name {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Row extracts one row across the given column names. Missing columns yield 0.
func (f *Frame) Row(i int, names []string) []float64 {
	out := make([]float64, len(names))
	for j, n := range names {
		if c, ok := f.cols[n]; ok && i < len(c) {
			out[j] = c[i]
		}
	}
	return out
}

// Tail returns a new frame holding the last n rows of every column.
func (f *Frame) Tail(n int) *Frame {
	if n >= f.Len() {
		return f
	}
	start := f.Len() - n
	out := NewFrame(f.Symbol, f.Times[start:])
	for _, name := range f.order {
		_ = out.Set(name, f.cols[name][start:])
	}
	return out
}
