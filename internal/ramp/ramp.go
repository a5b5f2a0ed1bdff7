// Package ramp provides the linear fade windows applied at block edges to
// suppress transients from frequency-domain mixing.
package ramp

import (
	vecmath "github.com/cwbudde/algo-vecmath"
)

// Linspace returns n evenly spaced values from from to to, inclusive.
// For n == 1 the single value is from.
func Linspace(from, to float64, n int) []float64 {
	if n <= 0 {
		return nil
	}

	out := make([]float64, n)
	if n == 1 {
		out[0] = from
		return out
	}

	step := (to - from) / float64(n-1)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	out[n-1] = to

	return out
}

// Window holds precomputed fade-in and fade-out ramps of a fixed size.
type Window struct {
	up   []float64
	down []float64
}

// NewWindow precomputes ramps of the given size.
func NewWindow(size int) *Window {
	return &Window{
		up:   Linspace(0, 1, size),
		down: Linspace(1, 0, size),
	}
}

// Size returns the ramp length.
func (w *Window) Size() int { return len(w.up) }

// Apply multiplies the first Size samples of buf by the fade-in ramp and the
// last Size samples by the fade-out ramp, in place. buf must be at least
// 2*Size long.
func (w *Window) Apply(buf []float64) {
	n := len(w.up)
	vecmath.MulBlockInPlace(buf[:n], w.up)
	vecmath.MulBlockInPlace(buf[len(buf)-n:], w.down)
}
