// Package dcblock implements the streaming low-frequency rumble filter
// applied to every channel before block segmentation.
//
// The filter is a highpass Butterworth cascade realized as second-order
// sections in Direct Form II Transposed. Section state is carried across
// ProcessBlock calls, so a long signal can be filtered block by block
// without discontinuities at the block boundaries.
package dcblock

import (
	"fmt"
	"math"
)

// DefaultCutoffHz is the cutoff used for DC and sub-audio removal.
const DefaultCutoffHz = 20.0

// coefficients holds the transfer function of a single second-order
// section with a0 normalized to 1.
type coefficients struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// section is one biquad with its delay-line state.
type section struct {
	coefficients

	d0, d1 float64
}

func (s *section) processBlock(buf []float64) {
	b0, b1, b2 := s.b0, s.b1, s.b2
	a1, a2 := s.a1, s.a2
	d0, d1 := s.d0, s.d1

	for i, x := range buf {
		y := b0*x + d0
		d0 = b1*x - a1*y + d1
		d1 = b2*x - a2*y
		buf[i] = y
	}

	s.d0, s.d1 = d0, d1
}

// Filter is an ordered cascade of highpass sections with per-section state.
// One Filter instance serves exactly one channel.
type Filter struct {
	sections []section
}

// New designs a highpass Butterworth cascade of the given order.
// For odd orders the final section is first-order (b2 = a2 = 0).
func New(cutoffHz float64, order int, sampleRate float64) (*Filter, error) {
	if order <= 0 {
		return nil, fmt.Errorf("dcblock: order must be positive: %d", order)
	}
	if sampleRate <= 0 || cutoffHz <= 0 || cutoffHz >= sampleRate/2 {
		return nil, fmt.Errorf("dcblock: cutoff %g Hz invalid for sample rate %g", cutoffHz, sampleRate)
	}

	sections := make([]section, 0, (order+1)/2)

	n2 := order / 2
	for i := n2 - 1; i >= 0; i-- {
		q := butterworthQ(order, i)
		sections = append(sections, section{coefficients: highpassRBJ(cutoffHz, q, sampleRate)})
	}
	if order%2 != 0 {
		sections = append(sections, section{coefficients: firstOrderHP(cutoffHz, sampleRate)})
	}

	return &Filter{sections: sections}, nil
}

// ProcessBlock filters a block in-place through the full cascade,
// preserving state for the next block.
func (f *Filter) ProcessBlock(buf []float64) {
	for i := range f.sections {
		f.sections[i].processBlock(buf)
	}
}

// ProcessSample filters one input sample and returns the output.
func (f *Filter) ProcessSample(x float64) float64 {
	for i := range f.sections {
		s := &f.sections[i]
		y := s.b0*x + s.d0
		s.d0 = s.b1*x - s.a1*y + s.d1
		s.d1 = s.b2*x - s.a2*y
		x = y
	}

	return x
}

// Reset clears all section states.
func (f *Filter) Reset() {
	for i := range f.sections {
		f.sections[i].d0 = 0
		f.sections[i].d1 = 0
	}
}

// Order returns the total filter order.
func (f *Filter) Order() int {
	n := 0
	for i := range f.sections {
		if f.sections[i].b2 == 0 && f.sections[i].a2 == 0 {
			n++
		} else {
			n += 2
		}
	}

	return n
}

// butterworthQ returns the quality factor for a Butterworth section.
// index ranges from 0 to (order/2 - 1).
func butterworthQ(order, index int) float64 {
	theta := math.Pi * float64(2*index+1) / (2 * float64(order))

	s := math.Sin(theta)
	if s == 0 {
		return 1 / math.Sqrt2
	}

	return 1 / (2 * s)
}

// highpassRBJ designs a single highpass biquad (RBJ cookbook form).
func highpassRBJ(freq, q, sampleRate float64) coefficients {
	w0 := 2 * math.Pi * freq / sampleRate
	cw := math.Cos(w0)
	sw := math.Sin(w0)
	alpha := sw / (2 * q)

	b0 := (1 + cw) / 2
	b1 := -(1 + cw)
	b2 := (1 + cw) / 2
	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha

	inv := 1 / a0

	return coefficients{
		b0: b0 * inv,
		b1: b1 * inv,
		b2: b2 * inv,
		a1: a1 * inv,
		a2: a2 * inv,
	}
}

// firstOrderHP designs the first-order highpass section used for odd orders.
func firstOrderHP(freq, sampleRate float64) coefficients {
	k := math.Tan(math.Pi * freq / sampleRate)
	norm := 1 / (1 + k)

	return coefficients{
		b0: norm,
		b1: -norm,
		a1: (k - 1) * norm,
	}
}
