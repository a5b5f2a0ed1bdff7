package segment

import (
	vecmath "github.com/cwbudde/algo-vecmath"
)

// envelopeFloor keeps later spectral division away from zero for silent or
// empty channels.
const envelopeFloor = 1e-9

// Envelope accumulates the spectral magnitude of every block of one channel.
// After all blocks are in, Smooth turns the accumulator into the divisor used
// for envelope-preserving mixing.
type Envelope struct {
	bins []float64

	// scratch for magnitude accumulation
	re, im, mag []float64
}

// NewEnvelope creates an all-zero envelope with the given spectrum length.
func NewEnvelope(bins int) *Envelope {
	return &Envelope{
		bins: make([]float64, bins),
		re:   make([]float64, bins),
		im:   make([]float64, bins),
		mag:  make([]float64, bins),
	}
}

// Bins exposes the accumulated (or smoothed) magnitude vector.
func (e *Envelope) Bins() []float64 { return e.bins }

// Accumulate adds |spec| bin-wise into the envelope.
func (e *Envelope) Accumulate(spec []complex128) {
	for i, c := range spec {
		e.re[i] = real(c)
		e.im[i] = imag(c)
	}
	vecmath.Magnitude(e.mag, e.re, e.im)
	vecmath.AddBlockInPlace(e.bins, e.mag)
}

// Smooth replaces the accumulator with a sliding-maximum filtered version
// plus a small floor. The window covers about 2 Hz of spectrum:
// round(2 * bins / sampleRate), never less than 2.
func (e *Envelope) Smooth(sampleRate int) {
	size := int(2*float64(len(e.bins))/float64(sampleRate) + 0.5)
	if size < 2 {
		size = 2
	}

	e.bins = slidingMax(e.bins, size)
	for i := range e.bins {
		e.bins[i] += envelopeFloor
	}

	e.re, e.im, e.mag = nil, nil, nil
}

// slidingMax computes a centered sliding-maximum filter of the given window
// size using a monotonic index deque. Windows are clamped at the edges.
func slidingMax(in []float64, size int) []float64 {
	n := len(in)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if size >= n {
		peak := in[0]
		for _, v := range in[1:] {
			if v > peak {
				peak = v
			}
		}
		for i := range out {
			out[i] = peak
		}
		return out
	}

	left := size / 2
	right := size - left - 1

	// deque holds indices of candidate maxima in decreasing value order
	deque := make([]int, 0, size)
	tail := 0

	for i := 0; i < n; i++ {
		hi := i + right
		for ; tail <= hi && tail < n; tail++ {
			for len(deque) > 0 && in[deque[len(deque)-1]] <= in[tail] {
				deque = deque[:len(deque)-1]
			}
			deque = append(deque, tail)
		}
		for len(deque) > 0 && deque[0] < i-left {
			deque = deque[1:]
		}
		out[i] = in[deque[0]]
	}

	return out
}
