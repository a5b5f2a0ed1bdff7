// Package segment turns the decoded input stream into per-block, per-channel
// spectra persisted in the block store. Segmentation is single-pass: each
// block is read, filtered, windowed, transformed and stored exactly once.
package segment

import (
	"context"
	"errors"
	"fmt"
	"io"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/ajjackson/autoconv2x/blockstore"
	"github.com/ajjackson/autoconv2x/dcblock"
	"github.com/ajjackson/autoconv2x/internal/ramp"
)

// Source supplies interleaved PCM frames normalized to [-1, 1).
type Source interface {
	SampleRate() int
	Channels() int
	// Frames returns the total number of sample frames available.
	Frames() int
	// ReadFrames fills dst (whose length must be a multiple of Channels)
	// with interleaved samples and returns the number of whole frames read.
	// io.EOF signals exhaustion; a short read is not an error.
	ReadFrames(dst []float64) (int, error)
}

// Config controls one segmentation pass.
type Config struct {
	InputBlockSize  int
	OutputBlockSize int
	// RampSize, when positive, applies a linear fade of that many samples to
	// both edges of every block that is long enough.
	RampSize int
	// TrackEnvelope enables per-channel spectral envelope accumulation.
	TrackEnvelope bool
}

// Result reports what a segmentation pass produced.
type Result struct {
	// NBlocks counts the segmented blocks, including the rounding block and
	// the forced trailing zero block that flushes the convolution tail.
	NBlocks int
	// Envelopes holds one raw accumulated envelope per channel when
	// envelope tracking was enabled, nil otherwise.
	Envelopes []*Envelope
}

// Segmenter runs the segmentation stage against a source and a store.
type Segmenter struct {
	src   Source
	store *blockstore.Store
	cfg   Config

	plan    *algofft.PlanRealT[float64, complex128]
	filters []*dcblock.Filter
	window  *ramp.Window

	interleaved []float64
	chanBuf     []float64
	padded      []float64
	spec        []complex128
}

// New prepares a segmenter. The forward transform plan and the per-channel
// highpass filter state live for the whole pass.
func New(src Source, store *blockstore.Store, cfg Config) (*Segmenter, error) {
	if cfg.InputBlockSize <= 0 {
		return nil, fmt.Errorf("segment: input block size must be positive: %d", cfg.InputBlockSize)
	}
	if cfg.OutputBlockSize < cfg.InputBlockSize {
		return nil, fmt.Errorf("segment: output block size %d smaller than input block size %d",
			cfg.OutputBlockSize, cfg.InputBlockSize)
	}
	if src.Channels() <= 0 {
		return nil, fmt.Errorf("segment: source has no channels")
	}

	plan, err := algofft.NewPlanReal64(cfg.OutputBlockSize)
	if err != nil {
		return nil, fmt.Errorf("segment: create FFT plan: %w", err)
	}

	filters := make([]*dcblock.Filter, src.Channels())
	for ch := range filters {
		filters[ch], err = dcblock.New(dcblock.DefaultCutoffHz, 3, float64(src.SampleRate()))
		if err != nil {
			return nil, fmt.Errorf("segment: design highpass: %w", err)
		}
	}

	s := &Segmenter{
		src:     src,
		store:   store,
		cfg:     cfg,
		plan:    plan,
		filters: filters,

		interleaved: make([]float64, cfg.InputBlockSize*src.Channels()),
		chanBuf:     make([]float64, cfg.InputBlockSize),
		padded:      make([]float64, cfg.OutputBlockSize),
		spec:        make([]complex128, cfg.OutputBlockSize/2+1),
	}
	if cfg.RampSize > 0 {
		s.window = ramp.NewWindow(cfg.RampSize)
	}

	return s, nil
}

// NumBlocks returns the block count for a stream of the given length:
// one block per full window, one rounding block for the remainder, and one
// forced zero block to flush the convolution tail.
func NumBlocks(frames, inputBlockSize int) int {
	return frames/inputBlockSize + 2
}

// Run segments the whole source. It must be called exactly once.
func (s *Segmenter) Run(ctx context.Context) (*Result, error) {
	channels := s.src.Channels()
	nBlocks := NumBlocks(s.src.Frames(), s.cfg.InputBlockSize)

	res := &Result{NBlocks: nBlocks}
	if s.cfg.TrackEnvelope {
		res.Envelopes = make([]*Envelope, channels)
		for ch := range res.Envelopes {
			res.Envelopes[ch] = NewEnvelope(len(s.spec))
		}
	}

	for block := 0; block < nBlocks; block++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frames, err := s.src.ReadFrames(s.interleaved)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("segment: read block %d: %w", block, err)
		}

		for ch := 0; ch < channels; ch++ {
			if err := s.processChannel(block, ch, frames, res); err != nil {
				return nil, err
			}
		}
	}

	return res, nil
}

func (s *Segmenter) processChannel(block, ch, frames int, res *Result) error {
	channels := s.src.Channels()

	buf := s.chanBuf[:frames]
	for i := 0; i < frames; i++ {
		buf[i] = s.interleaved[i*channels+ch]
	}

	// The filter only sees real samples; trailing zero blocks leave its
	// state untouched, matching the single-pass streaming contract.
	s.filters[ch].ProcessBlock(buf)

	if s.window != nil && 2*s.window.Size() < frames {
		s.window.Apply(buf)
	}

	copy(s.padded, buf)
	for i := frames; i < len(s.padded); i++ {
		s.padded[i] = 0
	}

	if err := s.plan.Forward(s.spec, s.padded); err != nil {
		return fmt.Errorf("segment: forward FFT block %d channel %d: %w", block, ch, err)
	}

	if res.Envelopes != nil {
		res.Envelopes[ch].Accumulate(s.spec)
	}

	if err := s.store.PutSpectrum(block, ch, s.spec); err != nil {
		return err
	}

	return nil
}
