// Package overlap folds the mixed blocks back into one continuous waveform.
// The fold is inherently sequential: every hop depends on the residual tails
// of all earlier blocks, so blocks are consumed strictly in group order.
package overlap

import (
	"context"
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/ajjackson/autoconv2x/blockstore"
)

// headroom maps the observed global peak to 70% of full scale.
const headroom = 0.7

// FrameWriter receives interleaved 16-bit samples, one call per hop.
type FrameWriter interface {
	WriteFrames(samples []int) error
}

// Config controls one assembly pass.
type Config struct {
	Groups   int
	Channels int
	// HopSize is the input block size: the stride between mixed blocks.
	HopSize int
	// Peak is the global maximum magnitude reported by the mixing stage.
	// The output is scaled by headroom/Peak before quantization.
	Peak float64

	// Progress, when set, is called after each emitted hop.
	Progress func(done, total int)
}

// Assembler folds mixed blocks hop by hop and writes quantized PCM.
type Assembler struct {
	store *blockstore.Store
	cfg   Config
}

// New validates the configuration and prepares an assembler.
func New(store *blockstore.Store, cfg Config) (*Assembler, error) {
	if cfg.Groups <= 0 || cfg.Channels <= 0 || cfg.HopSize <= 0 {
		return nil, fmt.Errorf("overlap: invalid config %+v", cfg)
	}
	if cfg.Peak <= 0 || math.IsNaN(cfg.Peak) || math.IsInf(cfg.Peak, 0) {
		return nil, fmt.Errorf("overlap: peak must be positive and finite: %v", cfg.Peak)
	}

	return &Assembler{store: store, cfg: cfg}, nil
}

// Run consumes every mixed block in group order and writes the synthesized
// waveform: (Groups * HopSize) frames of 16-bit PCM.
func (a *Assembler) Run(ctx context.Context, w FrameWriter) error {
	cfg := a.cfg
	scale := headroom / cfg.Peak

	hop := make([][]float64, cfg.Channels)
	scaled := make([][]float64, cfg.Channels)
	for ch := range hop {
		hop[ch] = make([]float64, cfg.HopSize)
		scaled[ch] = make([]float64, cfg.HopSize)
	}
	frame := make([]int, cfg.HopSize*cfg.Channels)

	// tails[k][ch] is the unconsumed remainder of an earlier block
	var tails [][][]float64

	for s := 0; s < cfg.Groups; s++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		block, err := a.store.GetBlock(s)
		if err != nil {
			return err
		}
		if len(block) != cfg.Channels {
			return fmt.Errorf("overlap: group %d has %d channels, want %d", s, len(block), cfg.Channels)
		}

		// Tails too short to fill a whole hop are dropped.
		kept := tails[:0]
		for _, tail := range tails {
			if len(tail[0]) >= cfg.HopSize {
				kept = append(kept, tail)
			}
		}
		tails = kept

		for ch := range hop {
			copy(hop[ch], block[ch][:cfg.HopSize])
			for k, tail := range tails {
				vecmath.AddBlockInPlace(hop[ch], tail[ch][:cfg.HopSize])
				tails[k][ch] = tail[ch][cfg.HopSize:]
			}
		}
		tails = append(tails, remainders(block, cfg.HopSize))

		for ch := range hop {
			vecmath.ScaleBlock(scaled[ch], hop[ch], scale)
		}
		quantizeFrames(frame, scaled)

		if err := w.WriteFrames(frame); err != nil {
			return fmt.Errorf("overlap: write hop %d: %w", s, err)
		}

		if cfg.Progress != nil {
			cfg.Progress(s+1, cfg.Groups)
		}
	}

	return nil
}

func remainders(block [][]float64, hop int) [][]float64 {
	tail := make([][]float64, len(block))
	for ch := range block {
		tail[ch] = block[ch][hop:]
	}
	return tail
}

// quantizeFrames clips each sample to [-1, 1] and quantizes to 16-bit,
// interleaving channels into dst.
func quantizeFrames(dst []int, channels [][]float64) {
	nch := len(channels)
	for i := range channels[0] {
		for ch := 0; ch < nch; ch++ {
			v := channels[ch][i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			dst[i*nch+ch] = int(math.Round(v * 32767))
		}
	}
}
