package mix

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/ajjackson/autoconv2x/blockstore"
	"github.com/ajjackson/autoconv2x/internal/ramp"
)

// peakFloor bounds the global peak away from zero so an all-silent input
// still normalizes without dividing by zero.
const peakFloor = 1e-6

// Config controls one mixing pass.
type Config struct {
	Channels        int
	InputBlockSize  int
	OutputBlockSize int

	// LimitBlocks, when positive, excludes pairs whose indices differ by
	// more than this many blocks, keeping distant material unmixed.
	LimitBlocks int

	// Envelopes holds one smoothed per-channel envelope to divide the mixed
	// spectrum by; nil disables envelope preservation.
	Envelopes [][]float64

	// Workers bounds the worker pool; 0 selects GOMAXPROCS.
	Workers int

	// Progress, when set, is called after each completed group.
	Progress func(done, total int)
}

// Mixer consumes a plan and the stored spectra, producing one multichannel
// time-domain block per group and tracking the single global peak.
type Mixer struct {
	store *blockstore.Store
	plan  Plan
	cfg   Config

	mu   sync.Mutex
	peak float64
	done int
}

// NewMixer validates the configuration and prepares a mixer.
func NewMixer(store *blockstore.Store, plan Plan, cfg Config) (*Mixer, error) {
	if cfg.Channels <= 0 {
		return nil, fmt.Errorf("mix: channel count must be positive: %d", cfg.Channels)
	}
	if cfg.InputBlockSize <= 0 || cfg.OutputBlockSize < 2*cfg.InputBlockSize {
		return nil, fmt.Errorf("mix: invalid block sizes %d/%d", cfg.InputBlockSize, cfg.OutputBlockSize)
	}
	if cfg.Envelopes != nil {
		if len(cfg.Envelopes) != cfg.Channels {
			return nil, fmt.Errorf("mix: %d envelopes for %d channels", len(cfg.Envelopes), cfg.Channels)
		}
		for ch, env := range cfg.Envelopes {
			if len(env) != cfg.OutputBlockSize/2+1 {
				return nil, fmt.Errorf("mix: envelope %d has %d bins, want %d", ch, len(env), cfg.OutputBlockSize/2+1)
			}
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	return &Mixer{store: store, plan: plan, cfg: cfg, peak: peakFloor}, nil
}

// Run mixes every group and returns the global peak magnitude across all
// blocks and channels. Any group failure aborts the whole pass.
func (m *Mixer) Run(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	groups := make(chan int)
	errc := make(chan error, m.cfg.Workers)

	var wg sync.WaitGroup
	for w := 0; w < m.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker, err := m.newWorker()
			if err != nil {
				errc <- err
				cancel()
				return
			}
			for s := range groups {
				if err := worker.mixGroup(ctx, s); err != nil {
					errc <- err
					cancel()
					return
				}
			}
		}()
	}

feed:
	for s := range m.plan {
		select {
		case groups <- s:
		case <-ctx.Done():
			break feed
		}
	}
	close(groups)
	wg.Wait()

	select {
	case err := <-errc:
		return 0, err
	default:
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return m.peak, nil
}

func (m *Mixer) observe(blockPeak float64) {
	m.mu.Lock()
	if blockPeak > m.peak {
		m.peak = blockPeak
	}
	m.done++
	done := m.done
	m.mu.Unlock()

	if m.cfg.Progress != nil {
		m.cfg.Progress(done, len(m.plan))
	}
}

// worker holds the per-goroutine FFT plan and scratch buffers.
type worker struct {
	m *Mixer

	plan     *algofft.PlanRealT[float64, complex128]
	window   *ramp.Window
	acc      []complex128
	timeBuf  []float64
	rotated  []float64
	channels [][]float64
}

func (m *Mixer) newWorker() (*worker, error) {
	plan, err := algofft.NewPlanReal64(m.cfg.OutputBlockSize)
	if err != nil {
		return nil, fmt.Errorf("mix: create FFT plan: %w", err)
	}

	w := &worker{
		m:        m,
		plan:     plan,
		acc:      make([]complex128, m.cfg.OutputBlockSize/2+1),
		timeBuf:  make([]float64, m.cfg.OutputBlockSize),
		channels: make([][]float64, m.cfg.Channels),
	}
	for ch := range w.channels {
		w.channels[ch] = make([]float64, m.cfg.OutputBlockSize)
	}

	if extra := m.cfg.OutputBlockSize - 2*m.cfg.InputBlockSize; extra > 0 {
		w.window = ramp.NewWindow(extra / 2)
		w.rotated = make([]float64, m.cfg.OutputBlockSize)
	}

	return w, nil
}

func (w *worker) mixGroup(ctx context.Context, s int) error {
	cfg := w.m.cfg
	blockPeak := 0.0

	for ch := 0; ch < cfg.Channels; ch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		for i := range w.acc {
			w.acc[i] = 0
		}

		for _, pc := range w.m.plan[s] {
			if cfg.LimitBlocks > 0 && pc.J-pc.I > cfg.LimitBlocks {
				continue
			}

			spec1, err := w.m.store.GetSpectrum(pc.I, ch)
			if err != nil {
				return err
			}
			spec2 := spec1
			if pc.J != pc.I {
				spec2, err = w.m.store.GetSpectrum(pc.J, ch)
				if err != nil {
					return err
				}
			}

			mult := complex(float64(pc.Mult), 0)
			for k := range w.acc {
				w.acc[k] += spec1[k] * spec2[k] * mult
			}
		}

		if cfg.Envelopes != nil {
			env := cfg.Envelopes[ch]
			for k := range w.acc {
				w.acc[k] /= complex(env[k], 0)
			}
		}

		if err := w.plan.Inverse(w.timeBuf, w.acc); err != nil {
			return fmt.Errorf("mix: inverse FFT group %d channel %d: %w", s, ch, err)
		}

		out := w.timeBuf
		if w.window != nil {
			// Undo the circular wrap-around of the inverse transform in the
			// extra decay region: shift it to the block edges and fade.
			rotateRight(w.rotated, w.timeBuf, w.window.Size())
			w.window.Apply(w.rotated)
			out = w.rotated
		}

		for _, v := range out {
			if v > blockPeak {
				blockPeak = v
			} else if -v > blockPeak {
				blockPeak = -v
			}
		}

		copy(w.channels[ch], out)
	}

	if err := w.m.store.PutBlock(s, w.channels); err != nil {
		return err
	}

	w.m.observe(blockPeak)

	return nil
}

// rotateRight writes src circularly shifted right by k into dst.
func rotateRight(dst, src []float64, k int) {
	n := len(src)
	k %= n
	copy(dst[k:], src[:n-k])
	copy(dst[:k], src[n-k:])
}
