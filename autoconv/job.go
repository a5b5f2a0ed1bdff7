package autoconv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajjackson/autoconv2x/blockstore"
	"github.com/ajjackson/autoconv2x/mix"
	"github.com/ajjackson/autoconv2x/overlap"
	"github.com/ajjackson/autoconv2x/segment"
	"github.com/ajjackson/autoconv2x/wavio"
)

// transcodeFn is a seam for tests that substitute the external transcoder.
var transcodeFn = wavio.Transcode

// Stats reports what a completed job did.
type Stats struct {
	SampleRate      int
	Channels        int
	InputBlockSize  int
	OutputBlockSize int
	Blocks          int
	Groups          int
	Peak            float64
	// TempBytes is the total temporary disk space the job used, including
	// the transcoded PCM intermediate.
	TempBytes int64
}

// Process runs the full pipeline for one input/output pair. All failures
// abort the job without partial output; the temporary store is purged on
// every path.
func Process(ctx context.Context, inputPath, outputPath string, cfg Config) (*Stats, error) {
	cfg = cfg.withDefaults()

	if _, err := os.Stat(inputPath); err != nil {
		return nil, fmt.Errorf("autoconv: input file: %w", err)
	}

	store, err := blockstore.New(cfg.TempDir)
	if err != nil {
		return nil, err
	}

	stats, err := run(ctx, store, inputPath, outputPath, cfg)

	purged, purgeErr := store.PurgeAll()
	if err != nil {
		return nil, err
	}
	if purgeErr != nil {
		return nil, purgeErr
	}
	stats.TempBytes += purged

	return stats, nil
}

func run(ctx context.Context, store *blockstore.Store, inputPath, outputPath string, cfg Config) (*Stats, error) {
	tmpWAV := filepath.Join(store.Dir(), "input.wav")
	if err := transcodeFn(ctx, inputPath, tmpWAV, cfg.SampleRate); err != nil {
		return nil, err
	}
	defer os.Remove(tmpWAV)

	src, err := wavio.OpenReader(tmpWAV)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	sampleRate := src.SampleRate()
	inputBlockSize := segment.OptimalFFTSize(int(cfg.BlockSeconds * float64(sampleRate)))
	outputBlockSize := inputBlockSize * cfg.Mode.outputBlockFactor()

	rampSize := 0
	if cfg.Mode == ModeKeep && cfg.LimitBlocks > 0 {
		rampSize = inputRampMilliseconds * sampleRate / 1000
	}

	stats := &Stats{
		SampleRate:      sampleRate,
		Channels:        src.Channels(),
		InputBlockSize:  inputBlockSize,
		OutputBlockSize: outputBlockSize,
	}

	seg, err := segment.New(src, store, segment.Config{
		InputBlockSize:  inputBlockSize,
		OutputBlockSize: outputBlockSize,
		RampSize:        rampSize,
		TrackEnvelope:   cfg.Mode == ModeKeep,
	})
	if err != nil {
		return nil, err
	}
	segRes, err := seg.Run(ctx)
	if err != nil {
		return nil, err
	}
	stats.Blocks = segRes.NBlocks
	if cfg.Progress != nil {
		cfg.Progress(StageSegment, segRes.NBlocks, segRes.NBlocks)
	}

	var envelopes [][]float64
	if segRes.Envelopes != nil {
		envelopes = make([][]float64, len(segRes.Envelopes))
		for ch, env := range segRes.Envelopes {
			env.Smooth(sampleRate)
			envelopes[ch] = env.Bins()
		}
	}

	plan := mix.NewPlan(segRes.NBlocks)
	stats.Groups = len(plan)

	mixer, err := mix.NewMixer(store, plan, mix.Config{
		Channels:        stats.Channels,
		InputBlockSize:  inputBlockSize,
		OutputBlockSize: outputBlockSize,
		LimitBlocks:     cfg.LimitBlocks,
		Envelopes:       envelopes,
		Workers:         cfg.Workers,
		Progress:        stageProgress(cfg.Progress, StageMix),
	})
	if err != nil {
		return nil, err
	}
	peak, err := mixer.Run(ctx)
	if err != nil {
		return nil, err
	}
	stats.Peak = peak

	out, err := wavio.NewWriter(outputPath, sampleRate, stats.Channels)
	if err != nil {
		return nil, err
	}

	asm, err := overlap.New(store, overlap.Config{
		Groups:   len(plan),
		Channels: stats.Channels,
		HopSize:  inputBlockSize,
		Peak:     peak,
		Progress: stageProgress(cfg.Progress, StageAssemble),
	})
	if err != nil {
		out.Close()
		return nil, err
	}
	if err := asm.Run(ctx, out); err != nil {
		out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	// The transcoded intermediate counts toward temporary disk usage.
	if info, err := os.Stat(tmpWAV); err == nil {
		stats.TempBytes += info.Size()
	}

	return stats, nil
}

func stageProgress(fn func(Stage, int, int), stage Stage) func(int, int) {
	if fn == nil {
		return nil
	}
	return func(done, total int) { fn(stage, done, total) }
}

// ModeOutputPath derives the per-mode output name used by ProcessModes:
// base_k1.ext for ModeAlign, base_k2.ext for ModeKeep.
func ModeOutputPath(outputPath string, mode EnvelopeMode) string {
	ext := filepath.Ext(outputPath)
	base := strings.TrimSuffix(outputPath, ext)

	switch mode {
	case ModeAlign:
		return base + "_k1" + ext
	case ModeKeep:
		return base + "_k2" + ext
	default:
		return outputPath
	}
}

// ProcessModes runs the pipeline twice, once in ModeAlign and once in
// ModeKeep, writing two sample-aligned outputs whose names derive from
// outputPath. Both runs share the configuration; the two files let the
// results be compared or crossfaded directly.
func ProcessModes(ctx context.Context, inputPath, outputPath string, cfg Config) ([]*Stats, error) {
	all := make([]*Stats, 0, 2)
	for _, mode := range []EnvelopeMode{ModeAlign, ModeKeep} {
		cfg.Mode = mode
		stats, err := Process(ctx, inputPath, ModeOutputPath(outputPath, mode), cfg)
		if err != nil {
			return all, err
		}
		all = append(all, stats)
	}
	return all, nil
}
