// Package autoconv runs the whole autoconvolution pipeline: transcode the
// input to a fixed-format PCM intermediate, segment it into block spectra,
// mix every block pair whose indices sum to a common output position, and
// fold the mixed blocks back into a normalized 16-bit WAV roughly twice the
// input's length.
package autoconv

// EnvelopeMode selects the output sizing and spectral normalization variant.
type EnvelopeMode int

const (
	// ModeNone mixes without envelope preservation; the output block is
	// twice the input block.
	ModeNone EnvelopeMode = iota
	// ModeAlign mixes without envelope preservation but with the extra
	// decay region of the envelope modes, so its output aligns sample for
	// sample with ModeKeep output.
	ModeAlign
	// ModeKeep divides each mixed spectrum by the input's smoothed spectral
	// envelope, preserving the overall tonal balance.
	ModeKeep
)

// inputRampMilliseconds is the edge fade applied during segmentation when
// envelope preservation is combined with an adjacency limit.
const inputRampMilliseconds = 10

// Config carries the recognized processing options.
type Config struct {
	// BlockSeconds is the target block duration before FFT size
	// optimization. Default 60.
	BlockSeconds float64

	// LimitBlocks, when positive, restricts mixing to block pairs at most
	// this many blocks apart.
	LimitBlocks int

	// SampleRate resamples the input during transcoding; 0 keeps the
	// source rate.
	SampleRate int

	// Mode selects envelope handling.
	Mode EnvelopeMode

	// TempDir backs the block store; empty selects an ephemeral directory.
	TempDir string

	// Workers bounds the mixing worker pool; 0 selects GOMAXPROCS.
	Workers int

	// Progress, when set, receives per-stage progress updates.
	Progress func(stage Stage, done, total int)
}

// Stage identifies a pipeline phase for progress reporting.
type Stage int

const (
	StageSegment Stage = iota
	StageMix
	StageAssemble
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageSegment:
		return "segment"
	case StageMix:
		return "mix"
	case StageAssemble:
		return "assemble"
	default:
		return "unknown"
	}
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.BlockSeconds <= 0 {
		cfg.BlockSeconds = 60
	}
	return cfg
}

// outputBlockFactor returns the output block size as a multiple of the input
// block size: the envelope modes carry an extra decay region.
func (m EnvelopeMode) outputBlockFactor() int {
	if m == ModeNone {
		return 2
	}
	return 3
}
