// Package wavio handles the PCM edges of the pipeline: streaming reads of
// the transcoded 16-bit WAV intermediate, sequential writes of the final
// output, and the external transcode step that produces the intermediate.
package wavio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Reader streams interleaved samples from a 16-bit PCM WAV file,
// normalized to [-1, 1).
type Reader struct {
	f          *os.File
	sampleRate int
	channels   int
	frames     int
	pos        int
	raw        []byte
}

// OpenReader opens a WAV file for streaming. Only 16-bit PCM is accepted;
// the transcode step guarantees that format.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavio: open %s: %w", path, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("wavio: %s is not a valid WAV file", path)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("wavio: locate PCM data in %s: %w", path, err)
	}
	if dec.BitDepth != 16 {
		f.Close()
		return nil, fmt.Errorf("wavio: %s has %d-bit samples, want 16", path, dec.BitDepth)
	}

	channels := int(dec.NumChans)
	frames := int(dec.PCMLen()) / (channels * 2)

	return &Reader{
		f:          f,
		sampleRate: int(dec.SampleRate),
		channels:   channels,
		frames:     frames,
	}, nil
}

// SampleRate returns the stream's sample rate in Hz.
func (r *Reader) SampleRate() int { return r.sampleRate }

// Channels returns the number of interleaved channels.
func (r *Reader) Channels() int { return r.channels }

// Frames returns the total number of sample frames.
func (r *Reader) Frames() int { return r.frames }

// ReadFrames fills dst with interleaved normalized samples and returns the
// number of whole frames read. dst's length must be a multiple of Channels.
// io.EOF signals exhaustion; a short final read is not an error.
func (r *Reader) ReadFrames(dst []float64) (int, error) {
	if len(dst)%r.channels != 0 {
		return 0, fmt.Errorf("wavio: buffer length %d not a multiple of %d channels", len(dst), r.channels)
	}

	// Never read past the data chunk; some files append trailing chunks.
	wantFrames := len(dst) / r.channels
	if left := r.frames - r.pos; wantFrames > left {
		wantFrames = left
	}
	if wantFrames <= 0 {
		return 0, io.EOF
	}

	want := wantFrames * r.channels * 2
	if cap(r.raw) < want {
		r.raw = make([]byte, want)
	}
	raw := r.raw[:want]

	n, err := io.ReadFull(r.f, raw)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("wavio: read: %w", err)
	}

	frames := n / (2 * r.channels)
	samples := frames * r.channels
	for i := 0; i < samples; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		dst[i] = float64(v) / 32768
	}

	r.pos += frames
	if frames == 0 {
		return 0, io.EOF
	}
	return frames, err
}

// Close releases the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// Writer writes interleaved 16-bit PCM frames to a WAV file.
type Writer struct {
	f   *os.File
	enc *wav.Encoder
	fmt *audio.Format
}

// NewWriter creates the output file and its WAV header.
func NewWriter(path string, sampleRate, channels int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wavio: create %s: %w", path, err)
	}

	return &Writer{
		f:   f,
		enc: wav.NewEncoder(f, sampleRate, 16, channels, 1),
		fmt: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
	}, nil
}

// WriteFrames appends interleaved 16-bit samples.
func (w *Writer) WriteFrames(samples []int) error {
	buf := &audio.IntBuffer{Format: w.fmt, Data: samples, SourceBitDepth: 16}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("wavio: write frames: %w", err)
	}
	return nil
}

// Close finalizes the WAV header and closes the file.
func (w *Writer) Close() error {
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("wavio: finalize: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("wavio: close: %w", err)
	}
	return nil
}
