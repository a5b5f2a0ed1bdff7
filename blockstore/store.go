// Package blockstore provides the disk-backed keyed store that connects the
// processing stages. The pairwise mixing stage performs on the order of
// n_blocks² spectrum reads, far too much data to keep resident, so every
// spectrum and mixed block is written once and read back by key.
//
// Spectra are write-once/read-many, mixed blocks write-once/read-once.
// Reads of distinct keys are safe concurrently; no key is ever written by
// more than one worker.
package blockstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ErrKeyMissing indicates a read of a key that was never written. This never
// happens in correct operation; it means the mix plan and the segmenter
// disagree about what exists.
var ErrKeyMissing = errors.New("blockstore: key missing")

// entry file layout: magic, version, kind, payload.
const (
	magic   = "ACVB"
	version = 1

	kindSpectrum = 1
	kindBlock    = 2
)

// Store maps (block, channel) keys to spectra and group keys to mixed
// multichannel blocks, one file per entry under a job directory.
type Store struct {
	dir   string
	owned bool
	bytes atomic.Int64
}

// New creates a store rooted at dir. An empty dir selects an ephemeral
// directory that PurgeAll removes along with the entries.
func New(dir string) (*Store, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "autoconv2x")
		if err != nil {
			return nil, fmt.Errorf("blockstore: create temp dir: %w", err)
		}
		return &Store{dir: tmp, owned: true}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blockstore: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// BytesWritten returns the total payload bytes written so far.
func (s *Store) BytesWritten() int64 { return s.bytes.Load() }

func (s *Store) spectrumPath(block, channel int) string {
	return filepath.Join(s.dir, fmt.Sprintf("spec_%d_%d.acvb", block, channel))
}

func (s *Store) blockPath(group int) string {
	return filepath.Join(s.dir, fmt.Sprintf("blk_%d.acvb", group))
}

// PutSpectrum persists one channel's spectrum for one input block.
// Overwriting an existing key is allowed and replaces the entry.
func (s *Store) PutSpectrum(block, channel int, spec []complex128) error {
	buf := make([]byte, 10+16*len(spec))
	writeHeader(buf, kindSpectrum, uint32(len(spec)))

	off := 10
	for _, c := range spec {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(real(c)))
		binary.LittleEndian.PutUint64(buf[off+8:], math.Float64bits(imag(c)))
		off += 16
	}

	return s.writeEntry(s.spectrumPath(block, channel), buf)
}

// GetSpectrum loads one channel's spectrum for one input block.
func (s *Store) GetSpectrum(block, channel int) ([]complex128, error) {
	buf, err := s.readEntry(s.spectrumPath(block, channel), kindSpectrum)
	if err != nil {
		return nil, fmt.Errorf("%w (spectrum block=%d channel=%d)", err, block, channel)
	}

	n := binary.LittleEndian.Uint32(buf[6:])
	if len(buf) != int(10+16*n) {
		return nil, fmt.Errorf("blockstore: truncated spectrum entry block=%d channel=%d", block, channel)
	}

	spec := make([]complex128, n)
	off := 10
	for i := range spec {
		re := math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
		im := math.Float64frombits(binary.LittleEndian.Uint64(buf[off+8:]))
		spec[i] = complex(re, im)
		off += 16
	}

	return spec, nil
}

// PutBlock persists a mixed multichannel block for one mix group.
// All channels must have the same length.
func (s *Store) PutBlock(group int, channels [][]float64) error {
	samples := 0
	if len(channels) > 0 {
		samples = len(channels[0])
	}
	for _, ch := range channels {
		if len(ch) != samples {
			return fmt.Errorf("blockstore: ragged channels in block group=%d", group)
		}
	}

	buf := make([]byte, 14+8*samples*len(channels))
	writeHeader(buf, kindBlock, uint32(len(channels)))
	binary.LittleEndian.PutUint32(buf[10:], uint32(samples))

	off := 14
	for _, ch := range channels {
		for _, v := range ch {
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
			off += 8
		}
	}

	return s.writeEntry(s.blockPath(group), buf)
}

// GetBlock loads a mixed multichannel block by group index.
func (s *Store) GetBlock(group int) ([][]float64, error) {
	buf, err := s.readEntry(s.blockPath(group), kindBlock)
	if err != nil {
		return nil, fmt.Errorf("%w (block group=%d)", err, group)
	}

	nch := binary.LittleEndian.Uint32(buf[6:])
	samples := binary.LittleEndian.Uint32(buf[10:])
	if len(buf) != int(14+8*samples*nch) {
		return nil, fmt.Errorf("blockstore: truncated block entry group=%d", group)
	}

	channels := make([][]float64, nch)
	off := 14
	for ch := range channels {
		channels[ch] = make([]float64, samples)
		for i := range channels[ch] {
			channels[ch][i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
			off += 8
		}
	}

	return channels, nil
}

// PurgeAll removes every entry, reclaims the directory when it was created
// by New, and returns the total bytes the store occupied on disk.
func (s *Store) PurgeAll() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("blockstore: list %s: %w", s.dir, err)
	}

	var total int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".acvb" {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
		if err := os.Remove(path); err != nil {
			return total, fmt.Errorf("blockstore: remove %s: %w", path, err)
		}
	}

	if s.owned {
		// Best effort: the directory may hold unrelated files.
		_ = os.Remove(s.dir)
	}

	return total, nil
}

func writeHeader(buf []byte, kind byte, count uint32) {
	copy(buf, magic)
	buf[4] = version
	buf[5] = kind
	binary.LittleEndian.PutUint32(buf[6:], count)
}

func (s *Store) writeEntry(path string, buf []byte) error {
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("blockstore: write %s: %w", path, err)
	}
	s.bytes.Add(int64(len(buf)))
	return nil
}

func (s *Store) readEntry(path string, kind byte) ([]byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyMissing
		}
		return nil, fmt.Errorf("blockstore: read %s: %w", path, err)
	}

	if len(buf) < 10 || string(buf[:4]) != magic {
		return nil, fmt.Errorf("blockstore: bad entry magic in %s", path)
	}
	if buf[4] != version {
		return nil, fmt.Errorf("blockstore: unsupported entry version %d in %s", buf[4], path)
	}
	if buf[5] != kind {
		return nil, fmt.Errorf("blockstore: wrong entry kind %d in %s", buf[5], path)
	}

	return buf, nil
}
