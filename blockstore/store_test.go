package blockstore

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestSpectrumRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	spec := []complex128{complex(1, -2), complex(0, 0), complex(-3.5, 4.25)}
	if err := s.PutSpectrum(3, 1, spec); err != nil {
		t.Fatalf("PutSpectrum: %v", err)
	}

	got, err := s.GetSpectrum(3, 1)
	if err != nil {
		t.Fatalf("GetSpectrum: %v", err)
	}
	if len(got) != len(spec) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(spec))
	}
	for i := range spec {
		if got[i] != spec[i] {
			t.Errorf("bin %d: got %v, want %v", i, got[i], spec[i])
		}
	}
}

func TestBlockRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	channels := [][]float64{
		{0.1, -0.2, 0.3, -0.4},
		{1, 2, 3, 4},
	}
	if err := s.PutBlock(7, channels); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	got, err := s.GetBlock(7)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("channel count: got %d, want 2", len(got))
	}
	for ch := range channels {
		for i := range channels[ch] {
			if got[ch][i] != channels[ch][i] {
				t.Errorf("channel %d sample %d: got %v, want %v", ch, i, got[ch][i], channels[ch][i])
			}
		}
	}
}

func TestGetMissingKey(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := s.GetSpectrum(0, 0); !errors.Is(err, ErrKeyMissing) {
		t.Fatalf("GetSpectrum on empty store: %v, want ErrKeyMissing", err)
	}
	if _, err := s.GetBlock(0); !errors.Is(err, ErrKeyMissing) {
		t.Fatalf("GetBlock on empty store: %v, want ErrKeyMissing", err)
	}
}

func TestPutOverwrites(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.PutSpectrum(0, 0, []complex128{1, 2, 3}); err != nil {
		t.Fatalf("PutSpectrum: %v", err)
	}
	if err := s.PutSpectrum(0, 0, []complex128{9}); err != nil {
		t.Fatalf("PutSpectrum overwrite: %v", err)
	}

	got, err := s.GetSpectrum(0, 0)
	if err != nil {
		t.Fatalf("GetSpectrum: %v", err)
	}
	if len(got) != 1 || got[0] != 9 {
		t.Fatalf("overwrite not effective: %v", got)
	}
}

func TestRejectsWrongKind(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.PutSpectrum(5, 0, []complex128{1}); err != nil {
		t.Fatalf("PutSpectrum: %v", err)
	}

	// A block read of a spectrum entry must fail, not misparse.
	if err := os.Rename(
		filepath.Join(s.Dir(), "spec_5_0.acvb"),
		filepath.Join(s.Dir(), "blk_5.acvb"),
	); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := s.GetBlock(5); err == nil {
		t.Fatal("GetBlock accepted a spectrum entry")
	}
}

func TestPurgeAllReportsBytes(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.PutSpectrum(0, 0, make([]complex128, 100)); err != nil {
		t.Fatalf("PutSpectrum: %v", err)
	}
	if err := s.PutBlock(0, [][]float64{make([]float64, 50)}); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	want := s.BytesWritten()
	if want == 0 {
		t.Fatal("BytesWritten is zero after writes")
	}

	total, err := s.PurgeAll()
	if err != nil {
		t.Fatalf("PurgeAll: %v", err)
	}
	if total != want {
		t.Errorf("PurgeAll bytes = %d, want %d", total, want)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("store entries remain after PurgeAll: %d", len(entries))
	}
}

func TestEphemeralDirRemoved(t *testing.T) {
	s, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir := s.Dir()

	if err := s.PutBlock(0, [][]float64{{1}}); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	if _, err := s.PurgeAll(); err != nil {
		t.Fatalf("PurgeAll: %v", err)
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("ephemeral dir still present: %s", dir)
	}
}

func TestConcurrentDistinctKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			spec := []complex128{complex(float64(i), 0)}
			if err := s.PutSpectrum(i, 0, spec); err != nil {
				t.Errorf("PutSpectrum %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := s.GetSpectrum(i, 0)
			if err != nil {
				t.Errorf("GetSpectrum %d: %v", i, err)
				return
			}
			if real(got[0]) != float64(i) {
				t.Errorf("spectrum %d: got %v", i, got[0])
			}
		}(i)
	}
	wg.Wait()
}
