package overlap

import (
	"context"
	"math"
	"testing"

	"github.com/ajjackson/autoconv2x/blockstore"
)

type memWriter struct {
	samples []int
}

func (w *memWriter) WriteFrames(frames []int) error {
	w.samples = append(w.samples, frames...)
	return nil
}

func newTestStore(t *testing.T) *blockstore.Store {
	t.Helper()
	s, err := blockstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("blockstore.New: %v", err)
	}
	return s
}

func putBlocks(t *testing.T, store *blockstore.Store, blocks [][][]float64) {
	t.Helper()
	for s, block := range blocks {
		if err := store.PutBlock(s, block); err != nil {
			t.Fatalf("PutBlock(%d): %v", s, err)
		}
	}
}

func runAssembler(t *testing.T, store *blockstore.Store, cfg Config) []int {
	t.Helper()
	a, err := New(store, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := &memWriter{}
	if err := a.Run(context.Background(), w); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return w.samples
}

func TestNewRejectsBadConfig(t *testing.T) {
	store := newTestStore(t)

	bad := []Config{
		{Groups: 0, Channels: 1, HopSize: 4, Peak: 1},
		{Groups: 1, Channels: 0, HopSize: 4, Peak: 1},
		{Groups: 1, Channels: 1, HopSize: 0, Peak: 1},
		{Groups: 1, Channels: 1, HopSize: 4, Peak: 0},
		{Groups: 1, Channels: 1, HopSize: 4, Peak: math.NaN()},
	}
	for i, cfg := range bad {
		if _, err := New(store, cfg); err == nil {
			t.Errorf("config %d accepted: %+v", i, cfg)
		}
	}
}

func TestTaillessBlocksConcatenate(t *testing.T) {
	const hop = 4

	store := newTestStore(t)
	putBlocks(t, store, [][][]float64{
		{{0.7, 0, 0, 0, 0, 0, 0, 0}},
		{{0, 0.35, 0, 0, 0, 0, 0, 0}},
		{{0, 0, -0.7, 0, 0, 0, 0, 0}},
	})

	got := runAssembler(t, store, Config{Groups: 3, Channels: 1, HopSize: hop, Peak: 0.7})

	// scale = 0.7/0.7 = 1, so the output is the plain concatenation of the
	// quantized heads.
	want := []int{22937, 0, 0, 0, 0, 11468, 0, 0, 0, 0, -22937, 0}
	if len(got) != len(want) {
		t.Fatalf("output length %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestTailsFoldIntoLaterHops(t *testing.T) {
	const hop = 2

	store := newTestStore(t)
	// block 0 has a tail of two full hops; blocks 1 and 2 are silent
	putBlocks(t, store, [][][]float64{
		{{0, 0, 0.5, 0.5, 0.25, 0.25}},
		{{0, 0, 0, 0, 0, 0}},
		{{0, 0, 0, 0, 0, 0}},
	})

	got := runAssembler(t, store, Config{Groups: 3, Channels: 1, HopSize: hop, Peak: 0.7})

	half := int(math.Round(0.5 * 32767))
	quarter := int(math.Round(0.25 * 32767))
	want := []int{0, 0, half, half, quarter, quarter}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestOverlappingTailsSum(t *testing.T) {
	const hop = 2

	store := newTestStore(t)
	// both blocks contribute 0.2 to the third hop: block 0 via its second
	// tail hop, block 1 via its first
	putBlocks(t, store, [][][]float64{
		{{0, 0, 0, 0, 0.2, 0.2}},
		{{0, 0, 0.2, 0.2, 0, 0}},
		{{0, 0, 0, 0, 0, 0}},
	})

	got := runAssembler(t, store, Config{Groups: 3, Channels: 1, HopSize: hop, Peak: 0.7})

	sum := int(math.Round(0.4 * 32767))
	if got[4] != sum || got[5] != sum {
		t.Errorf("third hop = %v, want both %d", got[4:6], sum)
	}
}

func TestShortTailsDropped(t *testing.T) {
	const hop = 4

	store := newTestStore(t)
	// tails of one sample (< hop) must be discarded, not folded
	putBlocks(t, store, [][][]float64{
		{{0, 0, 0, 0, 0.6}},
		{{0, 0, 0, 0, 0.6}},
	})

	got := runAssembler(t, store, Config{Groups: 2, Channels: 1, HopSize: hop, Peak: 0.7})

	for i, v := range got {
		if v != 0 {
			t.Errorf("sample %d: got %d, want 0 (short tail leaked)", i, v)
		}
	}
}

func TestPeakMapsToHeadroom(t *testing.T) {
	const hop = 4

	store := newTestStore(t)
	putBlocks(t, store, [][][]float64{
		{{0.1, -1.25, 0.2, 0.3, 0, 0, 0, 0}},
	})

	got := runAssembler(t, store, Config{Groups: 1, Channels: 1, HopSize: hop, Peak: 1.25})

	want := int(math.Round(0.7 * 32767))
	peak := 0
	for _, v := range got {
		if v > peak {
			peak = v
		}
		if -v > peak {
			peak = -v
		}
	}
	if peak != want {
		t.Errorf("quantized peak = %d, want %d", peak, want)
	}
}

func TestClipping(t *testing.T) {
	const hop = 2

	store := newTestStore(t)
	// with a deliberately understated peak the scaled signal exceeds full
	// scale and must clip, not wrap
	putBlocks(t, store, [][][]float64{
		{{4, -4, 0, 0}},
	})

	got := runAssembler(t, store, Config{Groups: 1, Channels: 1, HopSize: hop, Peak: 1})

	if got[0] != 32767 || got[1] != -32767 {
		t.Errorf("clipped samples = %v, want [32767 -32767]", got[:2])
	}
}

func TestStereoInterleaving(t *testing.T) {
	const hop = 2

	store := newTestStore(t)
	putBlocks(t, store, [][][]float64{
		{
			{0.7, 0, 0, 0},
			{0, 0.7, 0, 0},
		},
	})

	got := runAssembler(t, store, Config{Groups: 1, Channels: 2, HopSize: hop, Peak: 0.7})

	full := int(math.Round(0.7 * 32767))
	want := []int{full, 0, 0, full}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMissingBlockAborts(t *testing.T) {
	store := newTestStore(t)

	a, err := New(store, Config{Groups: 2, Channels: 1, HopSize: 2, Peak: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Run(context.Background(), &memWriter{}); err == nil {
		t.Fatal("Run succeeded with empty store")
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	store := newTestStore(t)
	putBlocks(t, store, [][][]float64{{{0, 0, 0, 0}}})

	a, err := New(store, Config{Groups: 1, Channels: 1, HopSize: 2, Peak: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx, &memWriter{}); err == nil {
		t.Fatal("Run succeeded with canceled context")
	}
}
