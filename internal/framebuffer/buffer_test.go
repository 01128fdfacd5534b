package framebuffer

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func pairN(n uint64, released *atomic.Int64) Pair {
	hook := func() { released.Add(1) }
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	return Pair{
		Original:  NewFrame(img, n, time.Now(), hook),
		Processed: NewFrame(img, n, time.Now(), hook),
		Text:      fmt.Sprintf("frame %d", n),
	}
}

func TestSnapshotBeforePublish(t *testing.T) {
	b := New()
	v, ok := b.Snapshot()
	if ok || v.HasCurrentPair() {
		t.Fatal("empty buffer reported a pair")
	}
	if v.Original() != nil || v.Processed() != nil || v.StatusText() != "" {
		t.Error("empty view should be zero")
	}
	if b.HasCurrentPair() || b.Version() != 0 {
		t.Error("empty buffer convenience accessors")
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	var released atomic.Int64
	b := New()
	p := pairN(1, &released)
	b.Publish(p)

	v1, ok1 := b.Snapshot()
	v2, ok2 := b.Snapshot()
	if !ok1 || !ok2 {
		t.Fatal("Snapshot after Publish returned false")
	}
	if v1 != v2 {
		t.Errorf("snapshots differ: %+v vs %+v", v1, v2)
	}
	if v1.Original() != p.Original || v1.Processed() != p.Processed || v1.StatusText() != "frame 1" {
		t.Error("snapshot does not match the published pair")
	}
	if v1.Version() != 1 {
		t.Errorf("Version = %d, want 1", v1.Version())
	}
	if released.Load() != 0 {
		t.Error("reading must not release frames")
	}
}

func TestPublishReleasesPreviousOnce(t *testing.T) {
	var released atomic.Int64
	b := New()

	first := pairN(1, &released)
	b.Publish(first)
	b.Publish(pairN(2, &released))

	if !first.Original.Released() || !first.Processed.Released() {
		t.Error("previous frames not released")
	}
	if got := released.Load(); got != 2 {
		t.Errorf("release hooks ran %d times, want 2", got)
	}

	// Releasing again is a no-op.
	if first.Original.Release() {
		t.Error("second Release reported first")
	}
	if got := released.Load(); got != 2 {
		t.Errorf("release hooks ran %d times after double release", got)
	}
}

func TestSharedFrameReleasedOnce(t *testing.T) {
	var released atomic.Int64
	b := New()

	shared := NewFrame(image.NewGray(image.Rect(0, 0, 1, 1)), 1, time.Now(), func() { released.Add(1) })
	b.Publish(Pair{Original: shared, Processed: shared})
	b.Publish(pairN(2, &released))

	if got := released.Load(); got != 1 {
		t.Errorf("shared frame released %d times, want 1", got)
	}
	if st := b.Stats(); st.Released != 1 {
		t.Errorf("Stats.Released = %d, want 1", st.Released)
	}
}

func TestRepublishedFrameNotReleased(t *testing.T) {
	var released atomic.Int64
	b := New()

	p := pairN(1, &released)
	b.Publish(p)
	// Same original, new processed output.
	b.Publish(Pair{Original: p.Original, Processed: NewFrame(nil, 1, time.Now(), nil)})

	if p.Original.Released() {
		t.Error("frame still in the current pair was released")
	}
	if !p.Processed.Released() {
		t.Error("replaced frame was not released")
	}
}

func TestStatsDropped(t *testing.T) {
	var released atomic.Int64
	b := New()

	b.Publish(pairN(1, &released))
	b.Publish(pairN(2, &released)) // 1 never observed
	b.Snapshot()
	b.Publish(pairN(3, &released)) // 2 observed

	st := b.Stats()
	if st.Published != 3 || st.Dropped != 1 {
		t.Errorf("Stats = %+v, want Published 3 Dropped 1", st)
	}
}

func TestNoTornPairs(t *testing.T) {
	var released atomic.Int64
	b := New()
	const frames = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= frames; i++ {
			b.Publish(pairN(i, &released))
		}
	}()

	errs := make(chan error, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for last < frames {
				v, ok := b.Snapshot()
				if !ok {
					continue
				}
				o, p := v.Original(), v.Processed()
				if o.Seq != p.Seq || v.StatusText() != fmt.Sprintf("frame %d", o.Seq) {
					errs <- fmt.Errorf("torn pair: original %d processed %d text %q", o.Seq, p.Seq, v.StatusText())
					return
				}
				if v.Version() < last {
					errs <- fmt.Errorf("version went backwards: %d after %d", v.Version(), last)
					return
				}
				last = v.Version()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	// Every pair but the current one has been released.
	if got := released.Load(); got != 2*(frames-1) {
		t.Errorf("released = %d, want %d", got, 2*(frames-1))
	}
}

func TestSubscribeCoalesces(t *testing.T) {
	var released atomic.Int64
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := uint64(1); i <= 5; i++ {
		b.Publish(pairN(i, &released))
	}

	select {
	case <-ch:
	default:
		t.Fatal("no notification after Publish")
	}
	select {
	case <-ch:
		t.Fatal("notifications should coalesce into one")
	default:
	}
	if v, _ := b.Snapshot(); v.Version() != 5 {
		t.Errorf("Version = %d", v.Version())
	}
}

func TestSubscribeCancel(t *testing.T) {
	var released atomic.Int64
	b := New()
	ch, cancel := b.Subscribe()
	if b.Stats().Subscribers != 1 {
		t.Fatal("subscriber not registered")
	}
	cancel()
	cancel()

	b.Publish(pairN(1, &released))
	select {
	case <-ch:
		t.Error("cancelled subscriber was notified")
	default:
	}
	if b.Stats().Subscribers != 0 {
		t.Error("subscriber still registered")
	}
}
