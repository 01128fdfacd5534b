// Package framebuffer hands frame pairs from the capture loop to display
// surfaces. It holds only the most recent pair: a slow reader sees the
// newest frame, never a queue, and never waits on or blocks the writer for
// longer than one struct copy.
package framebuffer

import (
	"image"
	"sync"
)

// View is a point-in-time copy of the buffer contents
type View struct {
	pair    Pair
	version uint64
	ok      bool
}

func (v View) HasCurrentPair() bool { return v.ok }

// Original returns the unprocessed frame, or nil when there is no pair
func (v View) Original() *Frame { return v.pair.Original }

// Processed returns the processor output, or nil when there is no pair
func (v View) Processed() *Frame { return v.pair.Processed }

func (v View) StatusText() string { return v.pair.Text }

// Version increases by one for every Publish
func (v View) Version() uint64 { return v.version }

// Image returns the original or processed image by name
func (v View) Image(source string) image.Image {
	var f *Frame
	switch source {
	case "processed":
		f = v.pair.Processed
	default:
		f = v.pair.Original
	}
	if f == nil {
		return nil
	}
	return f.Image
}

// Stats holds buffer counters
type Stats struct {
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"` // pairs replaced before any Snapshot saw them
	Released    uint64 `json:"released"`
	Subscribers int    `json:"subscribers"`
}

// Buffer is a single-slot latest-value cell guarded by one mutex
type Buffer struct {
	mu       sync.Mutex
	cur      Pair
	has      bool
	observed bool
	version  uint64
	stats    Stats

	subs    map[int]chan struct{}
	nextSub int
}

// New returns an empty buffer
func New() *Buffer {
	return &Buffer{subs: make(map[int]chan struct{})}
}

// Publish replaces the current pair. Frames of the previous pair that are
// not part of p are released exactly once before p becomes visible.
func (b *Buffer) Publish(p Pair) {
	b.mu.Lock()
	if b.has {
		for _, f := range b.cur.frames() {
			if !p.holds(f) && f.Release() {
				b.stats.Released++
			}
		}
		if !b.observed {
			b.stats.Dropped++
		}
	}
	b.cur = p
	b.has = true
	b.observed = false
	b.version++
	b.stats.Published++

	notify := make([]chan struct{}, 0, len(b.subs))
	for _, ch := range b.subs {
		notify = append(notify, ch)
	}
	b.mu.Unlock()

	for _, ch := range notify {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Snapshot copies the current pair. ok is false until the first Publish.
func (b *Buffer) Snapshot() (View, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.has {
		return View{}, false
	}
	b.observed = true
	return View{pair: b.cur, version: b.version, ok: true}, true
}

// Subscribe returns a channel that receives a value after each Publish.
// Notifications coalesce: a reader that falls behind gets one pending
// signal, not one per frame. Call cancel to stop receiving.
func (b *Buffer) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Subscribers = len(b.subs)
	return s
}

func (b *Buffer) HasCurrentPair() bool {
	_, ok := b.Snapshot()
	return ok
}

func (b *Buffer) Original() *Frame {
	v, _ := b.Snapshot()
	return v.Original()
}

func (b *Buffer) Processed() *Frame {
	v, _ := b.Snapshot()
	return v.Processed()
}

func (b *Buffer) StatusText() string {
	v, _ := b.Snapshot()
	return v.StatusText()
}

func (b *Buffer) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}
