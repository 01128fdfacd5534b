package framebuffer

import (
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Frame is one decoded or processed image. Frames are shared by pointer
// between the writer and every reader holding a View.
type Frame struct {
	Image      image.Image
	Seq        uint64
	CapturedAt time.Time

	once      sync.Once
	released  atomic.Bool
	onRelease func()
}

// NewFrame wraps img. onRelease, if non-nil, runs the first time the frame
// leaves the buffer.
func NewFrame(img image.Image, seq uint64, capturedAt time.Time, onRelease func()) *Frame {
	return &Frame{Image: img, Seq: seq, CapturedAt: capturedAt, onRelease: onRelease}
}

// Release marks the frame as no longer current. Only the first call has any
// effect. The image stays readable afterwards.
func (f *Frame) Release() bool {
	if f == nil {
		return false
	}
	first := false
	f.once.Do(func() {
		first = true
		f.released.Store(true)
		if f.onRelease != nil {
			f.onRelease()
		}
	})
	return first
}

// Released reports whether Release has run
func (f *Frame) Released() bool {
	return f != nil && f.released.Load()
}

// Bounds returns the image bounds, or an empty rectangle for a nil frame
func (f *Frame) Bounds() image.Rectangle {
	if f == nil || f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// Pair is the unit published to the buffer: the decoded frame, its processed
// counterpart and the processor's status text.
type Pair struct {
	Original  *Frame
	Processed *Frame
	Text      string
}

func (p Pair) frames() []*Frame {
	switch {
	case p.Original == nil && p.Processed == nil:
		return nil
	case p.Original == p.Processed || p.Processed == nil:
		return []*Frame{p.Original}
	case p.Original == nil:
		return []*Frame{p.Processed}
	default:
		return []*Frame{p.Original, p.Processed}
	}
}

func (p Pair) holds(f *Frame) bool {
	return f != nil && (p.Original == f || p.Processed == f)
}
