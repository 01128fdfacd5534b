package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/FrameScope/internal/camera"
	"github.com/bryanchriswhite/FrameScope/internal/framebuffer"
	"github.com/bryanchriswhite/FrameScope/internal/logger"
	"github.com/bryanchriswhite/FrameScope/internal/mjpeg"
	"github.com/bryanchriswhite/FrameScope/internal/processor"
)

// Options tunes a Loop
type Options struct {
	// Configure sends the sensor settings request before streaming
	Configure bool
	// BufferSize is the MJPEG working buffer capacity in bytes
	BufferSize int
}

// Stats describes the current session
type Stats struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Frames    uint64    `json:"frames"`
	Skipped   uint64    `json:"skipped"`
	Bytes     uint64    `json:"bytes"`
	StartedAt time.Time `json:"started_at"`
	LastFrame time.Time `json:"last_frame"`
	LastError string    `json:"last_error,omitempty"`
}

// Loop pulls frames from the camera, runs the processor and publishes each
// result. It is the only writer of its framebuffer.
type Loop struct {
	client *camera.Client
	proc   processor.Processor
	buf    *framebuffer.Buffer
	opts   Options
	log    *zerolog.Logger

	state atomic.Int32

	mu    sync.Mutex
	stats Stats
}

// New creates a capture loop. Run starts it.
func New(client *camera.Client, proc processor.Processor, buf *framebuffer.Buffer, opts Options) *Loop {
	if opts.BufferSize <= 0 {
		opts.BufferSize = mjpeg.DefaultBufferSize
	}
	l := &Loop{
		client: client,
		proc:   proc,
		buf:    buf,
		opts:   opts,
		stats:  Stats{SessionID: uuid.New().String()},
	}
	l.log = logger.WithComponent("capture")
	return l
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.State = l.State().String()
	return s
}

func (l *Loop) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	if prev != s {
		l.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("State change")
	}
}

// Run drives the loop until a fatal error or until ctx is cancelled. It
// returns a *FatalError on failure and nil once stopped. There is no
// reconnect: a failed loop stays failed.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.stats.StartedAt = time.Now()
	l.mu.Unlock()

	l.setState(Connecting)
	l.log.Info().
		Str("session", l.stats.SessionID).
		Str("camera", l.client.Address()).
		Str("processor", l.proc.Name()).
		Msg("Starting capture")

	if l.opts.Configure {
		l.setState(Configuring)
		if err := l.client.ConnectAndConfigure(ctx); err != nil {
			return l.finish(ctx, &FatalError{Category: CategoryTransport, Err: err})
		}
	}

	conn, err := l.client.OpenStream(ctx)
	if err != nil {
		return l.finish(ctx, &FatalError{Category: CategoryTransport, Err: err})
	}
	defer conn.Close()

	// Unblock the read in progress when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	l.setState(Streaming)
	return l.finish(ctx, l.stream(conn))
}

func (l *Loop) stream(conn *camera.Conn) *FatalError {
	dec := mjpeg.NewDecoder(conn, l.opts.BufferSize)
	var seq uint64

	for {
		payload, err := dec.NextFrame()
		if err != nil {
			return streamFailure(err)
		}

		img, err := jpeg.Decode(bytes.NewReader(payload))
		if err != nil {
			return &FatalError{Category: CategoryProcessing, Err: fmt.Errorf("decode jpeg: %w", err)}
		}

		out, text, err := l.proc.Process(img)
		if err != nil {
			return &FatalError{Category: CategoryProcessing, Err: fmt.Errorf("%s: %w", l.proc.Name(), err)}
		}

		seq++
		now := time.Now()
		original := framebuffer.NewFrame(img, seq, now, nil)
		processed := original
		if out != image.Image(img) {
			processed = framebuffer.NewFrame(out, seq, now, nil)
		}
		l.buf.Publish(framebuffer.Pair{Original: original, Processed: processed, Text: text})

		ds := dec.Stats()
		l.mu.Lock()
		l.stats.Frames = ds.Frames
		l.stats.Skipped = ds.Skipped
		l.stats.Bytes = ds.Bytes
		l.stats.LastFrame = now
		l.mu.Unlock()

		if seq == 1 {
			b := img.Bounds()
			l.log.Info().Int("width", b.Dx()).Int("height", b.Dy()).Msg("First frame received")
		}
	}
}

// finish settles the terminal state. Errors caused by cancellation are not
// failures.
func (l *Loop) finish(ctx context.Context, fe *FatalError) error {
	if ctx.Err() != nil {
		l.setState(Stopped)
		l.log.Info().Uint64("frames", l.Stats().Frames).Msg("Capture stopped")
		return nil
	}
	if fe == nil {
		l.setState(Stopped)
		return nil
	}

	l.mu.Lock()
	l.stats.LastError = fe.Error()
	l.mu.Unlock()

	l.setState(Failed)
	l.log.Error().
		Err(fe.Err).
		Str("category", string(fe.Category)).
		Str("reason", fe.Reason()).
		Msg("Capture failed")
	return fe
}
