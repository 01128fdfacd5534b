package output

import (
	"context"
	"image"

	"github.com/bryanchriswhite/FrameScope/internal/framebuffer"
	"github.com/bryanchriswhite/FrameScope/internal/logger"
)

// Output defines the interface for frame output mechanisms fed from the
// frame buffer (HTTP MJPEG stream, snapshot sinks, ...).
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output
	WriteFrame(frame image.Image) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	// Source is "original" or "processed"
	Source string
	// Quality is the JPEG quality, 1-100
	Quality int
}

// Pump writes the selected image of every published pair to out until ctx
// ends. Pairs published while a write is in progress collapse into one.
func Pump(ctx context.Context, buf *framebuffer.Buffer, source string, out Output) {
	log := logger.WithComponent("output")
	updates, cancel := buf.Subscribe()
	defer cancel()

	var last uint64
	write := func() {
		v, ok := buf.Snapshot()
		if !ok || v.Version() == last {
			return
		}
		last = v.Version()
		img := v.Image(source)
		if img == nil {
			return
		}
		if err := out.WriteFrame(img); err != nil {
			log.Debug().Err(err).Str("output", out.Name()).Msg("Frame not written")
		}
	}

	// A pair published before we subscribed is still worth sending.
	write()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			write()
		}
	}
}
