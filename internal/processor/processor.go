package processor

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/bryanchriswhite/FrameScope/internal/vision"
)

// Processor defines the interface for per-frame image analysis steps.
// Implementations must be stateless between calls.
type Processor interface {
	// Process analyses frame and returns the image to show beside it plus a
	// status text of at most MaxStatusLen bytes. A non-nil error is fatal to
	// the capture loop.
	Process(frame image.Image) (image.Image, string, error)

	// Name returns the registry name of this processor
	Name() string
}

// Options configures the processors built by New. Zero values select the
// defaults of each processor.
type Options struct {
	// Plane is "red", "green" or "blue"
	Plane string
	// Band overrides the ColorThreshold HSL band
	Band *vision.HSLBand
	// Ellipse overrides the DetectEllipses shape filter
	Ellipse *vision.EllipseDescriptor
}

// ErrEmptyFrame is returned for nil or zero-sized input
var ErrEmptyFrame = errors.New("empty frame")

type factory func(Options) (Processor, error)

var registry = map[string]factory{
	ColorPlaneName:     newColorPlane,
	ColorThresholdName: newColorThreshold,
	DetectEllipsesName: newDetectEllipses,
}

// New builds the processor registered under name
func New(name string, opts Options) (Processor, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown processor %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return f(opts)
}

// Names lists the registered processor names
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func planeOrDefault(s string, def vision.Plane) (vision.Plane, error) {
	if s == "" {
		return def, nil
	}
	return vision.ParsePlane(s)
}

func checkFrame(frame image.Image) error {
	if frame == nil || frame.Bounds().Empty() {
		return ErrEmptyFrame
	}
	return nil
}
