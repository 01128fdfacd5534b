package processor

import (
	"image"

	"github.com/bryanchriswhite/FrameScope/internal/vision"
)

const ColorThresholdName = "color-threshold"

// DefaultBand selects the reddish-pink target colour
var DefaultBand = vision.HSLBand{
	H: vision.Range{Min: 250, Max: 255},
	S: vision.Range{Min: 90, Max: 150},
	L: vision.Range{Min: 70, Max: 130},
}

// ColorThreshold masks the frame to an HSL band and reports the centroid and
// area of the largest region.
type ColorThreshold struct {
	Band vision.HSLBand
}

func newColorThreshold(opts Options) (Processor, error) {
	band := DefaultBand
	if opts.Band != nil {
		band = *opts.Band
	}
	return &ColorThreshold{Band: band}, nil
}

func (c *ColorThreshold) Name() string { return ColorThresholdName }

func (c *ColorThreshold) Process(frame image.Image) (image.Image, string, error) {
	if err := checkFrame(frame); err != nil {
		return nil, "", err
	}

	mask := vision.ColorThreshold(frame, c.Band)
	biggest, ok := vision.Largest(vision.Particles(mask))
	if !ok {
		return mask, "No particles found.", nil
	}

	status := NewStatusBuilder()
	status.Appendf("Position: (%3.1f, %3.1f)\r\nArea: %.0f", biggest.CenterX, biggest.CenterY, float64(biggest.Area))
	return vision.DrawCrosshair(mask, biggest.CenterX, biggest.CenterY, 6), status.String(), nil
}
