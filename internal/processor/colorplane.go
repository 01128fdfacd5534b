package processor

import (
	"image"

	"github.com/bryanchriswhite/FrameScope/internal/vision"
)

const ColorPlaneName = "color-plane"

// ColorPlane shows a single colour channel of the frame and reports nothing.
type ColorPlane struct {
	Plane vision.Plane
}

func newColorPlane(opts Options) (Processor, error) {
	p, err := planeOrDefault(opts.Plane, vision.Red)
	if err != nil {
		return nil, err
	}
	return &ColorPlane{Plane: p}, nil
}

func (c *ColorPlane) Name() string { return ColorPlaneName }

func (c *ColorPlane) Process(frame image.Image) (image.Image, string, error) {
	if err := checkFrame(frame); err != nil {
		return nil, "", err
	}
	return vision.ExtractPlane(frame, c.Plane), "", nil
}
