package processor

import (
	"image"

	"github.com/bryanchriswhite/FrameScope/internal/vision"
)

const DetectEllipsesName = "detect-ellipses"

// DetectEllipses looks for ellipses in one colour plane and lists them
type DetectEllipses struct {
	Plane      vision.Plane
	Descriptor vision.EllipseDescriptor
}

func newDetectEllipses(opts Options) (Processor, error) {
	p, err := planeOrDefault(opts.Plane, vision.Green)
	if err != nil {
		return nil, err
	}
	d := vision.DefaultEllipseDescriptor()
	if opts.Ellipse != nil {
		d = *opts.Ellipse
	}
	return &DetectEllipses{Plane: p, Descriptor: d}, nil
}

func (d *DetectEllipses) Name() string { return DetectEllipsesName }

func (d *DetectEllipses) Process(frame image.Image) (image.Image, string, error) {
	if err := checkFrame(frame); err != nil {
		return nil, "", err
	}

	plane := vision.ExtractPlane(frame, d.Plane)
	found := vision.DetectEllipses(plane, d.Descriptor)

	out := image.Image(plane)
	if len(found) > 0 {
		out = vision.DrawEllipses(plane, found)
	}
	return out, EllipseStatus(found), nil
}

// EllipseStatus formats the detection report, dropping whole records that
// would push it past MaxStatusLen. The average covers every ellipse found.
func EllipseStatus(found []vision.Ellipse) string {
	status := NewStatusBuilder()
	status.Appendf("# of ellipses: %d\r\n\r\n", len(found))

	var totalX float64
	for _, e := range found {
		status.Appendf("Pos: (%.0f, %.0f)\tMaj: %.0f\tMin: %.0f\tScore: %.0f\r\n", e.X, e.Y, e.Major, e.Minor, e.Score)
		totalX += e.X
	}
	if len(found) > 0 {
		status.Appendf("\r\nAverage X: %.0f\r\n", totalX/float64(len(found)))
	}
	return status.String()
}
