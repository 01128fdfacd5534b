package vision

import (
	"image"
	"math"
	"sort"

	"github.com/disintegration/gift"
)

// EllipseDescriptor bounds the shapes DetectEllipses will report. Radii are
// semi-axis lengths in pixels; MinScore is on a 0-1000 scale.
type EllipseDescriptor struct {
	MinMajor, MaxMajor float64
	MinMinor, MaxMinor float64
	MinScore           float64
	// BlurSigma smooths the plane before binarisation. Zero disables it.
	BlurSigma float32
}

// DefaultEllipseDescriptor accepts radii in [20,300] on both axes.
func DefaultEllipseDescriptor() EllipseDescriptor {
	return EllipseDescriptor{
		MinMajor:  20,
		MaxMajor:  300,
		MinMinor:  20,
		MaxMinor:  300,
		MinScore:  800,
		BlurSigma: 1.5,
	}
}

// Ellipse is one detected shape. Angle is the major axis orientation in
// radians, measured from the +X axis towards +Y.
type Ellipse struct {
	X, Y         float64
	Major, Minor float64
	Angle        float64
	// Score is the overlap between the region and its fitted ellipse,
	// scaled to 0-1000.
	Score float64
}

// DetectEllipses finds bright elliptical blobs in a single-channel image.
// Results are sorted by X then Y.
func DetectEllipses(plane *image.Gray, d EllipseDescriptor) []Ellipse {
	src := plane
	if d.BlurSigma > 0 {
		g := gift.New(gift.GaussianBlur(d.BlurSigma))
		blurred := image.NewGray(g.Bounds(plane.Bounds()))
		g.Draw(blurred, plane)
		src = blurred
	}

	mask := Binarize(src, OtsuLevel(src))
	lab := Label(mask)

	var found []Ellipse
	for i, p := range lab.Particles {
		e, ok := fitEllipse(p)
		if !ok {
			continue
		}
		if e.Major < d.MinMajor || e.Major > d.MaxMajor || e.Minor < d.MinMinor || e.Minor > d.MaxMinor {
			continue
		}
		e.Score = 1000 * overlap(lab, i, e)
		if e.Score < d.MinScore {
			continue
		}
		found = append(found, e)
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].X != found[j].X {
			return found[i].X < found[j].X
		}
		return found[i].Y < found[j].Y
	})
	return found
}

// fitEllipse derives the ellipse with the same second moments as p. For a
// filled ellipse the variance along an axis is r²/4.
func fitEllipse(p Particle) (Ellipse, bool) {
	if p.Area < 5 {
		return Ellipse{}, false
	}
	mean := (p.Mu20 + p.Mu02) / 2
	diff := (p.Mu20 - p.Mu02) / 2
	root := math.Sqrt(diff*diff + p.Mu11*p.Mu11)
	l1, l2 := mean+root, mean-root
	if l2 <= 0 {
		return Ellipse{}, false
	}
	return Ellipse{
		X:     p.CenterX,
		Y:     p.CenterY,
		Major: 2 * math.Sqrt(l1),
		Minor: 2 * math.Sqrt(l2),
		Angle: 0.5 * math.Atan2(2*p.Mu11, p.Mu20-p.Mu02),
	}, true
}

// Contains reports whether the point (px, py) lies inside e
func (e Ellipse) Contains(px, py float64) bool {
	dx, dy := px-e.X, py-e.Y
	cos, sin := math.Cos(e.Angle), math.Sin(e.Angle)
	u := dx*cos + dy*sin
	v := -dx*sin + dy*cos
	return (u*u)/(e.Major*e.Major)+(v*v)/(e.Minor*e.Minor) <= 1
}

// overlap is the intersection over union of particle idx and e
func overlap(lab *Labeling, idx int, e Ellipse) float64 {
	r := int(math.Ceil(e.Major)) + 1
	x0, y0 := int(e.X)-r, int(e.Y)-r
	x1, y1 := int(e.X)+r, int(e.Y)+r

	var inter, union int
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			in := lab.LabelAt(x, y) == idx
			ell := e.Contains(float64(x)+0.5, float64(y)+0.5)
			if in && ell {
				inter++
			}
			if in || ell {
				union++
			}
		}
	}
	// Region pixels outside the scan window count against the fit.
	union += lab.Particles[idx].Area - countIn(lab, idx, x0, y0, x1, y1)
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func countIn(lab *Labeling, idx, x0, y0, x1, y1 int) int {
	b := lab.Particles[idx].Bounds
	n := 0
	for y := max(b.Min.Y, y0); y < b.Max.Y && y <= y1; y++ {
		for x := max(b.Min.X, x0); x < b.Max.X && x <= x1; x++ {
			if lab.LabelAt(x, y) == idx {
				n++
			}
		}
	}
	return n
}
