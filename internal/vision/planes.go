// Package vision holds the image primitives the processors are built from:
// colour plane extraction, HSL thresholding, particle measurement and ellipse
// detection.
package vision

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/gift"
)

// Plane selects one channel of an RGB image
type Plane int

const (
	Red Plane = iota
	Green
	Blue
)

func (p Plane) String() string {
	switch p {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	default:
		return fmt.Sprintf("plane(%d)", int(p))
	}
}

// ParsePlane maps "red", "green" or "blue" to a Plane
func ParsePlane(s string) (Plane, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red", "r":
		return Red, nil
	case "green", "g":
		return Green, nil
	case "blue", "b":
		return Blue, nil
	default:
		return Red, fmt.Errorf("unknown colour plane %q (use red, green or blue)", s)
	}
}

func planeFilter(p Plane) gift.Filter {
	return gift.ColorFunc(func(r0, g0, b0, a0 float32) (r, g, b, a float32) {
		var v float32
		switch p {
		case Green:
			v = g0
		case Blue:
			v = b0
		default:
			v = r0
		}
		return v, v, v, 1
	})
}

// ExtractPlane copies one channel of src into a new 8-bit grey image
func ExtractPlane(src image.Image, p Plane, extra ...gift.Filter) *image.Gray {
	g := gift.New(append([]gift.Filter{planeFilter(p)}, extra...)...)
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}
