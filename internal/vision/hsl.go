package vision

import (
	"image"
	"image/color"
)

// HSL is a hue/saturation/lightness triple with every channel scaled to 0-255.
type HSL struct {
	H, S, L uint8
}

// Range is an inclusive band on the 0-255 scale
type Range struct {
	Min, Max uint8
}

// Contains reports whether v lies in the band
func (r Range) Contains(v uint8) bool {
	return v >= r.Min && v <= r.Max
}

// RGBToHSL converts an 8-bit RGB colour to HSL. Hue is computed on the
// [0,6) sextant scale and multiplied by 42.5; S and L by 255. All three are
// truncated, not rounded.
func RGBToHSL(r8, g8, b8 uint8) HSL {
	r := float64(r8) / 255
	g := float64(g8) / 255
	b := float64(b8) / 255

	lo := min(r, g, b)
	hi := max(r, g, b)

	var h, s float64
	l := (lo + hi) / 2

	if lo != hi {
		d := hi - lo
		if l <= 0.5 {
			s = d / (hi + lo)
		} else {
			s = d / (2.0 - hi - lo)
		}

		switch {
		case r == hi:
			h = (g - b) / d
		case g == hi:
			h = 2.0 + (b-r)/d
		default:
			h = 4.0 + (r-g)/d
		}
	}
	if h < 0 {
		h += 6
	}

	return HSL{
		H: uint8(h * 42.5),
		S: uint8(s * 255),
		L: uint8(l * 255),
	}
}

// ColorToHSL converts any color.Color, ignoring alpha
func ColorToHSL(c color.Color) HSL {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return RGBToHSL(n.R, n.G, n.B)
}

// PixelAt samples img at (x, y) measured from the top-left of its bounds.
// ok is false outside the image.
func PixelAt(img image.Image, x, y int) (c color.NRGBA, hsl HSL, ok bool) {
	if img == nil {
		return c, hsl, false
	}
	b := img.Bounds()
	p := image.Pt(b.Min.X+x, b.Min.Y+y)
	if !p.In(b) {
		return c, hsl, false
	}
	c = color.NRGBAModel.Convert(img.At(p.X, p.Y)).(color.NRGBA)
	return c, RGBToHSL(c.R, c.G, c.B), true
}
