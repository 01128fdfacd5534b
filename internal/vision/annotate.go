package vision

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

var (
	EllipseColor   = color.RGBA{R: 255, G: 64, B: 64, A: 255}
	CrosshairColor = color.RGBA{R: 64, G: 160, B: 255, A: 255}
)

// DrawEllipses returns an RGBA copy of img with each ellipse outlined
func DrawEllipses(img image.Image, ellipses []Ellipse) *image.RGBA {
	dc := gg.NewContextForImage(img)
	dc.SetColor(EllipseColor)
	dc.SetLineWidth(2)
	for _, e := range ellipses {
		dc.Push()
		dc.RotateAbout(e.Angle, e.X, e.Y)
		dc.DrawEllipse(e.X, e.Y, e.Major, e.Minor)
		dc.Stroke()
		dc.Pop()
		drawCross(dc, e.X, e.Y, 4)
	}
	return toRGBA(dc.Image())
}

// DrawCrosshair returns an RGBA copy of img with a cross centred on (x, y)
func DrawCrosshair(img image.Image, x, y, size float64) *image.RGBA {
	dc := gg.NewContextForImage(img)
	dc.SetColor(CrosshairColor)
	dc.SetLineWidth(1)
	drawCross(dc, x, y, size)
	return toRGBA(dc.Image())
}

func drawCross(dc *gg.Context, x, y, size float64) {
	dc.DrawLine(x-size, y, x+size, y)
	dc.DrawLine(x, y-size, x, y+size)
	dc.Stroke()
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}
