package main

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

// Blob colour sits inside the default threshold band (H 250, S 109, L 105).
var (
	blobColor       = color.RGBA{150, 60, 70, 255}
	ringColor       = color.RGBA{40, 230, 60, 255}
	backgroundColor = color.RGBA{20, 24, 32, 255}
)

// Scene draws a synthetic target field: two bright green ellipses for the
// ellipse detector and one reddish blob for the threshold processor, all
// drifting with time.
type Scene struct {
	Width, Height int
}

// BlobCenter is where the threshold target is drawn at time t (seconds)
func (s Scene) BlobCenter(t float64) (float64, float64) {
	w, h := float64(s.Width), float64(s.Height)
	return w/2 + w/4*math.Cos(t/2), h/2 + h/6*math.Sin(t)
}

// BlobRadius is the radius of the threshold target
func (s Scene) BlobRadius() float64 {
	return float64(min(s.Width, s.Height)) / 12
}

// Render draws frame number n at time t
func (s Scene) Render(t float64, n uint64) image.Image {
	dc := gg.NewContext(s.Width, s.Height)
	dc.SetColor(backgroundColor)
	dc.Clear()

	w, h := float64(s.Width), float64(s.Height)
	unit := float64(min(s.Width, s.Height))

	dc.SetColor(ringColor)
	for i, phase := range []float64{0, math.Pi} {
		cx := w * (0.25 + 0.5*float64(i))
		cy := h/2 + h/8*math.Sin(t+phase)
		dc.Push()
		dc.RotateAbout(t/3+phase, cx, cy)
		dc.DrawEllipse(cx, cy, unit/5, unit/7)
		dc.Fill()
		dc.Pop()
	}

	bx, by := s.BlobCenter(t)
	dc.SetColor(blobColor)
	dc.DrawCircle(bx, by, s.BlobRadius())
	dc.Fill()

	dc.SetColor(color.White)
	dc.DrawString(fmt.Sprintf("camsim #%d", n), 8, h-8)

	return dc.Image()
}
