package display

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/bryanchriswhite/FrameScope/internal/framebuffer"
	"github.com/bryanchriswhite/FrameScope/internal/overlay"
	"github.com/bryanchriswhite/FrameScope/internal/vision"
)

// MinPanelHeight is the space always kept below the images for text
const MinPanelHeight = 120

var (
	panelBackground = color.RGBA{24, 24, 24, 255}
	canvasColor     = color.RGBA{0, 0, 0, 255}
)

// Layout places the two images side by side with a text panel under each.
//
//	+-----------+-----------+
//	| original  | processed |
//	+-----------+-----------+
//	| pixel     | status    |
//	+-----------+-----------+
type Layout struct {
	Width, Height int

	Original  image.Rectangle
	Processed image.Rectangle
	Pixel     image.Rectangle
	Status    image.Rectangle
}

// NewLayout fits a frame of frameSize into each half of a width×height
// canvas. Frames are never enlarged.
func NewLayout(width, height int, frameSize image.Point) Layout {
	half := width / 2
	maxH := height - MinPanelHeight
	if maxH < 1 {
		maxH = 1
	}

	w, h := frameSize.X, frameSize.Y
	if w <= 0 || h <= 0 {
		w, h = half, maxH
	}
	scale := min(1.0, float64(half)/float64(w), float64(maxH)/float64(h))
	w = max(1, int(float64(w)*scale))
	h = max(1, int(float64(h)*scale))

	return Layout{
		Width:     width,
		Height:    height,
		Original:  image.Rect(0, 0, w, h),
		Processed: image.Rect(half, 0, half+w, h),
		Pixel:     image.Rect(0, h, half, height),
		Status:    image.Rect(half, h, width, height),
	}
}

// PixelReadout formats the colour under the pointer
func PixelReadout(p image.Point, c color.NRGBA, hsl vision.HSL) string {
	return fmt.Sprintf("Pixel colour at (%d, %d):\r\nR: %d\tH: %d\r\nG: %d\tS: %d\r\nB: %d\tL: %d",
		p.X, p.Y, c.R, hsl.H, c.G, hsl.S, c.B, hsl.L)
}

// Scene holds the canvas and the text panels drawn over it
type Scene struct {
	layout  Layout
	canvas  *image.RGBA
	widgets *overlay.Manager
	status  *overlay.TextWidget
	pixel   *overlay.TextWidget

	statusText string
	readout    string
}

// NewScene creates a width×height scene
func NewScene(width, height int) *Scene {
	s := &Scene{
		canvas:  image.NewRGBA(image.Rect(0, 0, width, height)),
		widgets: overlay.NewManager(),
		status:  overlay.NewTextWidget("status", 0, 0),
		pixel:   overlay.NewTextWidget("pixel", 0, 0),
	}
	bg := panelBackground
	for _, w := range []*overlay.TextWidget{s.pixel, s.status} {
		w.SetBackground(&bg)
		w.SetPadding(8)
		s.widgets.AddWidget(w)
	}
	s.status.Bind(func() string { return s.statusText })
	s.pixel.Bind(func() string { return s.readout })
	s.place(NewLayout(width, height, image.Point{}))
	return s
}

func (s *Scene) place(l Layout) {
	s.layout = l
	s.pixel.SetPosition(l.Pixel.Min.X, l.Pixel.Min.Y)
	s.pixel.SetSize(l.Pixel.Dx(), l.Pixel.Dy())
	s.status.SetPosition(l.Status.Min.X, l.Status.Min.Y)
	s.status.SetSize(l.Status.Dx(), l.Status.Dy())
}

// Layout returns the placement used by the last Compose
func (s *Scene) Layout() Layout { return s.layout }

// Canvas returns the composed image
func (s *Scene) Canvas() *image.RGBA { return s.canvas }

// Compose draws the pair in v and the panels. The readout samples the
// composed images at pointer, in canvas coordinates; a pointer outside the
// canvas keeps the previous readout.
func (s *Scene) Compose(v framebuffer.View, pointer image.Point) *image.RGBA {
	draw.Draw(s.canvas, s.canvas.Bounds(), image.NewUniform(canvasColor), image.Point{}, draw.Src)

	if !v.HasCurrentPair() {
		s.statusText = "Waiting for camera..."
		s.widgets.Render(s.canvas)
		return s.canvas
	}

	if f := v.Original(); f != nil {
		l := NewLayout(s.layout.Width, s.layout.Height, f.Bounds().Size())
		if l != s.layout {
			s.place(l)
		}
	}
	blit(s.canvas, s.layout.Original, v.Image("original"))
	blit(s.canvas, s.layout.Processed, v.Image("processed"))

	if c, hsl, ok := vision.PixelAt(s.canvas, pointer.X, pointer.Y); ok {
		s.readout = PixelReadout(pointer, c, hsl)
	}
	s.statusText = v.StatusText()

	s.widgets.Render(s.canvas)
	return s.canvas
}

func blit(dst *image.RGBA, r image.Rectangle, src image.Image) {
	if src == nil {
		return
	}
	if src.Bounds().Size() == r.Size() {
		draw.Draw(dst, r, src, src.Bounds().Min, draw.Src)
		return
	}
	xdraw.NearestNeighbor.Scale(dst, r, src, src.Bounds(), draw.Src, nil)
}
