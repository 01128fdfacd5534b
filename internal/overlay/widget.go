package overlay

import (
	"image"
	"image/color"
	"image/draw"
)

// Widget is something drawn on top of a composed frame
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget onto img at its configured position
	Render(img *image.RGBA) error

	IsEnabled() bool
	SetEnabled(enabled bool)
}

// BaseWidget provides position, opacity and the enabled flag
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{id: id, enabled: true, x: x, y: y}
	w.SetOpacity(opacity)
	return w
}

func (w *BaseWidget) ID() string { return w.id }

func (w *BaseWidget) IsEnabled() bool { return w.enabled }

func (w *BaseWidget) SetEnabled(enabled bool) { w.enabled = enabled }

// GetPosition returns the widget's top-left corner
func (w *BaseWidget) GetPosition() (int, int) {
	return w.x, w.y
}

func (w *BaseWidget) SetPosition(x, y int) {
	w.x = x
	w.y = y
}

func (w *BaseWidget) GetOpacity() float64 { return w.opacity }

// SetOpacity clamps opacity to [0, 1]
func (w *BaseWidget) SetOpacity(opacity float64) {
	w.opacity = min(max(opacity, 0), 1)
}

// BlendImage composites src onto dst with its top-left corner at (x, y),
// scaling src alpha by opacity. Pixels outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	if opacity <= 0 {
		return
	}
	sb := src.Bounds()
	r := image.Rect(x, y, x+sb.Dx(), y+sb.Dy())
	if opacity >= 1 {
		draw.Draw(dst, r, src, sb.Min, draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(dst, r, src, sb.Min, mask, image.Point{}, draw.Over)
}

// FillRect blends a solid rectangle onto dst
func FillRect(dst *image.RGBA, r image.Rectangle, c color.Color, opacity float64) {
	if opacity <= 0 {
		return
	}
	src := &image.Uniform{C: c}
	if opacity >= 1 {
		draw.Draw(dst, r, src, image.Point{}, draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(dst, r, src, image.Point{}, mask, image.Point{}, draw.Over)
}
