package overlay

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	glyphWidth  = 7
	glyphHeight = 13
	lineSpacing = 2
	tabStop     = 8
)

// TextWidget draws a multi-line text panel. Lines are separated by "\n" or
// "\r\n" and tabs advance to the next 8-column stop. With a fixed size set,
// text that does not fit is clipped.
type TextWidget struct {
	*BaseWidget
	text      string
	source    func() string
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
	width     int
	height    int
}

// NewTextWidget creates a text widget at (x, y)
func NewTextWidget(id string, x, y int) *TextWidget {
	return &TextWidget{
		BaseWidget: NewBaseWidget(id, x, y, 1.0),
		textColor:  color.RGBA{255, 255, 255, 255},
		padding:    5,
	}
}

func (w *TextWidget) Type() string {
	return "text"
}

// SetText sets static text. It is ignored while a source is bound.
func (w *TextWidget) SetText(text string) {
	w.text = text
}

// Bind makes the widget pull its text from fn on every Render
func (w *TextWidget) Bind(fn func() string) {
	w.source = fn
}

// Text returns what the next Render will draw
func (w *TextWidget) Text() string {
	if w.source != nil {
		return w.source()
	}
	return w.text
}

func (w *TextWidget) SetColor(c color.RGBA) {
	w.textColor = c
}

// SetBackground sets the panel colour (nil for transparent)
func (w *TextWidget) SetBackground(c *color.RGBA) {
	w.bgColor = c
}

func (w *TextWidget) SetPadding(p int) {
	w.padding = max(p, 0)
}

// SetSize fixes the panel size. Zero means fit to the text.
func (w *TextWidget) SetSize(width, height int) {
	w.width, w.height = width, height
}

// Lines splits text into display lines with tabs expanded
func Lines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = expandTabs(l)
	}
	return lines
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := tabStop - col%tabStop
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}

// Measure returns the panel size needed for text, padding included
func (w *TextWidget) Measure(text string) image.Point {
	lines := Lines(text)
	widest := 0
	for _, l := range lines {
		widest = max(widest, len([]rune(l)))
	}
	h := len(lines)*(glyphHeight+lineSpacing) - lineSpacing
	if len(lines) == 0 {
		h = 0
	}
	return image.Pt(widest*glyphWidth+2*w.padding, h+2*w.padding)
}

// Render draws the panel
func (w *TextWidget) Render(img *image.RGBA) error {
	if !w.IsEnabled() {
		return nil
	}
	text := w.Text()

	size := w.Measure(text)
	if w.width > 0 {
		size.X = w.width
	}
	if w.height > 0 {
		size.Y = w.height
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil
	}

	panel := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	if w.bgColor != nil {
		FillRect(panel, panel.Bounds(), *w.bgColor, 1)
	}

	d := &font.Drawer{
		Dst:  panel,
		Src:  image.NewUniform(w.textColor),
		Face: basicfont.Face7x13,
	}
	baseline := w.padding + basicfont.Face7x13.Ascent
	for _, line := range Lines(text) {
		if baseline-basicfont.Face7x13.Ascent >= size.Y {
			break
		}
		d.Dot = fixed.Point26_6{X: fixed.I(w.padding), Y: fixed.I(baseline)}
		d.DrawString(line)
		baseline += glyphHeight + lineSpacing
	}

	BlendImage(img, panel, w.x, w.y, w.opacity)
	return nil
}
