package vision

import (
	"image"
	"image/color"
)

// HSLBand is an inclusive HSL box
type HSLBand struct {
	H, S, L Range
}

// Contains reports whether the colour falls inside all three ranges
func (b HSLBand) Contains(c HSL) bool {
	return b.H.Contains(c.H) && b.S.Contains(c.S) && b.L.Contains(c.L)
}

// ThresholdValue marks a selected pixel in a ColorThreshold mask
const ThresholdValue = 150

// ColorThreshold returns a binary mask of src: ThresholdValue where the
// pixel's HSL value falls inside band, 0 elsewhere.
func ColorThreshold(src image.Image, band HSLBand) *image.Gray {
	bounds := src.Bounds()
	mask := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	rgba, fast := src.(*image.RGBA)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var hsl HSL
			if fast {
				i := rgba.PixOffset(x, y)
				hsl = RGBToHSL(rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2])
			} else {
				hsl = ColorToHSL(src.At(x, y))
			}
			if band.Contains(hsl) {
				mask.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.Gray{Y: ThresholdValue})
			}
		}
	}
	return mask
}

// Binarize marks pixels strictly above level as Foreground
func Binarize(src *image.Gray, level uint8) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+b.Dx()]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()]
		for x, v := range row {
			if v > level {
				out[x] = Foreground
			}
		}
	}
	return dst
}

// OtsuLevel picks the grey level that best separates the histogram of img
// into two classes.
func OtsuLevel(img *image.Gray) uint8 {
	var hist [256]int
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for _, v := range img.Pix[y*img.Stride : y*img.Stride+b.Dx()] {
			hist[v]++
		}
	}

	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}

	var (
		sumB    float64
		weightB int
		best    float64
		bestLvl uint8
	)
	for i := 0; i < 256; i++ {
		weightB += hist[i]
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(i * hist[i])
		meanB := sumB / float64(weightB)
		meanF := (sum - sumB) / float64(weightF)
		between := float64(weightB) * float64(weightF) * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			bestLvl = uint8(i)
		}
	}
	if best == 0 {
		// Single-valued image: nothing separates from the background.
		return 255
	}
	return bestLvl
}
