package vision

import (
	"image"
	"math"
)

// Foreground is the mask value Binarize writes. Labeling treats any
// non-zero pixel as foreground.
const Foreground = 255

// Particle is one 4-connected region of foreground pixels. Coordinates are
// pixel centres, so a pixel at column x contributes x+0.5.
type Particle struct {
	Label   int
	Area    int
	CenterX float64
	CenterY float64
	Bounds  image.Rectangle

	// Central second moments, normalised by area
	Mu20, Mu02, Mu11 float64
}

// Labeling is the result of a region-labeling pass
type Labeling struct {
	Particles []Particle
	// Labels holds, per mask pixel in row-major order, the index into
	// Particles plus one, or 0 for background.
	Labels []int32
	Width  int
	Height int
}

// LabelAt returns the particle index at (x, y), or -1 for background
func (l *Labeling) LabelAt(x, y int) int {
	if x < 0 || y < 0 || x >= l.Width || y >= l.Height {
		return -1
	}
	return int(l.Labels[y*l.Width+x]) - 1
}

// Particles labels mask and measures every region. Regions are ordered by
// the raster position of their first pixel.
func Particles(mask *image.Gray) []Particle {
	return Label(mask).Particles
}

// Label runs a two-pass union-find labeling over mask with 4-connectivity.
// Pixels that touch only at a corner belong to different particles.
func Label(mask *image.Gray) *Labeling {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	labels := make([]int32, w*h)
	parent := []int32{0}

	find := func(x int32) int32 {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int32) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		// Keep the older label as root so raster order survives.
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	for y := 0; y < h; y++ {
		row := mask.Pix[y*mask.Stride:]
		for x := 0; x < w; x++ {
			if row[x] == 0 {
				continue
			}
			var neighbours [2]int32
			n := 0
			if x > 0 && labels[y*w+x-1] != 0 {
				neighbours[n] = labels[y*w+x-1]
				n++
			}
			if y > 0 && labels[(y-1)*w+x] != 0 {
				neighbours[n] = labels[(y-1)*w+x]
				n++
			}
			if n == 0 {
				next := int32(len(parent))
				parent = append(parent, next)
				labels[y*w+x] = next
				continue
			}
			lowest := neighbours[0]
			for _, l := range neighbours[1:n] {
				if l < lowest {
					lowest = l
				}
			}
			labels[y*w+x] = lowest
			for _, l := range neighbours[:n] {
				union(lowest, l)
			}
		}
	}

	// Second pass: resolve roots to dense indices in first-seen order.
	index := make(map[int32]int32)
	type acc struct {
		area, sx, sy, sxx, syy, sxy float64
		minX, minY, maxX, maxY      int
	}
	var accs []acc
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			l := labels[y*w+x]
			if l == 0 {
				continue
			}
			root := find(l)
			idx, ok := index[root]
			if !ok {
				idx = int32(len(accs))
				index[root] = idx
				accs = append(accs, acc{minX: x, minY: y, maxX: x, maxY: y})
			}
			labels[y*w+x] = idx + 1

			a := &accs[idx]
			px, py := float64(x)+0.5, float64(y)+0.5
			a.area++
			a.sx += px
			a.sy += py
			a.sxx += px * px
			a.syy += py * py
			a.sxy += px * py
			a.minX = min(a.minX, x)
			a.minY = min(a.minY, y)
			a.maxX = max(a.maxX, x)
			a.maxY = max(a.maxY, y)
		}
	}

	particles := make([]Particle, len(accs))
	for i, a := range accs {
		cx, cy := a.sx/a.area, a.sy/a.area
		particles[i] = Particle{
			Label:   i,
			Area:    int(a.area),
			CenterX: cx,
			CenterY: cy,
			Bounds:  image.Rect(a.minX, a.minY, a.maxX+1, a.maxY+1),
			Mu20:    math.Max(a.sxx/a.area-cx*cx, 0),
			Mu02:    math.Max(a.syy/a.area-cy*cy, 0),
			Mu11:    a.sxy/a.area - cx*cy,
		}
	}

	return &Labeling{Particles: particles, Labels: labels, Width: w, Height: h}
}

// Largest returns the particle with the greatest area. Ties go to the
// earliest particle. ok is false when there are none.
func Largest(particles []Particle) (p Particle, ok bool) {
	for i, cand := range particles {
		if i == 0 || cand.Area > p.Area {
			p = cand
			ok = true
		}
	}
	return p, ok
}
