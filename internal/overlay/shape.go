package overlay

import (
	"image"
	"image/color"
	"math"
)

// Shape is a pixel region that can be tested point by point.
type Shape interface {
	// Bounds is the smallest rectangle holding every covered pixel.
	Bounds() image.Rectangle
	Contains(x, y int) bool
}

// Rect is a filled axis-aligned rectangle with inclusive corners given in
// any order.
type Rect struct {
	X1, Y1, X2, Y2 int
}

func (r Rect) normalized() Rect {
	if r.X1 > r.X2 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y1 > r.Y2 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}

// Bounds implements Shape.
func (r Rect) Bounds() image.Rectangle {
	n := r.normalized()
	return image.Rect(n.X1, n.Y1, n.X2+1, n.Y2+1)
}

// Contains implements Shape.
func (r Rect) Contains(x, y int) bool {
	n := r.normalized()
	return x >= n.X1 && x <= n.X2 && y >= n.Y1 && y <= n.Y2
}

// Area is the number of pixels covered before clipping.
func (r Rect) Area() int {
	b := r.Bounds()
	return b.Dx() * b.Dy()
}

// Ring is a circle outline of the given stroke thickness centered on radius R.
type Ring struct {
	CX, CY, R int
	Thickness int
}

func (r Ring) halfStroke() float64 {
	t := r.Thickness
	if t < 1 {
		t = 1
	}
	return float64(t) / 2
}

// Bounds implements Shape.
func (r Ring) Bounds() image.Rectangle {
	outer := r.R + int(math.Ceil(r.halfStroke()))
	return image.Rect(r.CX-outer, r.CY-outer, r.CX+outer+1, r.CY+outer+1)
}

// Contains implements Shape.
func (r Ring) Contains(x, y int) bool {
	dx, dy := float64(x-r.CX), float64(y-r.CY)
	return math.Abs(math.Hypot(dx, dy)-float64(r.R)) <= r.halfStroke()
}

// Paint selects how a region is applied to a frame.
type Paint int

const (
	// PaintBlend draws the fill into a duplicate and mixes it back at Opacity.
	PaintBlend Paint = iota
	// PaintOpaque overwrites covered pixels with the fill.
	PaintOpaque
	// PaintOutline overwrites covered pixels; used with Ring shapes.
	PaintOutline
)

// Opacity is the weight of the painted duplicate in PaintBlend.
const Opacity = 0.6

// Region is one compositing step: a set of shapes sharing a fill and paint mode.
type Region struct {
	Shapes []Shape
	Fill   color.RGBA
	Paint  Paint
}

// Bounds is the union of the shape bounds.
func (r Region) Bounds() image.Rectangle {
	var b image.Rectangle
	for _, s := range r.Shapes {
		b = b.Union(s.Bounds())
	}
	return b
}

func (r Region) contains(x, y int) bool {
	for _, s := range r.Shapes {
		if s.Contains(x, y) {
			return true
		}
	}
	return false
}

// Apply paints the region onto f in place. For PaintBlend every covered
// pixel becomes 0.6·fill + 0.4·original; pixels outside the region are
// unchanged, which is what blending an untouched duplicate yields.
func (r Region) Apply(f *Frame) {
	area := r.Bounds().Intersect(f.Bounds())
	if area.Empty() {
		return
	}
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			if !r.contains(x, y) {
				continue
			}
			if r.Paint == PaintBlend {
				f.Set(x, y, blend(r.Fill, f.At(x, y), Opacity))
			} else {
				f.Set(x, y, r.Fill)
			}
		}
	}
}

func blend(top, base color.RGBA, alpha float64) color.RGBA {
	mix := func(a, b uint8) uint8 {
		v := math.Round(alpha*float64(a) + (1-alpha)*float64(b))
		return uint8(math.Max(0, math.Min(255, v)))
	}
	return color.RGBA{R: mix(top.R, base.R), G: mix(top.G, base.G), B: mix(top.B, base.B), A: 255}
}
