package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// ErrInvalidFrame is returned for frames without pixels.
var ErrInvalidFrame = errors.New("invalid frame")

// Frame is an opaque RGB pixel buffer owned by a single request. The alpha
// channel is always 255.
type Frame struct {
	img *image.RGBA
}

// NewFrame allocates a black frame of w×h pixels.
func NewFrame(w, h int) (*Frame, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidFrame, w, h)
	}
	f := &Frame{img: image.NewRGBA(image.Rect(0, 0, w, h))}
	f.Fill(color.RGBA{A: 255})
	return f, nil
}

// FromImage copies img into a new frame with its origin at (0, 0).
func FromImage(img image.Image) (*Frame, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidFrame)
	}
	b := img.Bounds()
	f, err := NewFrame(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	draw.Draw(f.img, f.img.Bounds(), img, b.Min, draw.Over)
	return f, nil
}

// Width in pixels.
func (f *Frame) Width() int { return f.img.Rect.Dx() }

// Height in pixels.
func (f *Frame) Height() int { return f.img.Rect.Dy() }

// Bounds of the frame.
func (f *Frame) Bounds() image.Rectangle { return f.img.Rect }

// Image exposes the frame for encoding. Callers must not retain it past the request.
func (f *Frame) Image() *image.RGBA { return f.img }

// Clone returns an independent deep copy.
func (f *Frame) Clone() *Frame {
	dup := image.NewRGBA(f.img.Rect)
	copy(dup.Pix, f.img.Pix)
	return &Frame{img: dup}
}

// At returns the color at (x, y).
func (f *Frame) At(x, y int) color.RGBA { return f.img.RGBAAt(x, y) }

// Set writes an opaque color at (x, y); points outside the frame are ignored.
func (f *Frame) Set(x, y int, c color.RGBA) {
	c.A = 255
	f.img.SetRGBA(x, y, c)
}

// Fill paints the whole frame.
func (f *Frame) Fill(c color.RGBA) {
	c.A = 255
	draw.Draw(f.img, f.img.Rect, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// Equal reports whether both frames hold identical pixels.
func (f *Frame) Equal(other *Frame) bool {
	return f.img.Rect == other.img.Rect && bytes.Equal(f.img.Pix, other.img.Pix)
}
