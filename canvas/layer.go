// Package canvas implements the offscreen raster layers edited by pointer
// strokes: premultiplied RGBA buffers, the stroke compositor, stroke bounds
// tracking and patch extraction.
package canvas

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
)

// ErrSizeMismatch is returned when replacing a layer's content with an image
// of different dimensions.
var ErrSizeMismatch = errors.New("canvas: size mismatch")

// Layer is a width×height premultiplied RGBA pixel buffer.
type Layer struct {
	width  int
	height int
	data   []uint8 // premultiplied RGBA, 4 bytes per pixel
	dirty  *DirtyTiles
}

// NewLayer creates a transparent layer.
func NewLayer(width, height int) *Layer {
	width, height = max(0, width), max(0, height)
	return &Layer{
		width:  width,
		height: height,
		data:   make([]uint8, width*height*4),
		dirty:  NewDirtyTiles(width, height),
	}
}

// Width returns the width of the layer.
func (l *Layer) Width() int {
	return l.width
}

// Height returns the height of the layer.
func (l *Layer) Height() int {
	return l.height
}

// Data returns the raw premultiplied pixel data.
func (l *Layer) Data() []uint8 {
	return l.data
}

// Dirty returns the layer's dirty tile tracker.
func (l *Layer) Dirty() *DirtyTiles {
	return l.dirty
}

// Pixel returns the premultiplied colour at (x, y), or transparent outside
// the layer.
func (l *Layer) Pixel(x, y int) color.RGBA {
	if x < 0 || x >= l.width || y < 0 || y >= l.height {
		return color.RGBA{}
	}
	i := (y*l.width + x) * 4
	return color.RGBA{R: l.data[i], G: l.data[i+1], B: l.data[i+2], A: l.data[i+3]}
}

// Clear fills the entire layer with c.
func (l *Layer) Clear(c Color) {
	r, g, b, a := c.Premultiplied()
	for i := 0; i < len(l.data); i += 4 {
		l.data[i+0] = r
		l.data[i+1] = g
		l.data[i+2] = b
		l.data[i+3] = a
	}
	l.dirty.MarkAll()
}

// View returns an *image.RGBA sharing the layer's pixels.
func (l *Layer) View() *image.RGBA {
	return &image.RGBA{
		Pix:    l.data,
		Stride: l.width * 4,
		Rect:   image.Rect(0, 0, l.width, l.height),
	}
}

// Replace overwrites the layer's pixels with img, which must have the same
// size.
func (l *Layer) Replace(img image.Image) error {
	b := img.Bounds()
	if b.Dx() != l.width || b.Dy() != l.height {
		return ErrSizeMismatch
	}
	draw.Draw(l.View(), l.View().Bounds(), img, b.Min, draw.Src)
	l.dirty.MarkAll()
	return nil
}

// CopyFrom overwrites the layer with src's pixels. Sizes must match.
func (l *Layer) CopyFrom(src *Layer) error {
	if src.width != l.width || src.height != l.height {
		return ErrSizeMismatch
	}
	copy(l.data, src.data)
	l.dirty.MarkAll()
	return nil
}

// Clone returns an independent copy of l.
func (l *Layer) Clone() *Layer {
	c := NewLayer(l.width, l.height)
	copy(c.data, l.data)
	return c
}

// At implements the image.Image interface.
func (l *Layer) At(x, y int) color.Color {
	return l.Pixel(x, y)
}

// Bounds implements the image.Image interface.
func (l *Layer) Bounds() image.Rectangle {
	return image.Rect(0, 0, l.width, l.height)
}

// ColorModel implements the image.Image interface.
func (l *Layer) ColorModel() color.Model {
	return color.RGBAModel
}
