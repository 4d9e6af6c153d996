package canvas

import (
	"math"

	"github.com/gogpu/retouch/document"
)

// MaxPadding caps the margin added around a stroke for partial reprocessing.
const MaxPadding = 32

// PaddingRatio is the share of the touched width used as padding margin.
const PaddingRatio = 0.2

// Bounds is the floating-point extent touched by one stroke. It only grows.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewBounds returns the bounds of a dot of the given radius at p.
func NewBounds(p document.Point, radius float64) Bounds {
	return Bounds{
		MinX: p.X - radius,
		MinY: p.Y - radius,
		MaxX: p.X + radius,
		MaxY: p.Y + radius,
	}
}

// Include grows b to cover a dot of the given radius at p.
func (b *Bounds) Include(p document.Point, radius float64) {
	b.MinX = math.Min(b.MinX, p.X-radius)
	b.MinY = math.Min(b.MinY, p.Y-radius)
	b.MaxX = math.Max(b.MaxX, p.X+radius)
	b.MaxY = math.Max(b.MaxY, p.Y+radius)
}

// Width returns MaxX-MinX.
func (b Bounds) Width() float64 {
	return b.MaxX - b.MinX
}

// Tight returns the integer region of touched pixels clamped to a
// width×height document.
func (b Bounds) Tight(width, height int) document.Region {
	return document.RegionFromBounds(b.MinX, b.MinY, b.MaxX, b.MaxY, width, height)
}

// Padding returns the margin for a stroke drawn with brushSize:
// min(PaddingRatio * max(brushSize, touched width), MaxPadding).
func (b Bounds) Padding(brushSize float64) float64 {
	return math.Min(math.Max(brushSize, b.Width())*PaddingRatio, MaxPadding)
}

// Padded returns the bounds grown by Padding(brushSize) on every side,
// rounded outwards and clamped to the document.
func (b Bounds) Padded(brushSize float64, width, height int) document.Region {
	m := b.Padding(brushSize)
	return document.RegionFromBounds(b.MinX-m, b.MinY-m, b.MaxX+m, b.MaxY+m, width, height)
}
