package document

import (
	"image"
	"math"
)

// Point is a position in document pixel space.
type Point struct {
	X, Y float64
}

// Region is an integer rectangle in document pixel space.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Area returns Width*Height, or 0 for an empty region.
func (r Region) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Rect converts the region to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// RegionFromRect converts an image.Rectangle to a Region.
func RegionFromRect(rect image.Rectangle) Region {
	return Region{X: rect.Min.X, Y: rect.Min.Y, Width: rect.Dx(), Height: rect.Dy()}
}

// RegionFromBounds converts floating bounds to the smallest integer region
// covering them (floor of the minimum, ceil of the maximum), clamped to a
// width×height document. The result is never smaller than 1×1.
func RegionFromBounds(minX, minY, maxX, maxY float64, width, height int) Region {
	x0 := clampInt(int(math.Floor(minX)), 0, max(0, width-1))
	y0 := clampInt(int(math.Floor(minY)), 0, max(0, height-1))
	x1 := min(width, int(math.Ceil(maxX)))
	y1 := min(height, int(math.Ceil(maxY)))
	return Region{
		X:      x0,
		Y:      y0,
		Width:  max(1, x1-x0),
		Height: max(1, y1-y0),
	}
}

// Clamp intersects the region with a width×height document. It returns false
// when nothing of the region remains inside.
func (r Region) Clamp(width, height int) (Region, bool) {
	if width <= 0 || height <= 0 || r.Empty() {
		return Region{}, false
	}
	clipped := r.Rect().Intersect(image.Rect(0, 0, width, height))
	if clipped.Empty() {
		return Region{}, false
	}
	return RegionFromRect(clipped), true
}

// Larger returns whichever of a and b covers more pixels, preferring a on ties.
func Larger(a, b Region) Region {
	if a.Area() >= b.Area() {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
