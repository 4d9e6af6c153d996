// Package viewport maps pointer positions on the display surface to document
// pixel coordinates.
package viewport

import (
	"math"
	"sync"

	"github.com/gogpu/retouch/document"
)

// Zoom limits, in percent.
const (
	MinScale     = 10
	MaxScale     = 100
	DefaultScale = 100
)

// Rect is the on-screen rectangle of the document container, in viewport
// coordinates. Width and Height are the displayed (scaled) size.
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p document.Point) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X < r.X+r.Width && p.Y < r.Y+r.Height
}

// ToDocument converts a pointer position to document pixel coordinates.
// scale is the display factor (1 = 100%). It returns false when the container
// is not mounted or the scale is not positive.
func ToDocument(p document.Point, scale float64, container *Rect) (document.Point, bool) {
	if container == nil || !(scale > 0) {
		return document.Point{}, false
	}
	return document.Point{
		X: (p.X - container.X) / scale,
		Y: (p.Y - container.Y) / scale,
	}, true
}

// ClampScale rounds a zoom percentage and clamps it to [MinScale, MaxScale].
// NaN yields DefaultScale.
func ClampScale(percent float64) int {
	if math.IsNaN(percent) {
		return DefaultScale
	}
	v := math.Round(percent)
	if v < MinScale {
		return MinScale
	}
	if v > MaxScale {
		return MaxScale
	}
	return int(v)
}

// Mapper holds the current zoom and the mounted container. It is safe for
// concurrent use.
type Mapper struct {
	mu        sync.RWMutex
	percent   int
	container *Rect
}

// NewMapper returns a Mapper at DefaultScale with no container mounted.
func NewMapper() *Mapper {
	return &Mapper{percent: DefaultScale}
}

// SetScale sets the zoom percentage (clamped) and returns the stored value.
func (m *Mapper) SetScale(percent float64) int {
	v := ClampScale(percent)
	m.mu.Lock()
	m.percent = v
	m.mu.Unlock()
	return v
}

// Scale returns the zoom percentage.
func (m *Mapper) Scale() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.percent
}

// Mount records the container rectangle. A nil rect unmounts it.
func (m *Mapper) Mount(r *Rect) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r == nil {
		m.container = nil
		return
	}
	c := *r
	m.container = &c
}

// Map converts p using the current scale and container.
func (m *Mapper) Map(p document.Point) (document.Point, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ToDocument(p, float64(m.percent)/100, m.container)
}
