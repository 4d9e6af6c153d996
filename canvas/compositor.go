package canvas

import (
	"image"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/vector"

	"github.com/gogpu/retouch/document"
)

// kappa is the cubic Bézier control distance for a quarter circle.
const kappa = 0.5522847498

// Brush describes how strokes are drawn.
type Brush struct {
	// Size is the stroke width in document pixels.
	Size float64
	// Color is used by BlendSourceOver. Ignored when erasing.
	Color Color
	// Mode selects painting (BlendSourceOver) or erasing (BlendDestinationOut).
	Mode BlendMode
}

// Radius returns half the brush size.
func (b Brush) Radius() float64 {
	return b.Size / 2
}

// Stroke is the result of a finalized stroke.
type Stroke struct {
	Bounds Bounds
	// Tight covers exactly the touched pixels.
	Tight document.Region
	// Padded is Tight grown by the padding margin, for partial reprocessing.
	Padded document.Region
}

// Compositor draws pointer strokes onto a layer. Begin and Extend draw
// synchronously; End and Leave finalize the stroke exactly once.
//
// A Compositor is safe for concurrent use, but callers are expected to
// serialise pointer events.
type Compositor struct {
	mu      sync.Mutex
	layer   *Layer
	brush   Brush
	drawing bool
	last    document.Point
	bounds  Bounds

	raster vector.Rasterizer
	mask   []uint8
}

// NewCompositor returns an idle compositor drawing onto layer.
func NewCompositor(layer *Layer, brush Brush) *Compositor {
	return &Compositor{layer: layer, brush: brush}
}

// Layer returns the layer strokes are drawn onto.
func (c *Compositor) Layer() *Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layer
}

// ReplaceLayer swaps the target layer for the one returned by f without a
// stroke starting in between. While a stroke is in progress nothing happens
// unless discard is set, in which case the stroke is dropped unfinalized.
// f receives the current layer and returns false to keep it. ReplaceLayer
// reports whether the layer was replaced.
func (c *Compositor) ReplaceLayer(discard bool, f func(cur *Layer) (*Layer, bool)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drawing && !discard {
		return false
	}
	l, ok := f(c.layer)
	if !ok {
		return false
	}
	c.layer = l
	c.drawing = false
	c.bounds = Bounds{}
	return true
}

// Brush returns the current brush.
func (c *Compositor) Brush() Brush {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brush
}

// SetBrush replaces the brush. It applies from the next segment on.
func (c *Compositor) SetBrush(b Brush) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.brush = b
}

// Drawing reports whether a stroke is in progress.
func (c *Compositor) Drawing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drawing
}

// Bounds returns the bounds of the stroke in progress.
func (c *Compositor) Bounds() (Bounds, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bounds, c.drawing
}

// Begin starts a stroke at p and draws a dot there. A stroke already in
// progress is finalized first and returned.
func (c *Compositor) Begin(p document.Point) (Stroke, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.finalizeLocked()
	if c.layer == nil {
		return prev, ok
	}
	p = c.clamp(p)
	c.drawing = true
	c.last = p
	c.bounds = NewBounds(p, c.brush.Radius())
	c.segment(p, p)
	return prev, ok
}

// Extend draws a segment from the last point to p. It is a no-op when no
// stroke is in progress.
func (c *Compositor) Extend(p document.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.drawing {
		return
	}
	p = c.clamp(p)
	c.segment(c.last, p)
	c.bounds.Include(p, c.brush.Radius())
	c.last = p
}

// End finishes the stroke on pointer release.
func (c *Compositor) End() (Stroke, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalizeLocked()
}

// Leave finishes the stroke when the pointer leaves the surface. It behaves
// exactly like End.
func (c *Compositor) Leave() (Stroke, bool) {
	return c.End()
}

// Reset abandons the stroke in progress without finalizing it. Pixels already
// drawn stay on the layer.
func (c *Compositor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawing = false
	c.bounds = Bounds{}
}

func (c *Compositor) finalizeLocked() (Stroke, bool) {
	if !c.drawing {
		return Stroke{}, false
	}
	c.drawing = false
	w, h := c.layer.Width(), c.layer.Height()
	s := Stroke{
		Bounds: c.bounds,
		Tight:  c.bounds.Tight(w, h),
		Padded: c.bounds.Padded(c.brush.Size, w, h),
	}
	c.bounds = Bounds{}
	return s, true
}

func (c *Compositor) clamp(p document.Point) document.Point {
	return document.Point{
		X: math.Max(0, math.Min(p.X, float64(c.layer.Width()))),
		Y: math.Max(0, math.Min(p.Y, float64(c.layer.Height()))),
	}
}

// segment composites a round-capped line from a to b.
func (c *Compositor) segment(a, b document.Point) {
	r := c.brush.Radius()
	if !(r > 0) {
		return
	}

	// Rasterize over the unclipped capsule extent so every path vertex lies
	// inside the rasterizer; clipping happens when blending.
	box := image.Rect(
		int(math.Floor(math.Min(a.X, b.X)-r))-1,
		int(math.Floor(math.Min(a.Y, b.Y)-r))-1,
		int(math.Ceil(math.Max(a.X, b.X)+r))+1,
		int(math.Ceil(math.Max(a.Y, b.Y)+r))+1,
	)
	clip := box.Intersect(c.layer.Bounds())
	if clip.Empty() {
		return
	}

	w, h := box.Dx(), box.Dy()
	c.raster.Reset(w, h)
	c.raster.DrawOp = draw.Src
	ox, oy := float64(box.Min.X), float64(box.Min.Y)
	capsule(&c.raster, a.X-ox, a.Y-oy, b.X-ox, b.Y-oy, r)

	// The rasterizer writes w*h bytes assuming Stride == w.
	if cap(c.mask) < w*h {
		c.mask = make([]uint8, w*h)
	}
	cov := &image.Alpha{Pix: c.mask[:w*h], Stride: w, Rect: image.Rect(0, 0, w, h)}
	clear(cov.Pix)
	c.raster.Draw(cov, cov.Bounds(), image.Opaque, image.Point{})

	var sr, sg, sb, sa byte
	if c.brush.Mode == BlendDestinationOut {
		sa = 255
	} else {
		sr, sg, sb, sa = c.brush.Color.Premultiplied()
	}
	fn := c.brush.Mode.fn()

	stride := c.layer.width * 4
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		my := y - box.Min.Y
		row := cov.Pix[my*cov.Stride+clip.Min.X-box.Min.X : my*cov.Stride+clip.Max.X-box.Min.X]
		off := y*stride + clip.Min.X*4
		blendSpan(c.layer.data[off:off+len(row)*4], row, sr, sg, sb, sa, fn)
	}
	c.layer.dirty.MarkRect(clip)
}

// capsule adds a closed path covering every point within r of segment ab.
// A zero-length segment yields a circle.
func capsule(z *vector.Rasterizer, ax, ay, bx, by, r float64) {
	dx, dy := bx-ax, by-ay
	length := math.Hypot(dx, dy)
	if length < 1e-9 {
		dx, dy = 1, 0
	} else {
		dx, dy = dx/length, dy/length
	}
	nx, ny := -dy, dx

	z.MoveTo(float32(ax+nx*r), float32(ay+ny*r))
	z.LineTo(float32(bx+nx*r), float32(by+ny*r))
	quarter(z, bx, by, nx, ny, dx, dy, r)
	quarter(z, bx, by, dx, dy, -nx, -ny, r)
	z.LineTo(float32(ax-nx*r), float32(ay-ny*r))
	quarter(z, ax, ay, -nx, -ny, -dx, -dy, r)
	quarter(z, ax, ay, -dx, -dy, nx, ny, r)
	z.ClosePath()
}

// quarter appends a quarter arc around (cx, cy) from direction u to v.
func quarter(z *vector.Rasterizer, cx, cy, ux, uy, vx, vy, r float64) {
	k := kappa * r
	p0x, p0y := cx+ux*r, cy+uy*r
	p3x, p3y := cx+vx*r, cy+vy*r
	z.CubeTo(
		float32(p0x+vx*k), float32(p0y+vy*k),
		float32(p3x+ux*k), float32(p3y+uy*k),
		float32(p3x), float32(p3y),
	)
}
