package canvas

import (
	"image"
	"math/bits"
	"sync/atomic"
)

// TileSize is the edge length, in pixels, of one dirty-tracking tile.
const TileSize = 64

// DirtyTiles records which TileSize×TileSize tiles of a layer were drawn
// since the last Take. One bit per tile, packed into atomic words, so a
// renderer may Take concurrently with drawing.
type DirtyTiles struct {
	words  []atomic.Uint64
	width  int
	height int
	tilesX int
	tilesY int
}

// NewDirtyTiles returns a tracker for a width×height layer, or nil for an
// empty size.
func NewDirtyTiles(width, height int) *DirtyTiles {
	if width <= 0 || height <= 0 {
		return nil
	}
	tx := (width + TileSize - 1) / TileSize
	ty := (height + TileSize - 1) / TileSize
	return &DirtyTiles{
		words:  make([]atomic.Uint64, (tx*ty+63)/64),
		width:  width,
		height: height,
		tilesX: tx,
		tilesY: ty,
	}
}

func (d *DirtyTiles) mark(tx, ty int) {
	if tx < 0 || tx >= d.tilesX || ty < 0 || ty >= d.tilesY {
		return
	}
	idx := ty*d.tilesX + tx
	d.words[idx/64].Or(1 << (idx & 63))
}

// MarkRect marks every tile intersecting r (pixel coordinates).
func (d *DirtyTiles) MarkRect(r image.Rectangle) {
	if d == nil {
		return
	}
	r = r.Intersect(image.Rect(0, 0, d.width, d.height))
	if r.Empty() {
		return
	}
	tx1, ty1 := r.Min.X/TileSize, r.Min.Y/TileSize
	tx2, ty2 := (r.Max.X-1)/TileSize, (r.Max.Y-1)/TileSize
	for ty := ty1; ty <= ty2; ty++ {
		for tx := tx1; tx <= tx2; tx++ {
			d.mark(tx, ty)
		}
	}
}

// MarkAll marks the whole layer.
func (d *DirtyTiles) MarkAll() {
	if d == nil {
		return
	}
	d.MarkRect(image.Rect(0, 0, d.width, d.height))
}

// IsEmpty reports whether no tile is marked.
func (d *DirtyTiles) IsEmpty() bool {
	if d == nil {
		return true
	}
	for i := range d.words {
		if d.words[i].Load() != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of marked tiles.
func (d *DirtyTiles) Count() int {
	if d == nil {
		return 0
	}
	n := 0
	for i := range d.words {
		n += bits.OnesCount64(d.words[i].Load())
	}
	return n
}

// Take returns the pixel rectangles of all marked tiles, clipped to the
// layer, and clears them. Tiles are returned in row-major order.
func (d *DirtyTiles) Take() []image.Rectangle {
	if d == nil {
		return nil
	}
	total := d.tilesX * d.tilesY
	var out []image.Rectangle
	for wi := range d.words {
		word := d.words[wi].Swap(0)
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			idx := wi*64 + bit
			if idx >= total {
				break
			}
			tx, ty := idx%d.tilesX, idx/d.tilesX
			r := image.Rect(tx*TileSize, ty*TileSize, (tx+1)*TileSize, (ty+1)*TileSize)
			out = append(out, r.Intersect(image.Rect(0, 0, d.width, d.height)))
			word &^= 1 << bit
		}
	}
	return out
}
