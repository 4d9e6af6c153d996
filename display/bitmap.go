package display

import (
	"sync/atomic"

	"golang.org/x/crypto/blake2b"

	"github.com/gogpu/retouch/canvas"
	"github.com/gogpu/retouch/internal/logging"
)

// Key identifies bitmap content.
type Key [blake2b.Size256]byte

// KeyOf returns the content key of encoded bitmap data.
func KeyOf(data []byte) Key {
	return blake2b.Sum256(data)
}

var bitmapSeq atomic.Uint64

// Bitmap is a decoded image owned by at most one swapper slot. It is
// released exactly once, returning its pixels to the pool.
type Bitmap struct {
	id       uint64
	key      Key
	layer    *canvas.Layer
	pool     *canvas.Pool
	onFree   func(*Bitmap)
	released atomic.Bool
}

func newBitmap(key Key, layer *canvas.Layer, pool *canvas.Pool, onFree func(*Bitmap)) *Bitmap {
	return &Bitmap{
		id:     bitmapSeq.Add(1),
		key:    key,
		layer:  layer,
		pool:   pool,
		onFree: onFree,
	}
}

// ID returns a process-unique identifier.
func (b *Bitmap) ID() uint64 { return b.id }

// Key returns the content key of the encoded data the bitmap came from.
func (b *Bitmap) Key() Key { return b.key }

// Layer returns the decoded pixels, or nil after release.
func (b *Bitmap) Layer() *canvas.Layer {
	if b.released.Load() {
		return nil
	}
	return b.layer
}

// Released reports whether the bitmap has been released.
func (b *Bitmap) Released() bool { return b.released.Load() }

func (b *Bitmap) release() {
	if b == nil {
		return
	}
	if !b.released.CompareAndSwap(false, true) {
		logging.Logger().Warn("display: bitmap released twice", "id", b.id)
		return
	}
	if b.pool != nil {
		b.pool.Put(b.layer)
	}
	if b.onFree != nil {
		b.onFree(b)
	}
}
