package canvas

import "sync"

// Pool is a thread-safe pool of layers grouped by size. Decoded bitmaps are
// taken from it and returned once no display slot references them.
type Pool struct {
	mu      sync.Mutex
	buckets map[poolKey][]*Layer
	maxSize int // max layers per bucket, 0 = unlimited
}

type poolKey struct {
	width  int
	height int
}

// NewPool creates a pool retaining at most maxPerBucket layers of each size.
func NewPool(maxPerBucket int) *Pool {
	return &Pool{
		buckets: make(map[poolKey][]*Layer),
		maxSize: maxPerBucket,
	}
}

// Get returns a cleared layer of the given size, reusing a pooled one when
// available.
func (p *Pool) Get(width, height int) *Layer {
	key := poolKey{width: width, height: height}

	p.mu.Lock()
	bucket := p.buckets[key]
	if n := len(bucket); n > 0 {
		l := bucket[n-1]
		p.buckets[key] = bucket[:n-1]
		p.mu.Unlock()
		return l
	}
	p.mu.Unlock()

	return NewLayer(width, height)
}

// Put returns l to the pool. The layer is cleared; a full bucket drops it.
func (p *Pool) Put(l *Layer) {
	if l == nil {
		return
	}
	clear(l.data)
	l.dirty.Take()

	key := poolKey{width: l.width, height: l.height}

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, l)
}

// Len returns the number of pooled layers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.buckets {
		n += len(b)
	}
	return n
}
