package display

import (
	"sync"
	"time"

	"github.com/gogpu/retouch/internal/clock"
)

// FrameScheduler runs callbacks at the next frame boundary of the display
// surface. RequestFrame must not run f synchronously.
type FrameScheduler interface {
	RequestFrame(f func())
}

// TickerFrames is a FrameScheduler that treats every interval on a clock as
// a frame boundary. Callbacks requested while a frame runs wait for the next
// one.
type TickerFrames struct {
	clock    clock.Clock
	interval time.Duration

	mu      sync.Mutex
	pending []func()
	armed   bool
}

// NewTickerFrames returns a scheduler firing every interval on c.
func NewTickerFrames(c clock.Clock, interval time.Duration) *TickerFrames {
	if c == nil {
		c = clock.Real()
	}
	return &TickerFrames{clock: c, interval: interval}
}

// RequestFrame implements FrameScheduler.
func (t *TickerFrames) RequestFrame(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, f)
	if !t.armed {
		t.armed = true
		t.clock.AfterFunc(t.interval, t.frame)
	}
}

func (t *TickerFrames) frame() {
	t.mu.Lock()
	batch := t.pending
	t.pending = nil
	t.armed = false
	t.mu.Unlock()

	for _, f := range batch {
		f()
	}
}
