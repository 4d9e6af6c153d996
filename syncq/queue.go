// Package syncq serialises local edits to a slow remote backend.
//
// Two variants share the same guarantees: at most one send is in flight per
// queue, and Flush is a barrier that returns once nothing is pending.
//
//   - LatestWins keeps only the most recent payload. A burst of edits ends in
//     one or a few sends, the last of which carries the final state.
//   - Ordered keeps every update and sends them strictly in FIFO order, each
//     awaited before the next, after an inactivity window.
//
// A failed send is logged, reported to the error handler and dropped; the
// queue keeps draining.
package syncq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogpu/retouch/internal/clock"
	"github.com/gogpu/retouch/internal/logging"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("syncq: queue closed")

// DefaultDebounce is the inactivity window of an Ordered queue.
const DefaultDebounce = 250 * time.Millisecond

// SendFunc transmits one payload to the backend.
type SendFunc[T any] func(ctx context.Context, v T) error

// Option configures a queue.
type Option func(*options)

type options struct {
	name     string
	debounce time.Duration
	clock    clock.Clock
	onError  func(error)
}

func defaultOptions() options {
	return options{
		name:     "queue",
		debounce: DefaultDebounce,
		clock:    clock.Real(),
	}
}

// WithName sets the name used in log records.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithDebounce sets the inactivity window of an Ordered queue. Zero sends
// immediately. LatestWins ignores it.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = max(0, d)
	}
}

// WithClock sets the clock driving the debounce timer.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithErrorHandler registers f to receive every failed send.
func WithErrorHandler(f func(error)) Option {
	return func(o *options) {
		o.onError = f
	}
}

// base is the single-consumer drain loop shared by both variants.
type base[T any] struct {
	opts   options
	send   SendFunc[T]
	latest bool

	mu      sync.Mutex
	items   []T
	running bool
	done    chan struct{}
	timer   clock.Timer
	timerID uint64
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newBase[T any](send SendFunc[T], latest bool, opts []Option) *base[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &base[T]{opts: o, send: send, latest: latest, ctx: ctx, cancel: cancel}
}

func (b *base[T]) enqueue(v T, debounce time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.latest {
		b.items = append(b.items[:0], v)
	} else {
		b.items = append(b.items, v)
	}

	if debounce <= 0 {
		b.kickLocked()
		return nil
	}
	b.stopTimerLocked()
	id := b.timerID
	b.timer = b.opts.clock.AfterFunc(debounce, func() { b.fire(id) })
	return nil
}

// fire runs when timer id expires. A timer that was stopped after it had
// already fired is ignored.
func (b *base[T]) fire(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id != b.timerID || b.timer == nil {
		return
	}
	b.timer = nil
	b.kickLocked()
}

// stopTimerLocked stops the debounce timer and invalidates its callback.
func (b *base[T]) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.timerID++
}

// kickLocked starts the drain loop if it is idle and work is pending.
func (b *base[T]) kickLocked() {
	if b.running || b.closed || len(b.items) == 0 {
		return
	}
	b.running = true
	b.done = make(chan struct{})
	go b.drain(b.done)
}

func (b *base[T]) drain(done chan struct{}) {
	log := logging.Logger()
	for {
		b.mu.Lock()
		if b.closed || len(b.items) == 0 {
			b.running = false
			close(done)
			b.mu.Unlock()
			return
		}
		v := b.items[0]
		var zero T
		b.items[0] = zero
		b.items = b.items[1:]
		b.mu.Unlock()

		log.Debug("syncq: send", "queue", b.opts.name)
		if err := b.send(b.ctx, v); err != nil {
			log.Warn("syncq: send failed", "queue", b.opts.name, "err", err)
			if b.opts.onError != nil {
				b.opts.onError(err)
			}
		}
	}
}

func (b *base[T]) flush(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.stopTimerLocked()
	b.kickLocked()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	done := b.done
	b.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *base[T]) clearPending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
	n := len(b.items)
	b.items = nil
	return n
}

func (b *base[T]) pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *base[T]) busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *base[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.stopTimerLocked()
	if n := len(b.items); n > 0 {
		logging.Logger().Debug("syncq: dropping pending on close", "queue", b.opts.name, "count", n)
	}
	b.items = nil
	b.cancel()
}

// LatestWins sends full-state payloads, keeping only the most recent
// unsent one.
type LatestWins[T any] struct {
	b *base[T]
}

// NewLatestWins returns a latest-wins queue delivering payloads to send.
func NewLatestWins[T any](send SendFunc[T], opts ...Option) *LatestWins[T] {
	return &LatestWins[T]{b: newBase(send, true, opts)}
}

// Enqueue replaces any unsent payload with v and starts draining.
func (q *LatestWins[T]) Enqueue(v T) error { return q.b.enqueue(v, 0) }

// Flush waits until nothing is pending or in flight.
func (q *LatestWins[T]) Flush(ctx context.Context) error { return q.b.flush(ctx) }

// Pending reports whether an unsent payload is waiting.
func (q *LatestWins[T]) Pending() bool { return q.b.pending() > 0 }

// Busy reports whether a send is in flight.
func (q *LatestWins[T]) Busy() bool { return q.b.busy() }

// Close drops the unsent payload and cancels the in-flight send's context.
func (q *LatestWins[T]) Close() { q.b.close() }

// Ordered sends incremental updates in FIFO order after an inactivity
// window.
type Ordered[T any] struct {
	b *base[T]
}

// NewOrdered returns an ordered queue delivering updates to send.
func NewOrdered[T any](send SendFunc[T], opts ...Option) *Ordered[T] {
	return &Ordered[T]{b: newBase(send, false, opts)}
}

// Enqueue appends v and restarts the inactivity timer.
func (q *Ordered[T]) Enqueue(v T) error { return q.b.enqueue(v, q.b.opts.debounce) }

// Flush cancels the timer, sends everything buffered in order and waits
// until the queue is empty.
func (q *Ordered[T]) Flush(ctx context.Context) error { return q.b.flush(ctx) }

// ClearPending drops every buffered update that has not been sent yet and
// returns how many were dropped. An in-flight send is unaffected.
func (q *Ordered[T]) ClearPending() int { return q.b.clearPending() }

// Pending returns the number of buffered updates.
func (q *Ordered[T]) Pending() int { return q.b.pending() }

// Busy reports whether a send is in flight.
func (q *Ordered[T]) Busy() bool { return q.b.busy() }

// Close drops buffered updates and cancels the in-flight send's context.
func (q *Ordered[T]) Close() { q.b.close() }

// Task is a unit of work run by a serial queue.
type Task func(ctx context.Context) error

// NewSerial returns an Ordered queue that runs tasks one after another as
// soon as they are enqueued.
func NewSerial(opts ...Option) *Ordered[Task] {
	opts = append(opts, WithDebounce(0))
	return NewOrdered(func(ctx context.Context, t Task) error { return t(ctx) }, opts...)
}
