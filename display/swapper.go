// Package display shows backend-produced bitmaps without flicker. A new
// bitmap is decoded off the caller's goroutine, staged behind the shown one
// and cross-faded in.
package display

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/retouch/canvas"
	"github.com/gogpu/retouch/internal/clock"
	"github.com/gogpu/retouch/internal/logging"
)

// ErrClosed is returned by Show after Close.
var ErrClosed = errors.New("display: swapper closed")

// Timing of the cross-fade.
const (
	DefaultDuration = 180 * time.Millisecond
	// FallbackSlack is added to the fade duration before the staged bitmap is
	// promoted without a transition-end signal.
	FallbackSlack = 50 * time.Millisecond
)

// State is the swapper's buffer state.
type State uint8

const (
	StateEmpty State = iota
	StateSingle
	StateTransitioning
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateSingle:
		return "single"
	case StateTransitioning:
		return "transitioning"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// DecodeFunc decodes encoded bitmap data into a layer, optionally from pool.
type DecodeFunc func(data []byte, pool *canvas.Pool) (*canvas.Layer, error)

// Option configures a Swapper.
type Option func(*options)

type options struct {
	name       string
	clock      clock.Clock
	frames     FrameScheduler
	duration   time.Duration
	opacity    float64
	transition bool
	pool       *canvas.Pool
	decode     DecodeFunc
	onChange   func(State)
	onRelease  func(*Bitmap)
}

func defaultOptions() options {
	return options{
		name:       "layer",
		clock:      clock.Real(),
		duration:   DefaultDuration,
		opacity:    1,
		transition: true,
		decode:     canvas.Decode,
	}
}

// WithName sets the name used in log records.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithClock sets the clock driving the fallback timer and fade progress.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithFrames sets the frame scheduler. The default ticks at 60 Hz on the
// swapper's clock.
func WithFrames(f FrameScheduler) Option {
	return func(o *options) { o.frames = f }
}

// WithDuration sets the fade duration.
func WithDuration(d time.Duration) Option {
	return func(o *options) { o.duration = max(0, d) }
}

// WithOpacity sets the opacity the staged bitmap fades to.
func WithOpacity(v float64) Option {
	return func(o *options) { o.opacity = min(1, max(0, v)) }
}

// WithTransition enables or disables the cross-fade. Without it a new
// bitmap replaces the shown one immediately.
func WithTransition(enabled bool) Option {
	return func(o *options) { o.transition = enabled }
}

// WithPool sets the pool decoded bitmaps are taken from and returned to.
func WithPool(p *canvas.Pool) Option {
	return func(o *options) { o.pool = p }
}

// WithDecoder replaces the bitmap decoder.
func WithDecoder(f DecodeFunc) Option {
	return func(o *options) {
		if f != nil {
			o.decode = f
		}
	}
}

// WithOnChange registers f to be called after every state change.
func WithOnChange(f func(State)) Option {
	return func(o *options) { o.onChange = f }
}

// WithOnRelease registers f to be called once per released bitmap.
func WithOnRelease(f func(*Bitmap)) Option {
	return func(o *options) { o.onRelease = f }
}

// Swapper is a double-buffered bitmap display. It is safe for concurrent
// use.
type Swapper struct {
	opts options

	mu         sync.Mutex
	current    *Bitmap
	next       *Bitmap
	fading     bool
	fadeStart  time.Time
	token      uint64 // invalidates frame and timer callbacks of older stagings
	decodeGen  uint64 // invalidates in-flight decodes
	pendingKey *Key
	fallback   clock.Timer
	closed     bool
}

// NewSwapper returns an empty swapper.
func NewSwapper(opts ...Option) *Swapper {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.frames == nil {
		o.frames = NewTickerFrames(o.clock, time.Second/60)
	}
	return &Swapper{opts: o}
}

// Show decodes data in the background and displays it once ready. Data
// identical to what is shown, staged or being decoded is ignored. Empty
// data clears the swapper.
func (s *Swapper) Show(data []byte) error {
	if len(data) == 0 {
		s.Clear()
		return nil
	}
	key := KeyOf(data)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.isDuplicateLocked(key) {
		s.mu.Unlock()
		return nil
	}
	s.decodeGen++
	gen := s.decodeGen
	s.pendingKey = &key
	s.mu.Unlock()

	go func() {
		layer, err := s.opts.decode(data, s.opts.pool)
		var bmp *Bitmap
		if err == nil {
			bmp = newBitmap(key, layer, s.opts.pool, s.opts.onRelease)
		}
		s.decoded(gen, bmp, err)
	}()
	return nil
}

func (s *Swapper) isDuplicateLocked(key Key) bool {
	if s.pendingKey != nil {
		return *s.pendingKey == key
	}
	if s.next != nil {
		return s.next.key == key
	}
	return s.current != nil && s.current.key == key
}

func (s *Swapper) decoded(gen uint64, bmp *Bitmap, err error) {
	s.mu.Lock()
	if s.closed || gen != s.decodeGen {
		s.mu.Unlock()
		bmp.release()
		logging.Logger().Debug("display: discarded late decode", "layer", s.opts.name)
		return
	}
	s.pendingKey = nil
	if err != nil {
		s.mu.Unlock()
		logging.Logger().Warn("display: decode failed, keeping previous bitmap",
			"layer", s.opts.name, "err", err)
		return
	}
	after := s.presentLocked(bmp)
	s.mu.Unlock()
	after()
}

// presentLocked makes bmp the shown or staged bitmap and returns work to run
// after unlocking.
func (s *Swapper) presentLocked(bmp *Bitmap) func() {
	switch {
	case s.current == nil:
		s.current = bmp
		return s.changed(StateSingle)

	case !s.opts.transition:
		s.dropStagedLocked()
		s.current.release()
		s.current = bmp
		return s.changed(StateSingle)

	default:
		s.dropStagedLocked()
		s.next = bmp
		s.token++
		t := s.token
		frames := s.opts.frames
		// Two frame boundaries guarantee the zero-opacity state was painted.
		frames.RequestFrame(func() {
			frames.RequestFrame(func() { s.beginFade(t) })
		})
		return s.changed(StateTransitioning)
	}
}

// dropStagedLocked releases the staged bitmap, if any, and stops its fade.
func (s *Swapper) dropStagedLocked() {
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
	s.fading = false
	if s.next != nil {
		s.next.release()
		s.next = nil
	}
}

func (s *Swapper) beginFade(t uint64) {
	s.mu.Lock()
	if t != s.token || s.next == nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.fading = true
	s.fadeStart = s.opts.clock.Now()
	s.fallback = s.opts.clock.AfterFunc(s.opts.duration+FallbackSlack, func() { s.promote(t) })
	s.mu.Unlock()
}

// TransitionEnd signals that the renderer finished the opacity transition.
func (s *Swapper) TransitionEnd() {
	s.mu.Lock()
	t := s.token
	fading := s.fading
	s.mu.Unlock()
	if fading {
		s.promote(t)
	}
}

func (s *Swapper) promote(t uint64) {
	s.mu.Lock()
	if t != s.token || s.next == nil {
		s.mu.Unlock()
		return
	}
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
	s.current.release()
	s.current = s.next
	s.next = nil
	s.fading = false
	after := s.changed(StateSingle)
	s.mu.Unlock()
	after()
}

// Clear cancels any in-flight decode and releases every bitmap.
func (s *Swapper) Clear() {
	s.mu.Lock()
	s.clearLocked()
	after := s.changed(StateEmpty)
	s.mu.Unlock()
	after()
}

func (s *Swapper) clearLocked() {
	s.decodeGen++
	s.pendingKey = nil
	s.token++
	s.dropStagedLocked()
	if s.current != nil {
		s.current.release()
		s.current = nil
	}
}

// Close releases everything. Decodes finishing later are discarded.
func (s *Swapper) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.clearLocked()
	s.closed = true
	s.mu.Unlock()
}

func (s *Swapper) changed(st State) func() {
	f := s.opts.onChange
	if f == nil {
		return func() {}
	}
	return func() { f(st) }
}

// State returns the current buffer state.
func (s *Swapper) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Swapper) stateLocked() State {
	switch {
	case s.next != nil:
		return StateTransitioning
	case s.current != nil:
		return StateSingle
	default:
		return StateEmpty
	}
}

// View is what a renderer draws: Current at full opacity and, while
// transitioning, Next on top at NextOpacity.
type View struct {
	State       State
	Current     *canvas.Layer
	CurrentKey  Key
	Next        *canvas.Layer
	NextKey     Key
	NextOpacity float64
}

// Render calls draw with the current view. Bitmaps in the view stay valid
// until draw returns; draw must not call back into the swapper.
func (s *Swapper) Render(draw func(View)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{State: s.stateLocked()}
	if s.current != nil {
		v.Current = s.current.Layer()
		v.CurrentKey = s.current.key
	}
	if s.next != nil {
		v.Next = s.next.Layer()
		v.NextKey = s.next.key
		if s.fading {
			v.NextOpacity = s.opts.opacity
			if s.opts.duration > 0 {
				p := float64(s.opts.clock.Now().Sub(s.fadeStart)) / float64(s.opts.duration)
				v.NextOpacity = s.opts.opacity * min(1, max(0, p))
			}
		}
	}
	draw(v)
}
