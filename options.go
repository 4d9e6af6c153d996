package retouch

import (
	"time"

	"github.com/gogpu/retouch/canvas"
	"github.com/gogpu/retouch/display"
	"github.com/gogpu/retouch/document"
	"github.com/gogpu/retouch/generation"
	"github.com/gogpu/retouch/internal/clock"
	"github.com/gogpu/retouch/syncq"
)

// Default brush settings.
const (
	DefaultBrushSize = 36
)

// DefaultBrushColor is the paint color of the brush tool.
var DefaultBrushColor = canvas.Color{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// Option configures a Session during creation.
//
// Example:
//
//	s, err := retouch.New(be,
//	    retouch.WithBrush(24, canvas.Black),
//	    retouch.WithMaskDebounce(100*time.Millisecond),
//	)
type Option func(*options)

// options holds optional configuration for Session creation.
type options struct {
	clock          clock.Clock
	frames         display.FrameScheduler
	maskDebounce   time.Duration
	fadeDuration   time.Duration
	brushSize      float64
	brushColor     canvas.Color
	effect         document.RenderEffect
	generationOpts []generation.Option
	poolSize       int
	onSyncError    func(error)
}

// defaultOptions returns the default session options.
func defaultOptions() options {
	return options{
		clock:        clock.Real(),
		maskDebounce: syncq.DefaultDebounce,
		fadeDuration: display.DefaultDuration,
		brushSize:    DefaultBrushSize,
		brushColor:   DefaultBrushColor,
		effect:       document.EffectNormal,
		poolSize:     4,
	}
}

// WithClock sets the clock used by queues, displays and readiness polls.
// Tests pass a manual clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithFrames sets the frame scheduler shared by the layer displays.
func WithFrames(f display.FrameScheduler) Option {
	return func(o *options) {
		o.frames = f
	}
}

// WithMaskDebounce sets the inactivity window of the mask queue.
func WithMaskDebounce(d time.Duration) Option {
	return func(o *options) {
		o.maskDebounce = max(0, d)
	}
}

// WithFadeDuration sets the cross-fade duration of the layer displays.
func WithFadeDuration(d time.Duration) Option {
	return func(o *options) {
		o.fadeDuration = max(0, d)
	}
}

// WithBrush sets the initial brush size and paint color.
func WithBrush(size float64, c canvas.Color) Option {
	return func(o *options) {
		if size > 0 {
			o.brushSize = size
		}
		o.brushColor = c
	}
}

// WithRenderEffect sets the initial render effect.
func WithRenderEffect(e document.RenderEffect) Option {
	return func(o *options) {
		if e.Valid() {
			o.effect = e
		}
	}
}

// WithGeneration passes options to the generation manager.
func WithGeneration(opts ...generation.Option) Option {
	return func(o *options) {
		o.generationOpts = append(o.generationOpts, opts...)
	}
}

// WithBitmapPool sets how many decoded bitmaps of one size are kept for
// reuse by the layer displays.
func WithBitmapPool(n int) Option {
	return func(o *options) {
		o.poolSize = max(0, n)
	}
}

// WithSyncErrorHandler registers f to receive every failed background
// sync: text blocks, mask updates, partial inpaints and brush paints.
func WithSyncErrorHandler(f func(error)) Option {
	return func(o *options) {
		o.onSyncError = f
	}
}
