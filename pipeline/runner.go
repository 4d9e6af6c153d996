// Package pipeline sequences the backend processing steps of one document or
// of every document in turn, with progress reporting and cooperative
// cancellation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/retouch/internal/logging"
)

// Errors returned by the runner.
var (
	// ErrBusy is returned when an operation is already running.
	ErrBusy = errors.New("pipeline: an operation is already running")

	// ErrMissingHandler is returned by New when a step has no handler.
	ErrMissingHandler = errors.New("pipeline: missing step handler")
)

// Result describes how far a run got on one document.
type Result struct {
	Document  int
	Completed int
	Cancelled bool
}

// BatchResult describes a run over every document. Documents never reached
// are absent.
type BatchResult struct {
	Documents []Result
	Cancelled bool
}

// Option configures a Runner.
type Option func(*options)

type options struct {
	preflight Preflight
	tracker   *Tracker
	onStep    func(doc int, s Step)
}

// WithPreflight sets the readiness check run before the first step.
func WithPreflight(p Preflight) Option {
	return func(o *options) { o.preflight = p }
}

// WithTracker shares an operation tracker with other long-running work, so
// at most one of them runs at a time.
func WithTracker(t *Tracker) Option {
	return func(o *options) {
		if t != nil {
			o.tracker = t
		}
	}
}

// WithStepObserver registers f to be called before each step starts.
func WithStepObserver(f func(doc int, s Step)) Option {
	return func(o *options) { o.onStep = f }
}

// Runner executes the step table.
type Runner struct {
	handlers Handlers
	opts     options
}

// New returns a Runner for handlers.
func New(handlers Handlers, opts ...Option) (*Runner, error) {
	if err := handlers.validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracker == nil {
		o.tracker = NewTracker()
	}
	return &Runner{handlers: handlers, opts: o}, nil
}

// Tracker returns the runner's operation tracker.
func (r *Runner) Tracker() *Tracker {
	return r.opts.tracker
}

// Cancel requests cancellation of the running operation. Steps already
// applied stay applied.
func (r *Runner) Cancel() bool {
	return r.opts.tracker.RequestCancel()
}

// begin starts tracking op and returns a context cancelled by Cancel.
func (r *Runner) begin(ctx context.Context, op Operation) (context.Context, func(), error) {
	if err := r.opts.tracker.Start(op); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	r.opts.tracker.bind(cancel)
	return ctx, func() {
		cancel()
		r.opts.tracker.Finish()
	}, nil
}

func (r *Runner) preflight(ctx context.Context) error {
	if r.opts.preflight == nil {
		return nil
	}
	if err := r.opts.preflight.EnsureReady(ctx); err != nil {
		return fmt.Errorf("pipeline: preflight: %w", err)
	}
	return nil
}

// Process runs every step on document doc, reporting
// floor(completed/TotalSteps*100) to sink after each step.
func (r *Runner) Process(ctx context.Context, doc int, sink ProgressSink) (Result, error) {
	ctx, done, err := r.begin(ctx, Operation{
		Type:        TypeProcessCurrent,
		Document:    doc,
		Total:       float64(TotalSteps),
		Cancellable: true,
	})
	if err != nil {
		return Result{Document: doc}, err
	}
	defer done()

	if err := r.preflight(ctx); err != nil {
		return Result{Document: doc}, err
	}

	report(sink, 0)
	t := r.opts.tracker
	res, err := r.runDocument(ctx, doc,
		func(s Step) {
			t.Update(func(op *Operation) { op.Step = s })
		},
		func(completed int) {
			t.Update(func(op *Operation) { op.Current = float64(completed) })
			report(sink, completed*100/TotalSteps)
		},
	)
	logging.Logger().Info("pipeline: document processed",
		"doc", doc, "completed", res.Completed, "cancelled", res.Cancelled, "err", err)
	return res, err
}

// ProcessAll runs every step on documents 0..docs-1, strictly one document
// at a time. Overall progress is round((index+fraction)/docs*100), capped at
// 100, and stops being reported once cancellation is requested.
func (r *Runner) ProcessAll(ctx context.Context, docs int, sink ProgressSink) (BatchResult, error) {
	var out BatchResult
	if docs <= 0 {
		return out, nil
	}

	ctx, done, err := r.begin(ctx, Operation{
		Type:        TypeProcessAll,
		Total:       float64(docs),
		Cancellable: true,
	})
	if err != nil {
		return out, err
	}
	defer done()

	if err := r.preflight(ctx); err != nil {
		return out, err
	}

	t := r.opts.tracker
	report(sink, 0)
	for i := 0; i < docs; i++ {
		if t.CancelRequested() {
			out.Cancelled = true
			break
		}
		t.Update(func(op *Operation) {
			op.Document = i
			op.Current = float64(i)
		})

		res, err := r.runDocument(ctx, i,
			func(s Step) {
				if !t.CancelRequested() {
					t.Update(func(op *Operation) { op.Step = s })
				}
			},
			func(completed int) {
				if t.CancelRequested() {
					return
				}
				cur := float64(i) + float64(completed*100/TotalSteps)/100
				t.Update(func(op *Operation) { op.Current = cur })
				report(sink, min(100, int(math.Round(cur/float64(docs)*100))))
			},
		)
		out.Documents = append(out.Documents, res)
		if err != nil {
			return out, err
		}
		if res.Cancelled {
			out.Cancelled = true
			break
		}
		t.Update(func(op *Operation) { op.Current = float64(i + 1) })
	}
	logging.Logger().Info("pipeline: batch finished",
		"docs", docs, "reached", len(out.Documents), "cancelled", out.Cancelled)
	return out, nil
}

// runDocument executes the step table on doc, checking the cancellation
// flag before each step. An error seen after cancellation was requested
// counts as cancellation.
func (r *Runner) runDocument(ctx context.Context, doc int, onStep func(Step), onDone func(completed int)) (Result, error) {
	t := r.opts.tracker
	res := Result{Document: doc}
	log := logging.Logger()

	for _, step := range Steps {
		if t.CancelRequested() {
			res.Cancelled = true
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("pipeline: document %d: %w", doc, err)
		}

		onStep(step)
		if r.opts.onStep != nil {
			r.opts.onStep(doc, step)
		}
		log.Debug("pipeline: step", "doc", doc, "step", step)

		if err := r.handlers[step](ctx, doc); err != nil {
			if t.CancelRequested() {
				res.Cancelled = true
				return res, nil
			}
			return res, fmt.Errorf("pipeline: %s document %d: %w", step, doc, err)
		}
		res.Completed++
		onDone(res.Completed)
	}
	return res, nil
}

func report(sink ProgressSink, percent int) {
	if sink != nil {
		sink(percent)
	}
}
