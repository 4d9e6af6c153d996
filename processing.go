package retouch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/retouch/backend"
	"github.com/gogpu/retouch/document"
	"github.com/gogpu/retouch/generation"
	"github.com/gogpu/retouch/pipeline"
)

// PipelineService runs backend processing on whole documents.
type PipelineService interface {
	Detect(ctx context.Context, doc int) error
	Recognize(ctx context.Context, doc int) error
	// Inpaint flushes pending text block and mask edits first.
	Inpaint(ctx context.Context, doc int) error
	// Translate translates every text block, or only block when non-nil.
	Translate(ctx context.Context, doc int, block *int) error
	// Render flushes pending text block edits first.
	Render(ctx context.Context, doc int) error
	// RenderTextBlock re-renders one text block.
	RenderTextBlock(ctx context.Context, doc, block int) error

	// Process runs every step on doc as a tracked, cancellable operation.
	Process(ctx context.Context, doc int, sink pipeline.ProgressSink) (pipeline.Result, error)
	// ProcessAll runs every step on every document in order.
	ProcessAll(ctx context.Context, sink pipeline.ProgressSink) (pipeline.BatchResult, error)
	// Cancel requests cancellation of the running operation.
	Cancel() bool
	// Operation returns the running operation.
	Operation() (pipeline.Operation, bool)
	// Subscribe registers f to receive every operation change.
	Subscribe(f func(*pipeline.Operation))
}

type processing struct {
	be     backend.Backend
	store  *Store
	sync   *syncService
	gen    *generation.Manager
	runner *pipeline.Runner
	batch  atomic.Bool

	// afterTranslate re-renders a single translated block.
	afterTranslate func(doc, block int)
}

var _ PipelineService = (*processing)(nil)

func newProcessing(be backend.Backend, store *Store, sync *syncService, gen *generation.Manager, tracker *pipeline.Tracker) (*processing, error) {
	p := &processing{be: be, store: store, sync: sync, gen: gen}
	handlers := pipeline.Handlers{
		pipeline.StepDetect:    p.Detect,
		pipeline.StepRecognize: p.Recognize,
		pipeline.StepInpaint:   p.Inpaint,
		pipeline.StepTranslate: func(ctx context.Context, doc int) error { return p.Translate(ctx, doc, nil) },
		pipeline.StepRender:    p.Render,
	}
	r, err := pipeline.New(handlers,
		pipeline.WithPreflight(gen),
		pipeline.WithTracker(tracker),
		pipeline.WithStepObserver(func(doc int, _ pipeline.Step) {
			if p.batch.Load() && store.Current() != doc {
				_ = store.SetCurrent(doc)
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	p.runner = r
	return p, nil
}

func (p *processing) document(doc int) (document.Document, error) {
	d, ok := p.store.Document(doc)
	if !ok {
		return d, fmt.Errorf("%w: %d", ErrNoDocument, doc)
	}
	return d, nil
}

func (p *processing) Detect(ctx context.Context, doc int) error {
	if _, err := p.document(doc); err != nil {
		return err
	}
	snap, err := p.be.Detect(ctx, doc)
	if err != nil {
		return fmt.Errorf("retouch: detect: %w", err)
	}
	if err := p.store.apply(doc, snap); err != nil {
		return err
	}
	p.store.updateVisibility(func(v *Visibility) { v.Rendered = false })
	return nil
}

func (p *processing) Recognize(ctx context.Context, doc int) error {
	if _, err := p.document(doc); err != nil {
		return err
	}
	snap, err := p.be.Recognize(ctx, doc)
	if err != nil {
		return fmt.Errorf("retouch: recognize: %w", err)
	}
	return p.store.apply(doc, snap)
}

func (p *processing) Inpaint(ctx context.Context, doc int) error {
	if _, err := p.document(doc); err != nil {
		return err
	}
	if err := p.sync.FlushText(ctx); err != nil {
		return err
	}
	if err := p.sync.FlushMask(ctx); err != nil {
		return err
	}
	snap, err := p.be.Inpaint(ctx, doc)
	if err != nil {
		return fmt.Errorf("retouch: inpaint: %w", err)
	}
	if err := p.store.apply(doc, snap); err != nil {
		return err
	}
	p.store.updateVisibility(func(v *Visibility) { v.Inpainted = true })
	return nil
}

func (p *processing) Translate(ctx context.Context, doc int, block *int) error {
	if err := p.sync.FlushText(ctx); err != nil {
		return err
	}
	d, err := p.document(doc)
	if err != nil {
		return err
	}
	snap, err := p.gen.Translate(ctx, doc, d.TextBlocks, block)
	if err != nil {
		return fmt.Errorf("retouch: translate: %w", err)
	}
	if snap == nil {
		return nil
	}
	if err := p.store.apply(doc, snap); err != nil {
		return err
	}
	p.store.updateVisibility(func(v *Visibility) { v.TextBlocks = true })
	if block != nil && p.afterTranslate != nil {
		p.afterTranslate(doc, *block)
	}
	return nil
}

func (p *processing) Render(ctx context.Context, doc int) error {
	if _, err := p.document(doc); err != nil {
		return err
	}
	if err := p.sync.FlushText(ctx); err != nil {
		return err
	}
	snap, err := p.be.Render(ctx, doc, backend.RenderRequest{Effect: p.store.RenderEffect()})
	if err != nil {
		return fmt.Errorf("retouch: render: %w", err)
	}
	if err := p.store.apply(doc, snap); err != nil {
		return err
	}
	p.store.updateVisibility(func(v *Visibility) { v.Rendered = true })
	return nil
}

func (p *processing) RenderTextBlock(ctx context.Context, doc, block int) error {
	d, err := p.document(doc)
	if err != nil {
		return err
	}
	if block < 0 || block >= len(d.TextBlocks) {
		return fmt.Errorf("%w: %d", ErrNoTextBlock, block)
	}
	if err := p.sync.FlushText(ctx); err != nil {
		return err
	}
	snap, err := p.be.Render(ctx, doc, backend.RenderRequest{TextBlock: &block, Effect: p.store.RenderEffect()})
	if err != nil {
		return fmt.Errorf("retouch: render text block %d: %w", block, err)
	}
	return p.store.apply(doc, snap)
}

func (p *processing) Process(ctx context.Context, doc int, sink pipeline.ProgressSink) (pipeline.Result, error) {
	if _, err := p.document(doc); err != nil {
		return pipeline.Result{Document: doc}, err
	}
	return p.runner.Process(ctx, doc, sink)
}

func (p *processing) ProcessAll(ctx context.Context, sink pipeline.ProgressSink) (pipeline.BatchResult, error) {
	p.batch.Store(true)
	defer p.batch.Store(false)
	return p.runner.ProcessAll(ctx, p.store.Len(), sink)
}

func (p *processing) Cancel() bool { return p.runner.Cancel() }

func (p *processing) Operation() (pipeline.Operation, bool) {
	return p.runner.Tracker().Current()
}

func (p *processing) Subscribe(f func(*pipeline.Operation)) {
	p.runner.Tracker().Subscribe(f)
}
