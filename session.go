package retouch

import (
	"context"
	"errors"
	"sync"

	"github.com/gogpu/retouch/backend"
	"github.com/gogpu/retouch/canvas"
	"github.com/gogpu/retouch/display"
	"github.com/gogpu/retouch/document"
	"github.com/gogpu/retouch/generation"
	"github.com/gogpu/retouch/internal/logging"
	"github.com/gogpu/retouch/pipeline"
)

// Session is one editing session over a set of documents. It owns the
// document store and aggregates the editing, sync and pipeline services.
// A Session is safe for concurrent use.
type Session struct {
	opts options

	store    *Store
	sync     *syncService
	edit     *editing
	pipeline *processing
	gen      *generation.Manager
	tracker  *pipeline.Tracker
	pool     *canvas.Pool
	displays [len(document.Layers)]*display.Swapper

	mu     sync.Mutex
	closed bool
}

// New creates a session talking to be.
//
// Example:
//
//	be, _ := httpbackend.New("http://127.0.0.1:9000")
//	s, err := retouch.New(be)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	s.Load(docs)
//	res, err := s.Pipeline().Process(ctx, 0, nil)
func New(be backend.Backend, opts ...Option) (*Session, error) {
	if be == nil {
		return nil, errors.New("retouch: nil backend")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		opts:    o,
		store:   newStore(o.effect),
		tracker: pipeline.NewTracker(),
		pool:    canvas.NewPool(o.poolSize),
	}
	genOpts := append([]generation.Option{
		generation.WithClock(o.clock),
		generation.WithTracker(s.tracker),
	}, o.generationOpts...)
	s.gen = generation.NewManager(be, genOpts...)
	s.sync = newSyncService(be, s.store, &o)
	s.edit = newEditing(s, &o)

	p, err := newProcessing(be, s.store, s.sync, s.gen, s.tracker)
	if err != nil {
		return nil, err
	}
	p.afterTranslate = func(doc, block int) {
		_ = s.edit.renders.Enqueue(func(ctx context.Context) error {
			return p.RenderTextBlock(ctx, doc, block)
		})
	}
	s.pipeline = p

	for _, kind := range document.Layers {
		s.displays[kind] = display.NewSwapper(
			display.WithName(kind.String()),
			display.WithClock(o.clock),
			display.WithFrames(o.frames),
			display.WithDuration(o.fadeDuration),
			display.WithPool(s.pool),
			display.WithTransition(kind != document.LayerImage),
		)
	}
	s.store.Subscribe(s.onChange)
	return s, nil
}

// Store returns the document store.
func (s *Session) Store() *Store { return s.store }

// Editing returns the editing service.
func (s *Session) Editing() EditingService { return s.edit }

// Sync returns the sync service.
func (s *Session) Sync() SyncService { return s.sync }

// Pipeline returns the processing service.
func (s *Session) Pipeline() PipelineService { return s.pipeline }

// Generation returns the translation model manager.
func (s *Session) Generation() *generation.Manager { return s.gen }

// Display returns the cross-fading display of a layer of the current
// document.
func (s *Session) Display(kind document.LayerKind) *display.Swapper {
	if int(kind) >= len(s.displays) {
		return nil
	}
	return s.displays[kind]
}

// Load replaces the session documents. Unsent mask updates refer to the
// old documents and are dropped.
func (s *Session) Load(docs []document.Document) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	s.sync.discardMask()
	return s.store.Load(docs)
}

// SetMode switches the editing tool.
func (s *Session) SetMode(m ToolMode) { s.edit.SetMode(m) }

// onChange keeps the working layers and displays in step with committed
// state of the current document.
func (s *Session) onChange(c Change) {
	cur := s.store.Current()
	switch {
	case c.Current:
		s.edit.reload(cur)
		s.showAll(cur)
	case c.Doc == cur && len(c.Layers) > 0:
		s.edit.reload(cur)
		d, ok := s.store.Document(cur)
		if !ok {
			return
		}
		for _, kind := range c.Layers {
			s.show(d, kind)
		}
	}
}

func (s *Session) showAll(doc int) {
	d, ok := s.store.Document(doc)
	if !ok {
		for _, sw := range s.displays {
			sw.Clear()
		}
		return
	}
	for _, kind := range document.Layers {
		s.show(d, kind)
	}
}

func (s *Session) show(d document.Document, kind document.LayerKind) {
	data, _ := d.Layer(kind)
	if err := s.displays[kind].Show(data); err != nil && !errors.Is(err, display.ErrClosed) {
		logging.Logger().Warn("retouch: display update failed", "layer", kind, "error", err)
	}
}

// Flush waits for every pending text block edit, mask update and
// follow-up task.
func (s *Session) Flush(ctx context.Context) error {
	if err := s.sync.FlushText(ctx); err != nil {
		return err
	}
	if err := s.edit.Wait(ctx); err != nil {
		return err
	}
	return s.sync.FlushMask(ctx)
}

// Close cancels the running operation and stops every queue and display.
// Pending edits that were not flushed are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.pipeline.Cancel()
	s.edit.close()
	s.sync.close()
	for _, sw := range s.displays {
		sw.Close()
	}
}
