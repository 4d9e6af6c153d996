package retouch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/retouch/backend"
	"github.com/gogpu/retouch/canvas"
	"github.com/gogpu/retouch/document"
	"github.com/gogpu/retouch/internal/logging"
	"github.com/gogpu/retouch/syncq"
)

// SyncService transmits local edits to the backend.
type SyncService interface {
	// UpdateTextBlocks commits blocks locally and queues them; only the
	// latest blocks of a document are guaranteed to be sent.
	UpdateTextBlocks(doc int, blocks []document.TextBlock) error
	// UpdateMask commits the full mask locally and queues the update in
	// order. With a patch and region only the patch is sent.
	UpdateMask(doc int, full, patch []byte, region *document.Region) error
	// PaintBrush composites a brush patch on the backend and commits the
	// returned brush layer.
	PaintBrush(ctx context.Context, doc int, patch []byte, region document.Region) error
	// FlushText waits until every queued text block edit was sent.
	FlushText(ctx context.Context) error
	// FlushMask waits until every queued mask update was sent.
	FlushMask(ctx context.Context) error
	// InpaintPartial flushes the mask and re-inpaints region.
	InpaintPartial(ctx context.Context, doc int, region document.Region) error
}

// maskEdit is one ordered mask update: a full mask (Region nil) or a patch.
type maskEdit struct {
	Doc    int
	Data   []byte
	Region *document.Region
}

type syncService struct {
	be    backend.Backend
	store *Store
	qopts []syncq.Option

	mask *syncq.Ordered[maskEdit]

	mu     sync.Mutex
	text   map[int]*syncq.LatestWins[[]document.TextBlock]
	closed bool
}

var _ SyncService = (*syncService)(nil)

func newSyncService(be backend.Backend, store *Store, o *options) *syncService {
	onError := func(err error) {
		if o.onSyncError != nil {
			o.onSyncError(err)
		}
	}
	qopts := []syncq.Option{syncq.WithClock(o.clock), syncq.WithErrorHandler(onError)}
	s := &syncService{
		be:    be,
		store: store,
		qopts: qopts,
		text:  make(map[int]*syncq.LatestWins[[]document.TextBlock]),
	}
	s.mask = syncq.NewOrdered(s.sendMask,
		append(qopts, syncq.WithName("mask"), syncq.WithDebounce(o.maskDebounce))...)
	return s
}

func (s *syncService) sendMask(ctx context.Context, e maskEdit) error {
	snap, err := s.be.UpdateMask(ctx, e.Doc, e.Data, e.Region)
	if err != nil {
		return fmt.Errorf("update mask of document %d: %w", e.Doc, err)
	}
	return s.store.apply(e.Doc, snap, document.LayerSegment)
}

// textQueue returns the latest-wins queue of doc, creating it on first use.
func (s *syncService) textQueue(doc int) (*syncq.LatestWins[[]document.TextBlock], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	q, ok := s.text[doc]
	if !ok {
		send := func(ctx context.Context, blocks []document.TextBlock) error {
			snap, err := s.be.UpdateTextBlocks(ctx, doc, blocks)
			if err != nil {
				return fmt.Errorf("update text blocks of document %d: %w", doc, err)
			}
			return s.store.applyTextBlocks(doc, snap)
		}
		q = syncq.NewLatestWins(send, append(s.qopts, syncq.WithName(fmt.Sprintf("text-blocks-%d", doc)))...)
		s.text[doc] = q
	}
	return q, nil
}

func (s *syncService) UpdateTextBlocks(doc int, blocks []document.TextBlock) error {
	_, after, err := s.store.editTextBlocks(doc, func([]document.TextBlock) ([]document.TextBlock, error) {
		out := make([]document.TextBlock, len(blocks))
		for i, b := range blocks {
			out[i] = b.Clone()
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	return s.enqueueText(doc, after)
}

func (s *syncService) enqueueText(doc int, blocks []document.TextBlock) error {
	q, err := s.textQueue(doc)
	if err != nil {
		return err
	}
	return q.Enqueue(blocks)
}

func (s *syncService) UpdateMask(doc int, full, patch []byte, region *document.Region) error {
	if len(full) == 0 {
		return fmt.Errorf("retouch: update mask: %w", canvas.ErrEmptyData)
	}
	if err := s.store.setLayer(doc, document.LayerSegment, full); err != nil {
		return fmt.Errorf("retouch: update mask: %w", err)
	}
	e := maskEdit{Doc: doc, Data: full}
	if len(patch) > 0 && region != nil {
		r := *region
		e = maskEdit{Doc: doc, Data: patch, Region: &r}
	}
	return s.mask.Enqueue(e)
}

func (s *syncService) PaintBrush(ctx context.Context, doc int, patch []byte, region document.Region) error {
	snap, err := s.be.UpdateBrushLayer(ctx, doc, patch, region)
	if err != nil {
		return fmt.Errorf("retouch: paint brush: %w", err)
	}
	if snap == nil {
		return nil
	}
	// Only the brush layer is taken from the response.
	if err := s.store.apply(doc, &document.Snapshot{Brush: snap.Brush}); err != nil {
		return err
	}
	s.store.updateVisibility(func(v *Visibility) { v.Brush = true })
	return nil
}

func (s *syncService) FlushText(ctx context.Context) error {
	s.mu.Lock()
	queues := make([]*syncq.LatestWins[[]document.TextBlock], 0, len(s.text))
	for _, q := range s.text {
		queues = append(queues, q)
	}
	s.mu.Unlock()

	for _, q := range queues {
		if err := q.Flush(ctx); err != nil && !errors.Is(err, syncq.ErrClosed) {
			return err
		}
	}
	return nil
}

func (s *syncService) FlushMask(ctx context.Context) error {
	err := s.mask.Flush(ctx)
	if errors.Is(err, syncq.ErrClosed) {
		return nil
	}
	return err
}

func (s *syncService) InpaintPartial(ctx context.Context, doc int, region document.Region) error {
	if region.Empty() {
		return nil
	}
	if err := s.FlushMask(ctx); err != nil {
		return err
	}
	snap, err := s.be.InpaintPartial(ctx, doc, region)
	if err != nil {
		return fmt.Errorf("retouch: inpaint region %+v of document %d: %w", region, doc, err)
	}
	if err := s.store.apply(doc, snap); err != nil {
		return err
	}
	s.store.updateVisibility(func(v *Visibility) { v.Inpainted = true })
	return nil
}

// discardMask drops mask updates that were not sent yet.
func (s *syncService) discardMask() {
	if n := s.mask.ClearPending(); n > 0 {
		logging.Logger().Debug("retouch: discarded pending mask updates", "count", n)
	}
}

func (s *syncService) close() {
	s.mu.Lock()
	s.closed = true
	queues := s.text
	s.text = nil
	s.mu.Unlock()
	for _, q := range queues {
		q.Close()
	}
	s.mask.Close()
}
