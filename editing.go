package retouch

import (
	"context"
	"fmt"
	"slices"

	"github.com/gogpu/retouch/canvas"
	"github.com/gogpu/retouch/document"
	"github.com/gogpu/retouch/internal/logging"
	"github.com/gogpu/retouch/syncq"
	"github.com/gogpu/retouch/viewport"
)

// EditingService handles pointer strokes, tool state and text block edits
// of the current document.
type EditingService interface {
	// SetMode switches the tool. A stroke in progress is discarded.
	SetMode(m ToolMode)
	// SetBrush sets the brush size and paint color.
	SetBrush(size float64, c canvas.Color)
	// Brush returns the brush size and paint color.
	Brush() (float64, canvas.Color)

	// Viewport maps pointer positions to document space.
	Viewport() *viewport.Mapper

	// PointerDown, PointerMove, PointerUp and PointerLeave take positions
	// in viewport coordinates. They report whether the event was handled.
	PointerDown(p document.Point) bool
	PointerMove(p document.Point) bool
	PointerUp() bool
	PointerLeave() bool

	// MaskLayer and BrushLayer return the working layers being drawn on.
	MaskLayer() *canvas.Layer
	BrushLayer() *canvas.Layer

	// EditTextBlock applies u to text block i of the current document.
	EditTextBlock(i int, u document.TextBlockUpdate) error
	// AppendTextBlock adds b to the current document and selects it.
	AppendTextBlock(b document.TextBlock) error
	// RemoveTextBlock removes text block i and clears the selection.
	RemoveTextBlock(i int) error

	// Wait blocks until every follow-up task started by edits has finished.
	Wait(ctx context.Context) error
}

type editing struct {
	s      *Session
	mapper *viewport.Mapper

	mask  *layerTool
	brush *layerTool

	// inpaints runs partial inpaints after mask strokes and text block
	// moves; paints runs brush layer composites; renders runs block
	// re-renders. Each runs its tasks one at a time in submission order.
	inpaints *syncq.Ordered[syncq.Task]
	paints   *syncq.Ordered[syncq.Task]
	renders  *syncq.Ordered[syncq.Task]

	brushSize  float64
	brushColor canvas.Color
	active     tool
}

var _ EditingService = (*editing)(nil)

func newEditing(s *Session, o *options) *editing {
	qopts := []syncq.Option{syncq.WithClock(o.clock), syncq.WithErrorHandler(func(err error) {
		if o.onSyncError != nil {
			o.onSyncError(err)
		}
	})}
	e := &editing{
		s:          s,
		mapper:     viewport.NewMapper(),
		mask:       newLayerTool(document.LayerSegment, canvas.Black, canvas.Brush{Size: o.brushSize, Color: canvas.White}),
		brush:      newLayerTool(document.LayerBrush, canvas.Transparent, canvas.Brush{Size: o.brushSize, Color: o.brushColor}),
		inpaints:   syncq.NewSerial(append(qopts, syncq.WithName("inpaint-partial"))...),
		paints:     syncq.NewSerial(append(qopts, syncq.WithName("paint-brush"))...),
		renders:    syncq.NewSerial(append(qopts, syncq.WithName("render-block"))...),
		brushSize:  o.brushSize,
		brushColor: o.brushColor,
	}
	return e
}

func (e *editing) SetMode(m ToolMode) {
	e.mask.comp.Reset()
	e.brush.comp.Reset()
	e.s.store.setMode(m)
	logging.Logger().Debug("retouch: tool mode", "mode", m)
}

func (e *editing) SetBrush(size float64, c canvas.Color) {
	e.s.mu.Lock()
	if size > 0 {
		e.brushSize = size
	}
	e.brushColor = c
	e.s.mu.Unlock()
}

func (e *editing) Brush() (float64, canvas.Color) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return e.brushSize, e.brushColor
}

func (e *editing) Viewport() *viewport.Mapper { return e.mapper }

func (e *editing) MaskLayer() *canvas.Layer  { return e.mask.Layer() }
func (e *editing) BrushLayer() *canvas.Layer { return e.brush.Layer() }

// selectTool configures the compositor for the current mode and returns it.
func (e *editing) selectTool() *layerTool {
	t, erase := toolFor(e.s.store.Mode(), e.s.store.Visibility())
	size, color := e.Brush()

	var lt *layerTool
	var b canvas.Brush
	switch t {
	case toolMask:
		lt = e.mask
		b = canvas.Brush{Size: size, Color: canvas.White, Mode: canvas.BlendSourceOver}
		if erase {
			b.Color = canvas.Black
		}
	case toolBrush:
		lt = e.brush
		b = canvas.Brush{Size: size, Color: color, Mode: canvas.BlendSourceOver}
		if erase {
			b.Mode = canvas.BlendDestinationOut
		}
	default:
		return nil
	}
	lt.comp.SetBrush(b)
	e.s.mu.Lock()
	e.active = t
	e.s.mu.Unlock()
	return lt
}

func (e *editing) activeTool() *layerTool {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	switch e.active {
	case toolMask:
		return e.mask
	case toolBrush:
		return e.brush
	}
	return nil
}

func (e *editing) PointerDown(p document.Point) bool {
	dp, ok := e.mapper.Map(p)
	if !ok {
		return false
	}
	lt := e.selectTool()
	if lt == nil || lt.Layer() == nil || lt.document() != e.s.store.Current() {
		return false
	}
	if prev, done := lt.comp.Begin(dp); done {
		e.finalize(lt, prev)
	}
	return true
}

func (e *editing) PointerMove(p document.Point) bool {
	lt := e.activeTool()
	if lt == nil || !lt.comp.Drawing() {
		return false
	}
	dp, ok := e.mapper.Map(p)
	if !ok {
		return false
	}
	lt.comp.Extend(dp)
	return true
}

func (e *editing) PointerUp() bool {
	lt := e.activeTool()
	if lt == nil {
		return false
	}
	stroke, ok := lt.comp.End()
	if ok {
		e.finalize(lt, stroke)
	}
	return ok
}

func (e *editing) PointerLeave() bool {
	lt := e.activeTool()
	if lt == nil {
		return false
	}
	stroke, ok := lt.comp.Leave()
	if ok {
		e.finalize(lt, stroke)
	}
	return ok
}

func (e *editing) finalize(lt *layerTool, stroke canvas.Stroke) {
	doc := lt.document()
	if lt == e.mask {
		e.finalizeMask(doc, stroke)
		return
	}
	e.finalizeBrush(doc, stroke)
}

// finalizeMask commits the full mask, queues the stroke patch and schedules
// a partial inpaint of the padded stroke region once the mask is flushed.
func (e *editing) finalizeMask(doc int, stroke canvas.Stroke) {
	layer := e.mask.Layer()
	full, err := canvas.EncodeLayer(layer)
	if err != nil {
		logging.Logger().Warn("retouch: cannot encode mask", "doc", doc, "error", err)
		return
	}
	patch, ok := canvas.ExtractPatch(layer, stroke.Tight)
	var region *document.Region
	if ok {
		region = &stroke.Tight
	}
	e.mask.setCommitted(full)
	if err := e.s.sync.UpdateMask(doc, full, patch, region); err != nil {
		logging.Logger().Warn("retouch: mask update failed", "doc", doc, "error", err)
		return
	}
	padded := stroke.Padded
	_ = e.inpaints.Enqueue(func(ctx context.Context) error {
		return e.s.sync.InpaintPartial(ctx, doc, padded)
	})
}

// finalizeBrush sends the stroke patch of the brush layer. The working
// layer is reloaded from the committed brush layer afterwards.
func (e *editing) finalizeBrush(doc int, stroke canvas.Stroke) {
	patch, ok := canvas.ExtractPatch(e.brush.Layer(), stroke.Tight)
	if !ok {
		e.reloadBrush(doc)
		return
	}
	region := stroke.Tight
	_ = e.paints.Enqueue(func(ctx context.Context) error {
		defer e.reloadBrush(doc)
		return e.s.sync.PaintBrush(ctx, doc, patch, region)
	})
}

func (e *editing) reloadBrush(doc int) {
	if e.brush.document() != doc {
		return
	}
	d, ok := e.s.store.Document(doc)
	if !ok {
		return
	}
	e.brush.load(doc, d, true)
}

// reload refreshes the working layers from committed state of doc.
func (e *editing) reload(doc int) {
	d, ok := e.s.store.Document(doc)
	if !ok {
		return
	}
	e.mask.load(doc, d, false)
	e.brush.load(doc, d, false)
}

func (e *editing) EditTextBlock(i int, u document.TextBlockUpdate) error {
	doc := e.s.store.Current()
	before, after, err := e.s.store.editTextBlocks(doc, func(blocks []document.TextBlock) ([]document.TextBlock, error) {
		if i < 0 || i >= len(blocks) {
			return nil, fmt.Errorf("%w: %d", ErrNoTextBlock, i)
		}
		blocks[i] = blocks[i].Apply(u)
		return blocks, nil
	})
	if err != nil {
		return err
	}
	if err := e.s.sync.enqueueText(doc, after); err != nil {
		return err
	}

	if u.NeedsRender() {
		_ = e.renders.Enqueue(func(ctx context.Context) error {
			return e.s.pipeline.RenderTextBlock(ctx, doc, i)
		})
	}
	d, _ := e.s.store.Document(doc)
	if _, hasMask := d.Layer(document.LayerSegment); hasMask && u.Resizes() {
		region := document.Larger(
			before[i].InpaintRegion(d.Width, d.Height),
			after[i].InpaintRegion(d.Width, d.Height),
		)
		_ = e.inpaints.Enqueue(func(ctx context.Context) error {
			return e.s.sync.InpaintPartial(ctx, doc, region)
		})
	}
	return nil
}

func (e *editing) AppendTextBlock(b document.TextBlock) error {
	doc := e.s.store.Current()
	_, after, err := e.s.store.editTextBlocks(doc, func(blocks []document.TextBlock) ([]document.TextBlock, error) {
		return append(blocks, b.Clone()), nil
	})
	if err != nil {
		return err
	}
	e.s.store.Select(len(after) - 1)
	return e.s.sync.enqueueText(doc, after)
}

func (e *editing) RemoveTextBlock(i int) error {
	doc := e.s.store.Current()
	_, after, err := e.s.store.editTextBlocks(doc, func(blocks []document.TextBlock) ([]document.TextBlock, error) {
		if i < 0 || i >= len(blocks) {
			return nil, fmt.Errorf("%w: %d", ErrNoTextBlock, i)
		}
		return slices.Delete(blocks, i, i+1), nil
	})
	if err != nil {
		return err
	}
	e.s.store.Select(-1)
	return e.s.sync.enqueueText(doc, after)
}

func (e *editing) Wait(ctx context.Context) error {
	for _, q := range []*syncq.Ordered[syncq.Task]{e.paints, e.inpaints, e.renders} {
		if err := q.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *editing) close() {
	e.inpaints.Close()
	e.paints.Close()
	e.renders.Close()
}
