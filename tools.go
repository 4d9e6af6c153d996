package retouch

import (
	"bytes"
	"sync"

	"github.com/gogpu/retouch/canvas"
	"github.com/gogpu/retouch/document"
	"github.com/gogpu/retouch/internal/logging"
)

// layerTool keeps an editable raster copy of one document layer and the
// compositor drawing on it.
type layerTool struct {
	kind document.LayerKind
	fill canvas.Color // used when the layer is absent

	mu        sync.Mutex
	comp      *canvas.Compositor
	doc       int
	committed document.Bitmap
}

func newLayerTool(kind document.LayerKind, fill canvas.Color, brush canvas.Brush) *layerTool {
	return &layerTool{
		kind: kind,
		fill: fill,
		comp: canvas.NewCompositor(nil, brush),
		doc:  -1,
	}
}

// Layer returns the working layer, or nil before a document is loaded.
func (t *layerTool) Layer() *canvas.Layer {
	return t.comp.Layer()
}

// load replaces the working layer with the committed bitmap of doc. It is
// skipped while a stroke is in progress, and unless force is set, when the
// committed bitmap did not change. A stroke in progress on another
// document is discarded.
func (t *layerTool) load(idx int, doc document.Document, force bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, _ := doc.Layer(t.kind)
	sameDoc := t.doc == idx
	committed := data
	replaced := t.comp.ReplaceLayer(!sameDoc, func(layer *canvas.Layer) (*canvas.Layer, bool) {
		if !force && sameDoc && layer != nil && bytes.Equal(data, t.committed) {
			return layer, false
		}
		if doc.Width <= 0 || doc.Height <= 0 {
			committed = nil
			return nil, true
		}
		if layer == nil || layer.Width() != doc.Width || layer.Height() != doc.Height {
			layer = canvas.NewLayer(doc.Width, doc.Height)
		}
		if len(data) == 0 {
			layer.Clear(t.fill)
		} else if err := layer.Load(data); err != nil {
			logging.Logger().Warn("retouch: cannot load layer for editing",
				"layer", t.kind, "doc", idx, "error", err)
			layer.Clear(t.fill)
		}
		layer.Dirty().MarkAll()
		return layer, true
	})
	if replaced {
		t.doc, t.committed = idx, committed
	}
}

// setCommitted records data as the committed state of the working layer,
// so reloading it is skipped.
func (t *layerTool) setCommitted(data document.Bitmap) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.committed = data
}

// document returns the index of the loaded document.
func (t *layerTool) document() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc
}
