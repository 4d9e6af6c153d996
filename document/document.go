// Package document defines the editable document model shared by the
// editing, synchronization and pipeline packages.
//
// A Document is one image unit: its declared pixel size, its text blocks and
// up to five raster layers. Layers are kept encoded (PNG, JPEG, WebP or BMP);
// a present layer always decodes to exactly Width×Height pixels.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Decoders for layer bitmaps produced by the backend.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Errors returned by document operations.
var (
	// ErrSizeMismatch is returned when a layer does not match the document size.
	ErrSizeMismatch = errors.New("document: layer size mismatch")

	// ErrUndecodable is returned when a layer header cannot be decoded.
	ErrUndecodable = errors.New("document: undecodable layer")

	// ErrUnknownLayer is returned for a LayerKind outside the defined set.
	ErrUnknownLayer = errors.New("document: unknown layer")
)

// Bitmap is an encoded raster. A nil Bitmap means the layer is absent.
type Bitmap []byte

// LayerKind names one raster layer of a Document.
type LayerKind uint8

const (
	// LayerImage is the original page image.
	LayerImage LayerKind = iota
	// LayerSegment is the text segmentation mask edited by the repair brush.
	LayerSegment
	// LayerInpainted is the page with text removed.
	LayerInpainted
	// LayerBrush is the user paint overlay drawn over the rendered result.
	LayerBrush
	// LayerRendered is the final composite with translated text.
	LayerRendered
)

// Layers lists every layer kind in declaration order.
var Layers = [...]LayerKind{LayerImage, LayerSegment, LayerInpainted, LayerBrush, LayerRendered}

// String returns the layer name used in logs and on the wire.
func (k LayerKind) String() string {
	switch k {
	case LayerImage:
		return "image"
	case LayerSegment:
		return "segment"
	case LayerInpainted:
		return "inpainted"
	case LayerBrush:
		return "brushLayer"
	case LayerRendered:
		return "rendered"
	default:
		return fmt.Sprintf("LayerKind(%d)", k)
	}
}

// Document is one page being edited.
type Document struct {
	ID         string
	Name       string
	Width      int
	Height     int
	TextBlocks []TextBlock

	Image     Bitmap
	Segment   Bitmap
	Inpainted Bitmap
	Brush     Bitmap
	Rendered  Bitmap
}

// Layer returns the encoded bitmap of the given layer and whether it is present.
func (d *Document) Layer(kind LayerKind) (Bitmap, bool) {
	p := d.layerRef(kind)
	if p == nil || *p == nil {
		return nil, false
	}
	return *p, true
}

// SetLayer replaces a layer after checking it against the document size.
// Passing nil removes the layer.
func (d *Document) SetLayer(kind LayerKind, data Bitmap) error {
	p := d.layerRef(kind)
	if p == nil {
		return ErrUnknownLayer
	}
	if data != nil {
		if err := checkSize(kind, data, d.Width, d.Height); err != nil {
			return err
		}
	}
	*p = data
	return nil
}

// Validate checks that every present layer matches the declared size.
func (d *Document) Validate() error {
	for _, kind := range Layers {
		data, ok := d.Layer(kind)
		if !ok {
			continue
		}
		if err := checkSize(kind, data, d.Width, d.Height); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a copy that shares no mutable slices with d.
// Bitmaps are treated as immutable and are shared.
func (d *Document) Clone() Document {
	c := *d
	if d.TextBlocks != nil {
		c.TextBlocks = make([]TextBlock, len(d.TextBlocks))
		for i, b := range d.TextBlocks {
			c.TextBlocks[i] = b.Clone()
		}
	}
	return c
}

// Bounds returns the document pixel rectangle.
func (d *Document) Bounds() image.Rectangle {
	return image.Rect(0, 0, d.Width, d.Height)
}

func (d *Document) layerRef(kind LayerKind) *Bitmap {
	switch kind {
	case LayerImage:
		return &d.Image
	case LayerSegment:
		return &d.Segment
	case LayerInpainted:
		return &d.Inpainted
	case LayerBrush:
		return &d.Brush
	case LayerRendered:
		return &d.Rendered
	default:
		return nil
	}
}

// checkSize decodes only the bitmap header. A document without declared
// dimensions accepts any layer.
func checkSize(kind LayerKind, data Bitmap, width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUndecodable, kind, err)
	}
	if cfg.Width != width || cfg.Height != height {
		return fmt.Errorf("%w: %s is %dx%d, document is %dx%d",
			ErrSizeMismatch, kind, cfg.Width, cfg.Height, width, height)
	}
	return nil
}
