// Package backend defines the operations the editing engine consumes from
// the remote processing backend. Every call returns a full or partial
// document snapshot that the caller merges field by field.
package backend

import (
	"context"
	"errors"

	"github.com/gogpu/retouch/document"
)

// ErrNotFound is returned for an unknown document or text block index.
var ErrNotFound = errors.New("backend: not found")

// ModelInfo describes a translation model offered by the backend.
type ModelInfo struct {
	ID        string   `json:"id"`
	Languages []string `json:"languages"`
}

// TranslateRequest scopes a translation. A nil TextBlock translates the
// whole document; an empty Language lets the backend choose.
type TranslateRequest struct {
	TextBlock *int   `json:"textBlockIndex,omitempty"`
	Language  string `json:"language,omitempty"`
}

// RenderRequest scopes a render. A nil TextBlock renders every block.
type RenderRequest struct {
	TextBlock *int                  `json:"textBlockIndex,omitempty"`
	Effect    document.RenderEffect `json:"shaderEffect"`
}

// EditBackend applies local edits.
type EditBackend interface {
	// UpdateTextBlocks replaces the document's text blocks.
	UpdateTextBlocks(ctx context.Context, doc int, blocks []document.TextBlock) (*document.Snapshot, error)
	// UpdateMask replaces the mask. With a nil region data is the full mask;
	// otherwise it is a patch placed at region.
	UpdateMask(ctx context.Context, doc int, data []byte, region *document.Region) (*document.Snapshot, error)
	// UpdateBrushLayer composites a brush patch at region.
	UpdateBrushLayer(ctx context.Context, doc int, patch []byte, region document.Region) (*document.Snapshot, error)
}

// ProcessBackend runs the processing steps.
type ProcessBackend interface {
	Detect(ctx context.Context, doc int) (*document.Snapshot, error)
	Recognize(ctx context.Context, doc int) (*document.Snapshot, error)
	Inpaint(ctx context.Context, doc int) (*document.Snapshot, error)
	InpaintPartial(ctx context.Context, doc int, region document.Region) (*document.Snapshot, error)
	Translate(ctx context.Context, doc int, req TranslateRequest) (*document.Snapshot, error)
	Render(ctx context.Context, doc int, req RenderRequest) (*document.Snapshot, error)
}

// GenerationBackend manages the translation model.
type GenerationBackend interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
	LoadModel(ctx context.Context, id string) error
	Unload(ctx context.Context) error
	Ready(ctx context.Context) (bool, error)
}

// Backend is the full contract.
type Backend interface {
	EditBackend
	ProcessBackend
	GenerationBackend
}
