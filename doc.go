// Package retouch is the client side of an interactive raster editing and
// sync engine for image translation.
//
// # Overview
//
// A Session holds a set of documents (pages) and keeps them in sync with a
// processing backend. The user paints masks and brush strokes, edits text
// blocks and runs processing steps; the backend detects, recognizes,
// inpaints, translates and renders, and returns updated layers that are
// merged into the local documents and cross-faded onto the display.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/retouch"
//	    "github.com/gogpu/retouch/backend/httpbackend"
//	)
//
//	be, err := httpbackend.New("http://127.0.0.1:9000")
//	if err != nil {
//	    return err
//	}
//	s, err := retouch.New(be)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	if err := s.Load(docs); err != nil {
//	    return err
//	}
//	res, err := s.Pipeline().Process(ctx, 0, func(p int) {
//	    fmt.Printf("%d%%\n", p)
//	})
//
// # Architecture
//
// The module is organized into:
//   - Root: Session, Store and the editing, sync and pipeline services
//   - document: documents, layers, text blocks and backend snapshots
//   - viewport: pointer to document coordinate mapping
//   - canvas: RGBA layers, the stroke compositor and patch extraction
//   - syncq: latest-wins and ordered-batched mutation queues
//   - display: the cross-fading bitmap swapper
//   - pipeline: the processing step table, progress and cancellation
//   - generation: translation model selection, loading and readiness
//   - backend: the backend contract, an HTTP client and a test fake
//
// # Editing
//
// Pointer events arrive in viewport coordinates and are mapped to document
// pixels by the current zoom and container. Strokes are composited locally
// and synchronously; when a stroke ends, only the touched region is sent to
// the backend. Mask strokes trigger a partial inpaint of the padded stroke
// region once the mask reached the backend.
//
// # Sync
//
// Text block edits are coalesced: only the latest blocks of a document are
// guaranteed to be sent. Mask edits are sent in order, batched after a short
// inactivity window. Whole-document steps flush pending edits first.
//
// # Coordinate System
//
// Document coordinates are pixels with the origin at the top-left, X
// increasing right and Y increasing down.
//
// # Logging
//
// The module is silent by default. Call SetLogger with an slog.Logger to
// receive log records from every package.
package retouch

// Version information
const (
	// Version is the current version of the module
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
