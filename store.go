package retouch

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/retouch/document"
)

// Errors returned by the session.
var (
	// ErrNoDocument is returned for a document index outside the store.
	ErrNoDocument = errors.New("retouch: no such document")

	// ErrNoTextBlock is returned for a text block index outside the document.
	ErrNoTextBlock = errors.New("retouch: no such text block")

	// ErrClosed is returned after Session.Close.
	ErrClosed = errors.New("retouch: session closed")
)

// Change describes one committed store update.
type Change struct {
	// Doc is the affected document, or -1 for session-wide changes.
	Doc int
	// Layers lists the layers whose bitmap changed.
	Layers []document.LayerKind
	// TextBlocks is set when the document's text blocks changed.
	TextBlocks bool
	// Current is set when the current document index changed.
	Current bool
	// View is set when the mode or layer visibility changed.
	View bool
}

// Store holds the session documents and view state. It is the only writer
// of committed document state. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	docs      []document.Document
	current   int
	mode      ToolMode
	vis       Visibility
	selected  int // -1 when nothing is selected
	effect    document.RenderEffect
	observers []func(Change)
}

func newStore(effect document.RenderEffect) *Store {
	return &Store{selected: -1, effect: effect}
}

// Subscribe registers f to receive every change. f runs on the goroutine
// that made the change, without the store lock held.
func (s *Store) Subscribe(f func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, f)
}

func (s *Store) publish(c Change) {
	s.mu.RLock()
	obs := slices.Clone(s.observers)
	s.mu.RUnlock()
	for _, f := range obs {
		f(c)
	}
}

// Load replaces every document and resets the current index.
func (s *Store) Load(docs []document.Document) error {
	next := make([]document.Document, len(docs))
	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			return fmt.Errorf("retouch: document %d: %w", i, err)
		}
		next[i] = docs[i].Clone()
	}
	s.mu.Lock()
	s.docs = next
	s.current = 0
	s.selected = -1
	s.mu.Unlock()
	s.publish(Change{Doc: -1, Current: true})
	return nil
}

// Len returns the number of documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Document returns a copy of document i.
func (s *Store) Document(i int) (document.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.docs) {
		return document.Document{}, false
	}
	return s.docs[i].Clone(), true
}

// Current returns the current document index.
func (s *Store) Current() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCurrent changes the current document and clears the selection.
func (s *Store) SetCurrent(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.docs) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoDocument, i)
	}
	changed := s.current != i
	s.current = i
	s.selected = -1
	s.mu.Unlock()
	if changed {
		s.publish(Change{Doc: i, Current: true})
	}
	return nil
}

// Mode returns the active tool mode.
func (s *Store) Mode() ToolMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// setMode switches the tool and updates layer visibility accordingly.
func (s *Store) setMode(m ToolMode) {
	s.mu.Lock()
	s.mode = m
	s.vis.apply(m)
	s.mu.Unlock()
	s.publish(Change{Doc: -1, View: true})
}

// Visibility returns which layers are shown.
func (s *Store) Visibility() Visibility {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vis
}

// SetVisibility replaces the layer visibility.
func (s *Store) SetVisibility(v Visibility) {
	s.mu.Lock()
	s.vis = v
	s.mu.Unlock()
	s.publish(Change{Doc: -1, View: true})
}

func (s *Store) updateVisibility(f func(*Visibility)) {
	s.mu.Lock()
	f(&s.vis)
	s.mu.Unlock()
	s.publish(Change{Doc: -1, View: true})
}

// Selected returns the selected text block of the current document.
func (s *Store) Selected() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected, s.selected >= 0
}

// Select selects text block i of the current document; a negative i
// clears the selection.
func (s *Store) Select(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = max(-1, i)
}

// RenderEffect returns the effect used for renders.
func (s *Store) RenderEffect() document.RenderEffect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effect
}

// SetRenderEffect sets the effect used for renders.
func (s *Store) SetRenderEffect(e document.RenderEffect) error {
	if !e.Valid() {
		return fmt.Errorf("retouch: unknown render effect %q", e)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effect = e
	return nil
}

// apply merges a backend snapshot into document i. Fields listed in skip
// are ignored; local edits own them.
func (s *Store) apply(i int, snap *document.Snapshot, skip ...document.LayerKind) error {
	if snap == nil {
		return nil
	}
	if len(skip) > 0 {
		c := *snap
		for _, kind := range skip {
			switch kind {
			case document.LayerImage:
				c.Image = nil
			case document.LayerSegment:
				c.Segment = nil
			case document.LayerInpainted:
				c.Inpainted = nil
			case document.LayerBrush:
				c.Brush = nil
			case document.LayerRendered:
				c.Rendered = nil
			}
		}
		snap = &c
	}

	s.mu.Lock()
	if i < 0 || i >= len(s.docs) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoDocument, i)
	}
	layers, err := s.docs[i].Merge(snap)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("retouch: merge document %d: %w", i, err)
	}
	s.publish(Change{Doc: i, Layers: layers, TextBlocks: snap.TextBlocks != nil})
	return nil
}

// applyTextBlocks merges everything but the text blocks, which are owned
// by local edits.
func (s *Store) applyTextBlocks(i int, snap *document.Snapshot) error {
	if snap == nil {
		return nil
	}
	c := *snap
	c.TextBlocks = nil
	return s.apply(i, &c)
}

// setLayer commits a locally produced layer bitmap.
func (s *Store) setLayer(i int, kind document.LayerKind, data document.Bitmap) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.docs) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoDocument, i)
	}
	err := s.docs[i].SetLayer(kind, data)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(Change{Doc: i, Layers: []document.LayerKind{kind}})
	return nil
}

// editTextBlocks applies f to a copy of document i's text blocks and
// commits the result. It returns the blocks before and after.
func (s *Store) editTextBlocks(i int, f func([]document.TextBlock) ([]document.TextBlock, error)) (before, after []document.TextBlock, err error) {
	s.mu.Lock()
	if i < 0 || i >= len(s.docs) {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %d", ErrNoDocument, i)
	}
	before = s.docs[i].Clone().TextBlocks
	after, err = f(s.docs[i].Clone().TextBlocks)
	if err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}
	s.docs[i].TextBlocks = after
	after = s.docs[i].Clone().TextBlocks
	s.mu.Unlock()
	s.publish(Change{Doc: i, TextBlocks: true})
	return before, after, nil
}
