package document

// Snapshot is a full or partial document returned by the backend. Every
// field is optional; nil means "not part of this snapshot".
type Snapshot struct {
	ID         *string      `json:"id,omitempty"`
	Name       *string      `json:"name,omitempty"`
	Width      *int         `json:"width,omitempty"`
	Height     *int         `json:"height,omitempty"`
	TextBlocks *[]TextBlock `json:"textBlocks,omitempty"`

	Image     *Bitmap `json:"image,omitempty"`
	Segment   *Bitmap `json:"segment,omitempty"`
	Inpainted *Bitmap `json:"inpainted,omitempty"`
	Brush     *Bitmap `json:"brushLayer,omitempty"`
	Rendered  *Bitmap `json:"rendered,omitempty"`
}

// FromDocument builds a snapshot carrying every field of d.
func FromDocument(d *Document) *Snapshot {
	c := d.Clone()
	s := &Snapshot{
		ID:         &c.ID,
		Name:       &c.Name,
		Width:      &c.Width,
		Height:     &c.Height,
		TextBlocks: &c.TextBlocks,
	}
	for _, kind := range Layers {
		if data, ok := c.Layer(kind); ok {
			s.setLayer(kind, data)
		}
	}
	return s
}

// Layer returns the snapshot's bitmap for kind, if present.
func (s *Snapshot) Layer(kind LayerKind) (Bitmap, bool) {
	p := s.layerRef(kind)
	if p == nil || *p == nil || **p == nil {
		return nil, false
	}
	return **p, true
}

// Empty reports whether the snapshot carries no fields at all.
func (s *Snapshot) Empty() bool {
	if s == nil {
		return true
	}
	if s.ID != nil || s.Name != nil || s.Width != nil || s.Height != nil || s.TextBlocks != nil {
		return false
	}
	for _, kind := range Layers {
		if _, ok := s.Layer(kind); ok {
			return false
		}
	}
	return true
}

// Merge copies every present field of s into d, last writer wins. Layers
// are checked against the (possibly updated) document size first; on
// failure d is left unchanged. It returns the layers that changed.
func (d *Document) Merge(s *Snapshot) ([]LayerKind, error) {
	if s == nil {
		return nil, nil
	}
	next := d.Clone()
	if s.ID != nil {
		next.ID = *s.ID
	}
	if s.Name != nil {
		next.Name = *s.Name
	}
	if s.Width != nil {
		next.Width = *s.Width
	}
	if s.Height != nil {
		next.Height = *s.Height
	}
	if s.TextBlocks != nil {
		blocks := make([]TextBlock, len(*s.TextBlocks))
		for i, b := range *s.TextBlocks {
			blocks[i] = b.Clone()
		}
		next.TextBlocks = blocks
	}

	var changed []LayerKind
	for _, kind := range Layers {
		data, ok := s.Layer(kind)
		if !ok {
			continue
		}
		if err := next.SetLayer(kind, data); err != nil {
			return nil, err
		}
		changed = append(changed, kind)
	}
	if s.Width != nil || s.Height != nil {
		if err := next.Validate(); err != nil {
			return nil, err
		}
	}
	*d = next
	return changed, nil
}

func (s *Snapshot) setLayer(kind LayerKind, data Bitmap) {
	if p := s.layerRef(kind); p != nil {
		b := data
		*p = &b
	}
}

func (s *Snapshot) layerRef(kind LayerKind) **Bitmap {
	switch kind {
	case LayerImage:
		return &s.Image
	case LayerSegment:
		return &s.Segment
	case LayerInpainted:
		return &s.Inpainted
	case LayerBrush:
		return &s.Brush
	case LayerRendered:
		return &s.Rendered
	default:
		return nil
	}
}
