package document

import (
	"math"

	"github.com/go-text/typesetting/language"
)

// TextBlockInpaintRadius is the margin added around a text block when its
// area is re-inpainted after a geometry change.
const TextBlockInpaintRadius = 12

// RenderEffect selects the text shader used by the backend renderer.
type RenderEffect string

const (
	EffectNormal     RenderEffect = "normal"
	EffectAntique    RenderEffect = "antique"
	EffectMetal      RenderEffect = "metal"
	EffectManga      RenderEffect = "manga"
	EffectMotionBlur RenderEffect = "motionBlur"
)

// Valid reports whether e is one of the known effects.
func (e RenderEffect) Valid() bool {
	switch e {
	case EffectNormal, EffectAntique, EffectMetal, EffectManga, EffectMotionBlur:
		return true
	}
	return false
}

// WritingMode is the layout direction a block is rendered with.
type WritingMode uint8

const (
	Horizontal WritingMode = iota
	VerticalRL
)

// TextStyle is the rendering style of one text block.
type TextStyle struct {
	FontFamilies []string     `json:"fontFamilies"`
	FontSize     *float64     `json:"fontSize,omitempty"`
	Color        [4]uint8     `json:"color"`
	Effect       RenderEffect `json:"effect,omitempty"`
}

// TextBlock is one detected (or user drawn) text area.
type TextBlock struct {
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	Width       float64    `json:"width"`
	Height      float64    `json:"height"`
	Confidence  float64    `json:"confidence"`
	Text        *string    `json:"text,omitempty"`
	Translation *string    `json:"translation,omitempty"`
	Style       *TextStyle `json:"style,omitempty"`
}

// Clone returns a deep copy of b.
func (b TextBlock) Clone() TextBlock {
	c := b
	if b.Text != nil {
		s := *b.Text
		c.Text = &s
	}
	if b.Translation != nil {
		s := *b.Translation
		c.Translation = &s
	}
	if b.Style != nil {
		st := *b.Style
		st.FontFamilies = append([]string(nil), b.Style.FontFamilies...)
		if b.Style.FontSize != nil {
			fs := *b.Style.FontSize
			st.FontSize = &fs
		}
		c.Style = &st
	}
	return c
}

// WritingMode reports vertical right-to-left layout for tall blocks whose
// translation contains CJK script; everything else is horizontal.
func (b TextBlock) WritingMode() WritingMode {
	if b.Translation == nil || b.Width >= b.Height {
		return Horizontal
	}
	if !containsCJK(*b.Translation) {
		return Horizontal
	}
	return VerticalRL
}

func containsCJK(s string) bool {
	for _, r := range s {
		switch language.LookupScript(r) {
		case language.Han, language.Hiragana, language.Katakana, language.Hangul, language.Bopomofo:
			return true
		}
	}
	return false
}

// InpaintRegion returns the block rectangle grown by TextBlockInpaintRadius
// and clamped to a width×height document.
func (b TextBlock) InpaintRegion(width, height int) Region {
	r := float64(TextBlockInpaintRadius)
	x0 := max(0, int(math.Floor(b.X-r)))
	y0 := max(0, int(math.Floor(b.Y-r)))
	x1 := min(width, int(math.Ceil(b.X+b.Width+r)))
	y1 := min(height, int(math.Ceil(b.Y+b.Height+r)))
	return Region{X: x0, Y: y0, Width: max(1, x1-x0), Height: max(1, y1-y0)}
}

// TextBlockUpdate is a partial edit of a TextBlock. Nil fields are left as is.
type TextBlockUpdate struct {
	X           *float64
	Y           *float64
	Width       *float64
	Height      *float64
	Text        *string
	Translation *string
	Style       *TextStyle
}

// Apply returns b with the non-nil fields of u applied.
func (b TextBlock) Apply(u TextBlockUpdate) TextBlock {
	out := b.Clone()
	if u.X != nil {
		out.X = *u.X
	}
	if u.Y != nil {
		out.Y = *u.Y
	}
	if u.Width != nil {
		out.Width = *u.Width
	}
	if u.Height != nil {
		out.Height = *u.Height
	}
	if u.Text != nil {
		s := *u.Text
		out.Text = &s
	}
	if u.Translation != nil {
		s := *u.Translation
		out.Translation = &s
	}
	if u.Style != nil {
		st := TextBlock{Style: u.Style}.Clone().Style
		out.Style = st
	}
	return out
}

// Resizes reports whether u changes the block size.
func (u TextBlockUpdate) Resizes() bool {
	return u.Width != nil || u.Height != nil
}

// NeedsRender reports whether u changes anything visible in the rendered
// sprite of the block.
func (u TextBlockUpdate) NeedsRender() bool {
	return u.Resizes() || u.Translation != nil || u.Style != nil
}
