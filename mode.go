package retouch

import "fmt"

// ToolMode is the active editing tool.
type ToolMode uint8

const (
	// ModeSelect selects and moves text blocks.
	ModeSelect ToolMode = iota
	// ModeBlock draws new text blocks.
	ModeBlock
	// ModeBrush paints on the brush layer.
	ModeBrush
	// ModeRepairBrush paints the segmentation mask for re-inpainting.
	ModeRepairBrush
	// ModeEraser erases from the mask, or from the brush layer when only
	// the brush layer is shown.
	ModeEraser
)

var modeNames = [...]string{"select", "block", "brush", "repairBrush", "eraser"}

// String returns the mode name.
func (m ToolMode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("ToolMode(%d)", m)
}

// ParseToolMode returns the mode named s.
func ParseToolMode(s string) (ToolMode, error) {
	for i, name := range modeNames {
		if name == s {
			return ToolMode(i), nil
		}
	}
	return 0, fmt.Errorf("retouch: unknown tool mode %q", s)
}

// Visibility holds which layers and overlays are shown.
type Visibility struct {
	Segment    bool
	Inpainted  bool
	Brush      bool
	Rendered   bool
	TextBlocks bool
}

// apply updates v for a switch to mode m.
func (v *Visibility) apply(m ToolMode) {
	switch m {
	case ModeRepairBrush, ModeBrush, ModeEraser:
		v.Rendered = false
		v.Inpainted = true
	}

	switch m {
	case ModeRepairBrush:
		v.TextBlocks = true
		v.Segment = true
		v.Brush = false
	case ModeEraser:
	default:
		v.Segment = false
		switch m {
		case ModeBrush:
			v.Brush = true
		case ModeBlock:
			v.TextBlocks = true
			v.Inpainted = true
		}
	}
}

// tool is the stroke target selected by a mode.
type tool uint8

const (
	toolNone tool = iota
	toolMask
	toolBrush
)

// toolFor returns the tool pointer input drives in mode m, and whether it
// erases.
func toolFor(m ToolMode, v Visibility) (tool, bool) {
	switch m {
	case ModeRepairBrush:
		return toolMask, false
	case ModeBrush:
		return toolBrush, false
	case ModeEraser:
		if v.Segment || !v.Brush {
			return toolMask, true
		}
		return toolBrush, true
	}
	return toolNone, false
}
