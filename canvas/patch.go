package canvas

import (
	"image"
	"image/draw"

	"github.com/gogpu/retouch/document"
	"github.com/gogpu/retouch/internal/logging"
)

// Crop copies r out of src into a new r.Width×r.Height layer. Pixels of r
// lying outside src are transparent. It returns false for a nil source or a
// region with non-positive size. src is never modified.
func Crop(src *Layer, r document.Region) (*Layer, bool) {
	if src == nil || r.Empty() {
		return nil, false
	}
	dst := NewLayer(r.Width, r.Height)
	draw.Draw(dst.View(), dst.Bounds(), src.View(), image.Pt(r.X, r.Y), draw.Src)
	return dst, true
}

// ExtractPatch returns the PNG encoding of r cropped out of src. It returns
// false, without error, when nothing can be extracted; callers skip the sync.
func ExtractPatch(src *Layer, r document.Region) ([]byte, bool) {
	patch, ok := Crop(src, r)
	if !ok {
		return nil, false
	}
	data, err := EncodePNG(patch.View())
	if err != nil {
		logging.Logger().Warn("canvas: patch encode failed", "region", r, "err", err)
		return nil, false
	}
	return data, true
}
