package canvas

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	// Decoders for bitmaps produced by the backend.
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrEmptyData is returned when decoding an empty byte slice.
var ErrEmptyData = errors.New("canvas: empty data")

// Decode decodes an encoded bitmap (PNG, JPEG, WebP or BMP) into a layer.
// When pool is non-nil the layer is taken from it.
func Decode(data []byte, pool *Pool) (*Layer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("canvas: decode: %w", err)
	}
	b := img.Bounds()
	var l *Layer
	if pool != nil {
		l = pool.Get(b.Dx(), b.Dy())
	} else {
		l = NewLayer(b.Dx(), b.Dy())
	}
	if err := l.Replace(img); err != nil {
		return nil, err
	}
	return l, nil
}

// Load replaces the layer's pixels with the decoded data, which must match
// the layer size.
func (l *Layer) Load(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyData
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("canvas: decode: %w", err)
	}
	if err := l.Replace(img); err != nil {
		return fmt.Errorf("canvas: load %dx%d into %dx%d: %w",
			img.Bounds().Dx(), img.Bounds().Dy(), l.width, l.height, err)
	}
	return nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("canvas: encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeLayer encodes the full layer as PNG.
func EncodeLayer(l *Layer) ([]byte, error) {
	if l == nil {
		return nil, ErrEmptyData
	}
	return EncodePNG(l.View())
}
