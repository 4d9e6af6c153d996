package canvas

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// =============================================================================
// Color
// =============================================================================

func TestHex(t *testing.T) {
	tests := []struct {
		in      string
		want    Color
		wantErr bool
	}{
		{"#fff", White, false},
		{"000", Black, false},
		{"#ff000080", Color{R: 255, A: 128}, false},
		{"#12345678", Color{R: 0x12, G: 0x34, B: 0x56, A: 0x78}, false},
		{"#0f08", Color{G: 255, A: 136}, false},
		{"#ABCDEF", Color{R: 0xab, G: 0xcd, B: 0xef, A: 255}, false},
		{"#ggg", Color{}, true},
		{"#12345", Color{}, true},
		{"", Color{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Hex(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidColor) {
					t.Errorf("Hex(%q) err = %v, want ErrInvalidColor", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Hex(%q) = %+v, %v; want %+v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestColor_HexRoundTrip(t *testing.T) {
	for _, s := range []string{"#ffffff", "#00000080", "#1a2b3c"} {
		c, err := Hex(s)
		if err != nil {
			t.Fatal(err)
		}
		if c.Hex() != s {
			t.Errorf("Hex(%q).Hex() = %q", s, c.Hex())
		}
	}
}

// =============================================================================
// Codec
// =============================================================================

func encodeTestPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	l, err := Decode(encodeTestPNG(t, 3, 2, color.NRGBA{R: 255, A: 128}), nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if l.Width() != 3 || l.Height() != 2 {
		t.Fatalf("size = %dx%d, want 3x2", l.Width(), l.Height())
	}
	if got := l.Pixel(1, 1); got.A != 128 || got.R != 128 {
		t.Errorf("pixel = %v, want premultiplied {128 0 0 128}", got)
	}

	if _, err := Decode(nil, nil); !errors.Is(err, ErrEmptyData) {
		t.Errorf("Decode(nil) err = %v, want ErrEmptyData", err)
	}
	if _, err := Decode([]byte("garbage"), nil); err == nil {
		t.Error("Decode(garbage) should fail")
	}
}

func TestLayer_Load(t *testing.T) {
	l := NewLayer(4, 4)
	if err := l.Load(encodeTestPNG(t, 4, 4, color.White)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if l.Pixel(3, 3).A != 255 {
		t.Error("Load did not copy pixels")
	}
	if err := l.Load(encodeTestPNG(t, 5, 4, color.White)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("Load(5x4) err = %v, want ErrSizeMismatch", err)
	}
}

func TestEncodeLayer(t *testing.T) {
	l := NewLayer(6, 3)
	l.Clear(Black)
	data, err := EncodeLayer(l)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Decode(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back.Data(), l.Data()) {
		t.Error("EncodeLayer/Decode changed pixels")
	}
	if _, err := EncodeLayer(nil); !errors.Is(err, ErrEmptyData) {
		t.Errorf("EncodeLayer(nil) err = %v", err)
	}
}

// =============================================================================
// Pool
// =============================================================================

func TestPool(t *testing.T) {
	p := NewPool(1)
	a := p.Get(8, 8)
	a.Clear(White)
	p.Put(a)
	p.Put(NewLayer(8, 8)) // bucket full, dropped
	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", p.Len())
	}

	b := p.Get(8, 8)
	if b != a {
		t.Error("Get() should reuse the pooled layer")
	}
	if b.Pixel(0, 0).A != 0 {
		t.Error("pooled layer was not cleared")
	}
	if c := p.Get(4, 4); c.Width() != 4 {
		t.Error("Get() returned wrong size")
	}

	l, err := Decode(encodeTestPNG(t, 8, 8, color.White), p)
	if err != nil || l.Pixel(7, 7).A != 255 {
		t.Errorf("Decode with pool = %v", err)
	}
}

// =============================================================================
// Dirty tiles
// =============================================================================

func TestDirtyTiles(t *testing.T) {
	d := NewDirtyTiles(130, 70) // 3x2 tiles
	if !d.IsEmpty() {
		t.Fatal("new tracker should be clean")
	}

	d.MarkRect(image.Rect(60, 10, 70, 20))
	if got := d.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
	d.MarkRect(image.Rect(500, 500, 600, 600)) // outside

	got := d.Take()
	want := []image.Rectangle{image.Rect(0, 0, 64, 64), image.Rect(64, 0, 128, 64)}
	if len(got) != len(want) {
		t.Fatalf("Take() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Take()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if !d.IsEmpty() {
		t.Error("Take() should clear the tracker")
	}

	d.MarkAll()
	all := d.Take()
	if len(all) != 6 || all[5] != image.Rect(128, 64, 130, 70) {
		t.Errorf("MarkAll/Take() = %v", all)
	}

	var nilTiles *DirtyTiles
	nilTiles.MarkAll()
	if !nilTiles.IsEmpty() || nilTiles.Take() != nil || NewDirtyTiles(0, 5) != nil {
		t.Error("nil tracker should be inert")
	}
}
