package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextBlock_WritingMode(t *testing.T) {
	tests := []struct {
		name        string
		block       TextBlock
		translation *string
		want        WritingMode
	}{
		{"no translation", TextBlock{Width: 10, Height: 50}, nil, Horizontal},
		{"latin tall", TextBlock{Width: 10, Height: 50}, ptr("hello"), Horizontal},
		{"cjk tall", TextBlock{Width: 10, Height: 50}, ptr("こんにちは"), VerticalRL},
		{"cjk wide", TextBlock{Width: 50, Height: 10}, ptr("你好"), Horizontal},
		{"hangul tall", TextBlock{Width: 10, Height: 50}, ptr("안녕"), VerticalRL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.block
			b.Translation = tt.translation
			assert.Equal(t, tt.want, b.WritingMode())
		})
	}
}

func TestTextBlock_InpaintRegion(t *testing.T) {
	b := TextBlock{X: 20, Y: 5, Width: 30, Height: 10}
	assert.Equal(t, Region{X: 8, Y: 0, Width: 54, Height: 27}, b.InpaintRegion(100, 100))
	assert.Equal(t, Region{X: 8, Y: 0, Width: 32, Height: 20}, b.InpaintRegion(40, 20))
}

func TestTextBlock_Apply(t *testing.T) {
	orig := TextBlock{X: 1, Y: 2, Width: 3, Height: 4, Text: ptr("src")}
	u := TextBlockUpdate{Width: ptr(9.0), Translation: ptr("dst")}

	got := orig.Apply(u)
	assert.Equal(t, 9.0, got.Width)
	assert.Equal(t, 4.0, got.Height)
	assert.Equal(t, "dst", *got.Translation)
	assert.Equal(t, "src", *got.Text)
	assert.Nil(t, orig.Translation, "Apply must not mutate the receiver")

	assert.True(t, u.Resizes())
	assert.True(t, u.NeedsRender())
	assert.False(t, TextBlockUpdate{X: ptr(1.0)}.NeedsRender())
	assert.True(t, TextBlockUpdate{Style: &TextStyle{}}.NeedsRender())
	assert.False(t, TextBlockUpdate{Text: ptr("x")}.Resizes())
}

func TestRenderEffect_Valid(t *testing.T) {
	assert.True(t, EffectManga.Valid())
	assert.False(t, RenderEffect("sparkle").Valid())
}
