package document

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) Bitmap {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func ptr[T any](v T) *T { return &v }

// =============================================================================
// Layers
// =============================================================================

func TestDocument_SetLayer(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		wantErr error
	}{
		{"matching size", 40, 30, nil},
		{"wrong width", 41, 30, ErrSizeMismatch},
		{"wrong height", 40, 29, ErrSizeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &Document{Width: 40, Height: 30}
			err := doc.SetLayer(LayerSegment, encodePNG(t, tt.w, tt.h))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				_, ok := doc.Layer(LayerSegment)
				assert.False(t, ok, "rejected layer must not be stored")
				return
			}
			require.NoError(t, err)
			_, ok := doc.Layer(LayerSegment)
			assert.True(t, ok)
		})
	}
}

func TestDocument_SetLayerUndecodable(t *testing.T) {
	doc := &Document{Width: 4, Height: 4}
	err := doc.SetLayer(LayerInpainted, Bitmap("not an image"))
	require.ErrorIs(t, err, ErrUndecodable)
}

func TestDocument_SetLayerNilRemoves(t *testing.T) {
	doc := &Document{Width: 4, Height: 4}
	require.NoError(t, doc.SetLayer(LayerBrush, encodePNG(t, 4, 4)))
	require.NoError(t, doc.SetLayer(LayerBrush, nil))
	_, ok := doc.Layer(LayerBrush)
	assert.False(t, ok)
}

func TestDocument_UnknownLayer(t *testing.T) {
	doc := &Document{}
	assert.True(t, errors.Is(doc.SetLayer(LayerKind(99), nil), ErrUnknownLayer))
	_, ok := doc.Layer(LayerKind(99))
	assert.False(t, ok)
	assert.Equal(t, "LayerKind(99)", LayerKind(99).String())
}

// =============================================================================
// Merge
// =============================================================================

func TestDocument_MergeLastWriterWins(t *testing.T) {
	doc := &Document{ID: "a", Width: 8, Height: 8, Segment: encodePNG(t, 8, 8)}
	rendered := encodePNG(t, 8, 8)

	changed, err := doc.Merge(&Snapshot{
		Name:       ptr("page-1"),
		TextBlocks: &[]TextBlock{{X: 1, Y: 2, Width: 3, Height: 4}},
		Rendered:   ptr(Bitmap(rendered)),
	})
	require.NoError(t, err)
	assert.Equal(t, []LayerKind{LayerRendered}, changed)
	assert.Equal(t, "a", doc.ID, "absent fields keep their value")
	assert.Equal(t, "page-1", doc.Name)
	require.Len(t, doc.TextBlocks, 1)
	assert.Equal(t, 3.0, doc.TextBlocks[0].Width)
	_, ok := doc.Layer(LayerSegment)
	assert.True(t, ok)
}

func TestDocument_MergeRejectsWholeSnapshot(t *testing.T) {
	doc := &Document{Name: "before", Width: 8, Height: 8}
	_, err := doc.Merge(&Snapshot{
		Name:      ptr("after"),
		Inpainted: ptr(encodePNG(t, 9, 8)),
	})
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.Equal(t, "before", doc.Name)
}

func TestDocument_MergeResizeRevalidates(t *testing.T) {
	doc := &Document{Width: 8, Height: 8, Segment: encodePNG(t, 8, 8)}
	_, err := doc.Merge(&Snapshot{Width: ptr(16)})
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.Equal(t, 8, doc.Width)
}

func TestSnapshot_FromDocumentRoundTrip(t *testing.T) {
	src := &Document{ID: "x", Width: 2, Height: 2, Image: encodePNG(t, 2, 2)}
	snap := FromDocument(src)
	assert.False(t, snap.Empty())

	var dst Document
	changed, err := dst.Merge(snap)
	require.NoError(t, err)
	assert.Equal(t, []LayerKind{LayerImage}, changed)
	assert.Equal(t, "x", dst.ID)
	assert.True(t, (&Snapshot{}).Empty())
}

func TestDocument_CloneIsolatesTextBlocks(t *testing.T) {
	doc := &Document{TextBlocks: []TextBlock{{Text: ptr("a")}}}
	c := doc.Clone()
	*c.TextBlocks[0].Text = "b"
	assert.Equal(t, "a", *doc.TextBlocks[0].Text)
}
