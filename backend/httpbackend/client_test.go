package httpbackend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/retouch/backend"
	"github.com/gogpu/retouch/document"
)

type request struct {
	Path string
	Body map[string]any
}

// recorder serves a canned response per path and records requests.
type recorder struct {
	mu        sync.Mutex
	requests  []request
	responses map[string]string
	status    int
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	data, _ := io.ReadAll(req.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)

	r.mu.Lock()
	r.requests = append(r.requests, request{Path: req.URL.Path, Body: body})
	resp, ok := r.responses[req.URL.Path]
	status := r.status
	r.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, "backend exploded")
		return
	}
	if !ok {
		resp = "{}"
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, resp)
}

func (r *recorder) last(t *testing.T) request {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.requests)
	return r.requests[len(r.requests)-1]
}

func newTestClient(t *testing.T, rec *recorder) *Client {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", WithHeader("X-Session", "s1"))
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	require.Error(t, err)
	_, err = New("::")
	require.Error(t, err)
}

func TestClient_RequestShapes(t *testing.T) {
	blk := 2
	region := document.Region{X: 1, Y: 2, Width: 3, Height: 4}
	ctx := context.Background()

	tests := []struct {
		name string
		call func(c *Client) error
		path string
		want map[string]any
	}{
		{"detect", func(c *Client) error { _, err := c.Detect(ctx, 3); return err },
			"/api/detect", map[string]any{"index": 3.0}},
		{"ocr", func(c *Client) error { _, err := c.Recognize(ctx, 0); return err },
			"/api/ocr", map[string]any{"index": 0.0}},
		{"inpaint", func(c *Client) error { _, err := c.Inpaint(ctx, 1); return err },
			"/api/inpaint", map[string]any{"index": 1.0}},
		{"inpaint partial", func(c *Client) error { _, err := c.InpaintPartial(ctx, 1, region); return err },
			"/api/inpaint_partial", map[string]any{
				"index":  1.0,
				"region": map[string]any{"x": 1.0, "y": 2.0, "width": 3.0, "height": 4.0},
			}},
		{"full mask", func(c *Client) error { _, err := c.UpdateMask(ctx, 0, []byte{1, 2}, nil); return err },
			"/api/update_inpaint_mask", map[string]any{"index": 0.0, "mask": "AQI="}},
		{"mask patch", func(c *Client) error { _, err := c.UpdateMask(ctx, 0, []byte{1}, &region); return err },
			"/api/update_inpaint_mask", map[string]any{
				"index":  0.0,
				"mask":   "AQ==",
				"region": map[string]any{"x": 1.0, "y": 2.0, "width": 3.0, "height": 4.0},
			}},
		{"brush", func(c *Client) error { _, err := c.UpdateBrushLayer(ctx, 4, []byte{9}, region); return err },
			"/api/update_brush_layer", map[string]any{
				"index":  4.0,
				"patch":  "CQ==",
				"region": map[string]any{"x": 1.0, "y": 2.0, "width": 3.0, "height": 4.0},
			}},
		{"text blocks nil", func(c *Client) error { _, err := c.UpdateTextBlocks(ctx, 0, nil); return err },
			"/api/update_text_blocks", map[string]any{"index": 0.0, "textBlocks": []any{}}},
		{"render all", func(c *Client) error { _, err := c.Render(ctx, 0, backend.RenderRequest{}); return err },
			"/api/render", map[string]any{"index": 0.0, "shaderEffect": "normal"}},
		{"render block", func(c *Client) error {
			_, err := c.Render(ctx, 0, backend.RenderRequest{TextBlock: &blk, Effect: document.EffectManga})
			return err
		}, "/api/render", map[string]any{"index": 0.0, "textBlockIndex": 2.0, "shaderEffect": "manga"}},
		{"translate", func(c *Client) error {
			_, err := c.Translate(ctx, 1, backend.TranslateRequest{Language: "en"})
			return err
		}, "/api/llm_generate", map[string]any{"index": 1.0, "language": "en"}},
		{"load", func(c *Client) error { return c.LoadModel(ctx, "m1") },
			"/api/llm_load", map[string]any{"id": "m1"}},
		{"offload", func(c *Client) error { return c.Unload(ctx) },
			"/api/llm_offload", map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			c := newTestClient(t, rec)
			require.NoError(t, tt.call(c))
			got := rec.last(t)
			assert.Equal(t, tt.path, got.Path)
			assert.Equal(t, tt.want, got.Body)
		})
	}
}

func TestClient_DecodesSnapshot(t *testing.T) {
	rec := &recorder{responses: map[string]string{
		"/api/detect": `{"width": 4, "height": 2, "textBlocks": [{"x": 1, "y": 2, "width": 3, "height": 4, "text": "hi"}], "rendered": null, "segment": "AQI="}`,
	}}
	c := newTestClient(t, rec)

	snap, err := c.Detect(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, snap.Width)
	assert.Equal(t, 4, *snap.Width)
	require.NotNil(t, snap.TextBlocks)
	assert.Equal(t, "hi", *(*snap.TextBlocks)[0].Text)
	seg, ok := snap.Layer(document.LayerSegment)
	require.True(t, ok)
	assert.Equal(t, document.Bitmap{1, 2}, seg)
	_, ok = snap.Layer(document.LayerRendered)
	assert.False(t, ok, "null layer is absent")
}

func TestClient_SchemaRejection(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		call func(c *Client) error
	}{
		{"snapshot not object", "/api/detect", `[1, 2]`,
			func(c *Client) error { _, err := c.Detect(context.Background(), 0); return err }},
		{"negative width", "/api/detect", `{"width": -1}`,
			func(c *Client) error { _, err := c.Detect(context.Background(), 0); return err }},
		{"block missing geometry", "/api/ocr", `{"textBlocks": [{"x": 1}]}`,
			func(c *Client) error { _, err := c.Recognize(context.Background(), 0); return err }},
		{"layer not string", "/api/inpaint", `{"inpainted": 5}`,
			func(c *Client) error { _, err := c.Inpaint(context.Background(), 0); return err }},
		{"models missing id", "/api/llm_list", `[{"languages": []}]`,
			func(c *Client) error { _, err := c.ListModels(context.Background()); return err }},
		{"ready not bool", "/api/llm_ready", `"yes"`,
			func(c *Client) error { _, err := c.Ready(context.Background()); return err }},
		{"not json", "/api/detect", `<html>`,
			func(c *Client) error { _, err := c.Detect(context.Background(), 0); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{responses: map[string]string{tt.path: tt.body}}
			c := newTestClient(t, rec)
			require.ErrorIs(t, tt.call(c), ErrInvalidResponse)
		})
	}
}

func TestClient_Generation(t *testing.T) {
	rec := &recorder{responses: map[string]string{
		"/api/llm_list":  `[{"id": "m1", "languages": ["en", "ja"]}, {"id": "m2", "languages": []}]`,
		"/api/llm_ready": `true`,
	}}
	c := newTestClient(t, rec)
	ctx := context.Background()

	models, err := c.ListModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []backend.ModelInfo{
		{ID: "m1", Languages: []string{"en", "ja"}},
		{ID: "m2", Languages: []string{}},
	}, models)

	ready, err := c.Ready(ctx)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestClient_StatusError(t *testing.T) {
	rec := &recorder{status: http.StatusInternalServerError}
	c := newTestClient(t, rec)

	_, err := c.Inpaint(context.Background(), 0)
	require.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "backend exploded")

	rec.mu.Lock()
	n := len(rec.requests)
	rec.mu.Unlock()
	assert.Equal(t, 1, n, "no retry")
}

func TestClient_Headers(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = io.WriteString(w, "{}")
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithHeader("Authorization", "Bearer k"))
	require.NoError(t, err)
	_, err = c.Detect(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "Bearer k", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
}

func TestClient_ContextCancelled(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Detect(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
}
