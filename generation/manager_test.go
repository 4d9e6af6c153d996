package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/retouch/backend"
	"github.com/gogpu/retouch/backend/backendtest"
	"github.com/gogpu/retouch/document"
	"github.com/gogpu/retouch/pipeline"
)

func ptr[T any](v T) *T { return &v }

func newFake() *backendtest.Fake {
	f := backendtest.New()
	f.Models = []backend.ModelInfo{
		{ID: "m1", Languages: []string{"en", "ja"}},
		{ID: "m2", Languages: []string{"zh"}},
	}
	return f
}

// fastPoll polls on the wall clock without waiting between attempts.
func fastPoll(attempts int) Option { return WithPoll(attempts, 0) }

// =============================================================================
// Selection
// =============================================================================

func TestManager_RefreshAppendsPseudoModel(t *testing.T) {
	m := NewManager(newFake(), WithPreferredLanguage("ja"))
	require.NoError(t, m.Refresh(context.Background()))

	s := m.State()
	require.Len(t, s.Models, 3)
	assert.Equal(t, OpenAIModelID, s.Models[2].ID)
	assert.Equal(t, "m1", s.Selected)
	assert.Equal(t, "ja", s.Language, "preferred language kept when offered")
	assert.False(t, s.OpenAI())
}

func TestManager_RefreshKeepsSelection(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFake())
	require.NoError(t, m.Refresh(ctx))
	require.NoError(t, m.SelectModel(ctx, "m2"))
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, "m2", m.State().Selected)
	assert.Equal(t, "zh", m.State().Language)
}

func TestManager_RefreshError(t *testing.T) {
	f := newFake()
	f.Fail("ListModels", errors.New("down"))
	m := NewManager(f)
	require.Error(t, m.Refresh(context.Background()))
	assert.Empty(t, m.State().Selected)
}

func TestManager_SelectModelUnloadsAndResets(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	m := NewManager(f, fastPoll(3))
	require.NoError(t, m.Refresh(ctx))
	require.NoError(t, m.Toggle(ctx))
	require.True(t, m.State().Ready)

	require.NoError(t, m.SelectModel(ctx, "m2"))
	s := m.State()
	assert.False(t, s.Ready)
	assert.Equal(t, "zh", s.Language, "language falls back to the model's first")
	assert.Empty(t, f.Loaded())

	require.ErrorIs(t, m.SelectModel(ctx, "nope"), ErrUnknownModel)
}

func TestManager_SelectLanguage(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFake())
	require.NoError(t, m.Refresh(ctx))

	tests := []struct {
		name    string
		lang    string
		want    string
		wantErr error
	}{
		{"exact", "ja", "ja", nil},
		{"regional variant", "en-US", "en", nil},
		{"not offered", "de", "en", ErrUnknownLanguage},
		{"not a tag", "klingon!", "en", ErrUnknownLanguage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, m.SelectLanguage("en"))
			err := m.SelectLanguage(tt.lang)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, m.State().Language)
		})
	}
}

func TestPickLanguage(t *testing.T) {
	models := []backend.ModelInfo{{ID: "a", Languages: []string{"en", "fr"}}, {ID: "b"}}
	assert.Equal(t, "fr", pickLanguage(models, "a", "fr"))
	assert.Equal(t, "en", pickLanguage(models, "a", "de"))
	assert.Equal(t, "", pickLanguage(models, "b", "en"))
	assert.Equal(t, "", pickLanguage(models, "missing", "en"))
}

// =============================================================================
// Load / readiness
// =============================================================================

func TestManager_ToggleLoadsAndPolls(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	f.ReadyWhen = 3
	tracker := pipeline.NewTracker()
	var (
		mu  sync.Mutex
		ops []pipeline.OperationType
	)
	tracker.Subscribe(func(op *pipeline.Operation) {
		if op != nil {
			mu.Lock()
			ops = append(ops, op.Type)
			mu.Unlock()
		}
	})

	m := NewManager(f, fastPoll(10), WithTracker(tracker))
	require.NoError(t, m.Refresh(ctx))
	require.NoError(t, m.Toggle(ctx))

	s := m.State()
	assert.True(t, s.Ready)
	assert.False(t, s.Loading)
	assert.Equal(t, "m1", f.Loaded())

	polls := 0
	for _, name := range f.Methods() {
		if name == "Ready" {
			polls++
		}
	}
	assert.Equal(t, 3, polls)

	mu.Lock()
	assert.Equal(t, []pipeline.OperationType{pipeline.TypeGenerationLoad}, ops)
	mu.Unlock()
	_, running := tracker.Current()
	assert.False(t, running)

	require.NoError(t, m.Toggle(ctx))
	assert.False(t, m.State().Ready, "second toggle unloads")
	assert.Empty(t, f.Loaded())
}

func TestManager_PollExhaustionIsNotAnError(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	f.ReadyWhen = -1
	m := NewManager(f, fastPoll(5))
	require.NoError(t, m.Refresh(ctx))
	require.NoError(t, m.Toggle(ctx))

	s := m.State()
	assert.False(t, s.Ready)
	assert.False(t, s.Loading)
}

func TestManager_LoadError(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	f.Fail("LoadModel", errors.New("oom"))
	m := NewManager(f, fastPoll(5))
	require.NoError(t, m.Refresh(ctx))
	require.Error(t, m.Toggle(ctx))
	assert.False(t, m.State().Loading)
}

func TestManager_ToggleWithoutModel(t *testing.T) {
	m := NewManager(newFake())
	require.ErrorIs(t, m.Toggle(context.Background()), ErrNoModel)
}

func TestManager_CheckReadySwallowsErrors(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	m := NewManager(f, fastPoll(1))
	require.NoError(t, m.Refresh(ctx))
	require.NoError(t, m.Toggle(ctx))
	require.True(t, m.State().Ready)

	f.Fail("Ready", errors.New("timeout"))
	assert.True(t, m.CheckReady(ctx), "error keeps the previous value")
}

func TestManager_EnsureReady(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	m := NewManager(f, fastPoll(2))

	require.NoError(t, m.EnsureReady(ctx))
	assert.True(t, m.State().Ready)
	assert.Equal(t, "m1", f.Loaded())

	before := len(f.Calls())
	require.NoError(t, m.EnsureReady(ctx))
	assert.Len(t, f.Calls(), before, "already ready makes no calls")
}

// =============================================================================
// OpenAI-compatible mode
// =============================================================================

func TestManager_OpenAIReadiness(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	m := NewManager(f)
	require.NoError(t, m.Refresh(ctx))
	require.NoError(t, m.SelectModel(ctx, OpenAIModelID))

	assert.False(t, m.State().Ready)
	require.ErrorIs(t, m.EnsureReady(ctx), ErrEndpointNotConfigured)

	m.SetOpenAI(OpenAIConfig{Endpoint: "http://x/v1"})
	assert.False(t, m.State().Ready, "key missing")

	m.SetOpenAI(OpenAIConfig{Endpoint: "http://x/v1", APIKey: "k"})
	assert.True(t, m.State().Ready)
	require.NoError(t, m.EnsureReady(ctx))
	require.NoError(t, m.Toggle(ctx))
	assert.True(t, m.State().Ready, "toggle only re-derives readiness")
	assert.Empty(t, f.Loaded())
}

type chatServer struct {
	mu       sync.Mutex
	requests []map[string]any
	auth     string
	reply    string
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)
	s.mu.Lock()
	s.requests = append(s.requests, body)
	s.auth = r.Header.Get("Authorization")
	s.mu.Unlock()

	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"model":  "test",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": s.reply},
		}},
	})
}

func openAIManager(t *testing.T, f *backendtest.Fake, reply string) (*Manager, *chatServer) {
	t.Helper()
	cs := &chatServer{reply: reply}
	srv := httptest.NewServer(cs)
	t.Cleanup(srv.Close)

	m := NewManager(f, WithOpenAI(OpenAIConfig{Endpoint: srv.URL + "/v1/", APIKey: "secret", Prompt: "  to English  "}))
	require.NoError(t, m.Refresh(context.Background()))
	require.NoError(t, m.SelectModel(context.Background(), OpenAIModelID))
	return m, cs
}

func TestManager_OpenAITranslateAllBlocks(t *testing.T) {
	f := newFake()
	m, cs := openAIManager(t, f, "one\r\ntwo")
	blocks := []document.TextBlock{
		{Text: ptr("eins")},
		{Text: ptr("zwei")},
		{Text: ptr("drei")},
	}

	snap, err := m.Translate(context.Background(), 4, blocks, nil)
	require.NoError(t, err)
	require.NotNil(t, snap.TextBlocks)
	got := *snap.TextBlocks
	assert.Equal(t, "one", *got[0].Translation)
	assert.Equal(t, "two", *got[1].Translation)
	assert.Nil(t, got[2].Translation, "blocks without a line are unchanged")
	assert.Nil(t, blocks[0].Translation, "input is not mutated")

	cs.mu.Lock()
	defer cs.mu.Unlock()
	assert.Equal(t, "Bearer secret", cs.auth)
	require.Len(t, cs.requests, 1)
	assert.Equal(t, DefaultOpenAIModel, cs.requests[0]["model"])
	msgs := cs.requests[0]["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "to English", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "eins\nzwei\ndrei", msgs[1].(map[string]any)["content"])

	calls := f.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "UpdateTextBlocks", last.Method)
	assert.Equal(t, 4, last.Doc)
}

func TestManager_OpenAITranslateSingleBlock(t *testing.T) {
	f := newFake()
	m, _ := openAIManager(t, f, "line a\nline b")
	blocks := []document.TextBlock{{Text: ptr("x")}, {Text: ptr("y")}}

	snap, err := m.Translate(context.Background(), 0, blocks, ptr(1))
	require.NoError(t, err)
	got := *snap.TextBlocks
	assert.Nil(t, got[0].Translation)
	assert.Equal(t, "line a\nline b", *got[1].Translation, "single block gets the whole completion")
}

func TestManager_OpenAIEmptySourceIsNoop(t *testing.T) {
	f := newFake()
	m, cs := openAIManager(t, f, "unused")
	blocks := []document.TextBlock{{Text: ptr("  ")}, {}}

	snap, err := m.Translate(context.Background(), 0, blocks, nil)
	require.NoError(t, err)
	assert.Nil(t, snap)
	cs.mu.Lock()
	assert.Empty(t, cs.requests)
	cs.mu.Unlock()
}

func TestManager_TranslateOnBackend(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	m := NewManager(f)
	require.NoError(t, m.Refresh(ctx))
	require.NoError(t, m.SelectLanguage("ja"))

	_, err := m.Translate(ctx, 2, nil, ptr(0))
	require.NoError(t, err)
	calls := f.Calls()
	last := calls[len(calls)-1]
	require.Equal(t, "Translate", last.Method)
	assert.Equal(t, "ja", last.Trans.Language)
	assert.Equal(t, 0, *last.Trans.TextBlock)
}
