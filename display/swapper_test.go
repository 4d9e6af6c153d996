package display

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/retouch/canvas"
	"github.com/gogpu/retouch/internal/clock"
)

type manualFrames struct {
	mu    sync.Mutex
	queue []func()
}

func (m *manualFrames) RequestFrame(f func()) {
	m.mu.Lock()
	m.queue = append(m.queue, f)
	m.mu.Unlock()
}

// Tick runs the callbacks queued before this frame boundary.
func (m *manualFrames) Tick() {
	m.mu.Lock()
	batch := m.queue
	m.queue = nil
	m.mu.Unlock()
	for _, f := range batch {
		f()
	}
}

// harness wires a swapper to a manual clock, manual frames and a decoder
// that can be made to fail or block per payload.
type harness struct {
	t      *testing.T
	s      *Swapper
	clk    *clock.Manual
	frames *manualFrames

	mu       sync.Mutex
	decodes  map[string]int
	released map[Key]int
	blockers map[string]chan struct{}
}

func newHarness(t *testing.T, opts ...Option) *harness {
	h := &harness{
		t:        t,
		clk:      clock.NewManual(time.Unix(0, 0)),
		frames:   &manualFrames{},
		decodes:  map[string]int{},
		released: map[Key]int{},
		blockers: map[string]chan struct{}{},
	}
	base := []Option{
		WithClock(h.clk),
		WithFrames(h.frames),
		WithPool(canvas.NewPool(4)),
		WithDecoder(h.decode),
		WithOnRelease(func(b *Bitmap) {
			h.mu.Lock()
			h.released[b.Key()]++
			h.mu.Unlock()
		}),
	}
	h.s = NewSwapper(append(base, opts...)...)
	return h
}

func (h *harness) decode(data []byte, pool *canvas.Pool) (*canvas.Layer, error) {
	name := string(data)
	h.mu.Lock()
	h.decodes[name]++
	block := h.blockers[name]
	h.mu.Unlock()
	if block != nil {
		<-block
	}
	if name == "corrupt" {
		return nil, errors.New("bad header")
	}
	return pool.Get(2, 2), nil
}

func (h *harness) releases(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released[KeyOf([]byte(name))]
}

// show displays name and waits until it is the shown (StateSingle) or staged
// (StateTransitioning) bitmap.
func (h *harness) show(name string, want State) {
	h.t.Helper()
	require.NoError(h.t, h.s.Show([]byte(name)))
	key := KeyOf([]byte(name))
	require.Eventually(h.t, func() bool {
		v := h.view()
		if v.State != want {
			return false
		}
		if want == StateTransitioning {
			return v.NextKey == key
		}
		return v.CurrentKey == key
	}, time.Second, time.Millisecond)
}

func (h *harness) view() View {
	var v View
	h.s.Render(func(view View) { v = view })
	return v
}

// =============================================================================
// Transitions
// =============================================================================

func TestSwapper_FirstBitmapIsShownDirectly(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, StateEmpty, h.s.State())

	h.show("b1", StateSingle)
	v := h.view()
	assert.NotNil(t, v.Current)
	assert.Nil(t, v.Next)
}

func TestSwapper_CrossfadeOnTransitionEnd(t *testing.T) {
	h := newHarness(t)
	h.show("b1", StateSingle)
	h.show("b2", StateTransitioning)

	assert.Zero(t, h.view().NextOpacity)
	h.frames.Tick()
	assert.Zero(t, h.view().NextOpacity, "fade waits for a second frame")
	h.frames.Tick()

	h.clk.Advance(DefaultDuration / 2)
	assert.InDelta(t, 0.5, h.view().NextOpacity, 1e-9)
	assert.Zero(t, h.releases("b1"))

	h.s.TransitionEnd()
	assert.Equal(t, StateSingle, h.s.State())
	assert.Equal(t, 1, h.releases("b1"), "previous bitmap released at promotion")
	assert.Zero(t, h.releases("b2"))
}

func TestSwapper_FallbackTimerPromotes(t *testing.T) {
	h := newHarness(t)
	h.show("b1", StateSingle)
	h.show("b2", StateTransitioning)
	h.frames.Tick()
	h.frames.Tick()

	h.clk.Advance(DefaultDuration + FallbackSlack - time.Millisecond)
	assert.Equal(t, StateTransitioning, h.s.State())
	h.clk.Advance(time.Millisecond)
	assert.Equal(t, StateSingle, h.s.State())
	assert.Equal(t, 1, h.releases("b1"))

	h.s.TransitionEnd() // late signal is a no-op
	assert.Equal(t, 1, h.releases("b1"))
}

func TestSwapper_TransitionEndBeforeFadeIgnored(t *testing.T) {
	h := newHarness(t)
	h.show("b1", StateSingle)
	h.show("b2", StateTransitioning)
	h.s.TransitionEnd()
	assert.Equal(t, StateTransitioning, h.s.State())
}

func TestSwapper_RestageReleasesStale(t *testing.T) {
	h := newHarness(t)
	h.show("b0", StateSingle)
	h.show("b1", StateTransitioning)
	h.frames.Tick()

	require.NoError(t, h.s.Show([]byte("b2")))
	require.Eventually(t, func() bool { return h.releases("b1") == 1 }, time.Second, time.Millisecond)

	v := h.view()
	require.NotNil(t, v.Next)
	assert.NotSame(t, v.Current, v.Next)

	// b1's pending frame callbacks belong to a stale staging.
	h.frames.Tick()
	h.clk.Advance(time.Second)
	assert.Equal(t, StateTransitioning, h.s.State(), "stale callbacks must not promote b2")

	h.frames.Tick()
	h.frames.Tick()
	h.clk.Advance(DefaultDuration + FallbackSlack)
	assert.Equal(t, StateSingle, h.s.State())
	assert.Equal(t, 1, h.releases("b0"))
	assert.Equal(t, 1, h.releases("b1"))
	assert.Zero(t, h.releases("b2"))
}

func TestSwapper_WithoutTransition(t *testing.T) {
	h := newHarness(t, WithTransition(false))
	h.show("b1", StateSingle)
	require.NoError(t, h.s.Show([]byte("b2")))
	require.Eventually(t, func() bool { return h.releases("b1") == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateSingle, h.s.State())
}

// =============================================================================
// Decoding
// =============================================================================

func TestSwapper_DecodeFailureKeepsPrevious(t *testing.T) {
	h := newHarness(t)
	h.show("b1", StateSingle)
	require.NoError(t, h.s.Show([]byte("corrupt")))
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.decodes["corrupt"] == 1
	}, time.Second, time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, StateSingle, h.s.State())
	assert.NotNil(t, h.view().Current)
	assert.Zero(t, h.releases("b1"))
}

func TestSwapper_DuplicateDataIgnored(t *testing.T) {
	h := newHarness(t)
	h.show("b1", StateSingle)
	require.NoError(t, h.s.Show([]byte("b1")))
	assert.Equal(t, StateSingle, h.s.State())

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, 1, h.decodes["b1"])
}

func TestSwapper_LateDecodeIsReleased(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.blockers["slow"] = gate

	require.NoError(t, h.s.Show([]byte("slow")))
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.decodes["slow"] == 1
	}, time.Second, time.Millisecond)

	h.s.Close()
	close(gate)
	require.Eventually(t, func() bool { return h.releases("slow") == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateEmpty, h.s.State())
	assert.ErrorIs(t, h.s.Show([]byte("b1")), ErrClosed)
}

func TestSwapper_SupersededDecodeIsReleased(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.blockers["old"] = gate

	require.NoError(t, h.s.Show([]byte("old")))
	h.show("new", StateSingle)
	close(gate)

	require.Eventually(t, func() bool { return h.releases("old") == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateSingle, h.s.State())
	assert.Zero(t, h.releases("new"))
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestSwapper_EveryBitmapReleasedOnce(t *testing.T) {
	h := newHarness(t)
	names := []string{"a", "b", "c", "d"}
	h.show(names[0], StateSingle)
	for _, n := range names[1:] {
		h.show(n, StateTransitioning)
		h.frames.Tick()
	}
	h.s.Clear()
	assert.Equal(t, StateEmpty, h.s.State())
	h.s.Close()
	h.s.Close()

	for _, n := range names {
		assert.Equal(t, 1, h.releases(n), "bitmap %s", n)
	}
}

func TestSwapper_ShowEmptyClears(t *testing.T) {
	var states []State
	var mu sync.Mutex
	h := newHarness(t, WithOnChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}))
	h.show("b1", StateSingle)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 1
	}, time.Second, time.Millisecond)
	require.NoError(t, h.s.Show(nil))
	assert.Equal(t, StateEmpty, h.s.State())
	assert.Equal(t, 1, h.releases("b1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateSingle, StateEmpty}, states)
}

func TestTickerFrames(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	f := NewTickerFrames(clk, 16*time.Millisecond)
	var got []int
	f.RequestFrame(func() {
		got = append(got, 1)
		f.RequestFrame(func() { got = append(got, 2) })
	})
	clk.Advance(16 * time.Millisecond)
	assert.Equal(t, []int{1}, got)
	clk.Advance(16 * time.Millisecond)
	assert.Equal(t, []int{1, 2}, got)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "transitioning", StateTransitioning.String())
	assert.Equal(t, "State(9)", State(9).String())
}
