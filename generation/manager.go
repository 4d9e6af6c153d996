// Package generation manages the translation model: listing and selecting
// models and target languages, loading with a bounded readiness poll, and
// translating either on the backend or through an OpenAI-compatible
// endpoint.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/retouch/backend"
	"github.com/gogpu/retouch/document"
	"github.com/gogpu/retouch/internal/clock"
	"github.com/gogpu/retouch/internal/logging"
	"github.com/gogpu/retouch/pipeline"
)

// Errors returned by the manager.
var (
	// ErrEndpointNotConfigured is returned in OpenAI mode without an
	// endpoint and API key.
	ErrEndpointNotConfigured = errors.New("generation: OpenAI-compatible endpoint and API key are required")

	// ErrNoModel is returned when no model is selected.
	ErrNoModel = errors.New("generation: no model selected")

	// ErrUnknownModel is returned when selecting a model that is not listed.
	ErrUnknownModel = errors.New("generation: unknown model")

	// ErrUnknownLanguage is returned when the selected model does not offer
	// the requested language.
	ErrUnknownLanguage = errors.New("generation: language not offered by model")

	// ErrEmptyCompletion is returned when the endpoint returns no choices.
	ErrEmptyCompletion = errors.New("generation: empty completion")
)

// Readiness poll defaults.
const (
	DefaultPollAttempts = 300
	DefaultPollInterval = 100 * time.Millisecond
)

// Backend is the subset of backend.Backend the manager uses.
type Backend interface {
	backend.GenerationBackend
	Translate(ctx context.Context, doc int, req backend.TranslateRequest) (*document.Snapshot, error)
	UpdateTextBlocks(ctx context.Context, doc int, blocks []document.TextBlock) (*document.Snapshot, error)
}

// State is a snapshot of the manager.
type State struct {
	Models   []backend.ModelInfo
	Selected string
	Language string
	Ready    bool
	Loading  bool
}

// OpenAI reports whether the OpenAI-compatible pseudo-model is selected.
func (s State) OpenAI() bool { return s.Selected == OpenAIModelID }

// Option configures a Manager.
type Option func(*options)

type options struct {
	clock    clock.Clock
	attempts int
	interval time.Duration
	tracker  *pipeline.Tracker
	openai   OpenAIConfig
	http     *http.Client
	language string
	onChange func(State)
}

// WithClock sets the clock used between readiness polls.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithPoll sets the readiness poll bound.
func WithPoll(attempts int, interval time.Duration) Option {
	return func(o *options) {
		if attempts > 0 {
			o.attempts = attempts
		}
		if interval >= 0 {
			o.interval = interval
		}
	}
}

// WithTracker publishes model loads as generation-load operations.
func WithTracker(t *pipeline.Tracker) Option {
	return func(o *options) {
		o.tracker = t
	}
}

// WithOpenAI sets the OpenAI-compatible endpoint configuration.
func WithOpenAI(cfg OpenAIConfig) Option {
	return func(o *options) {
		o.openai = cfg
	}
}

// WithHTTPClient sets the client used for the OpenAI-compatible endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.http = c
	}
}

// WithPreferredLanguage sets the language kept across model changes when
// the model offers it.
func WithPreferredLanguage(lang string) Option {
	return func(o *options) {
		o.language = lang
	}
}

// WithOnChange registers a callback receiving the state after each change.
func WithOnChange(f func(State)) Option {
	return func(o *options) {
		o.onChange = f
	}
}

// Manager tracks model selection and readiness. It is safe for concurrent
// use.
type Manager struct {
	be   Backend
	opts options

	mu       sync.Mutex
	models   []backend.ModelInfo
	selected string
	language string
	ready    bool
	loading  bool
	openai   OpenAIConfig
}

// NewManager creates a manager over be.
func NewManager(be Backend, opts ...Option) *Manager {
	o := options{
		clock:    clock.Real(),
		attempts: DefaultPollAttempts,
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Manager{
		be:       be,
		opts:     o,
		language: o.language,
		openai:   o.openai,
	}
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	return State{
		Models:   append([]backend.ModelInfo(nil), m.models...),
		Selected: m.selected,
		Language: m.language,
		Ready:    m.ready,
		Loading:  m.loading,
	}
}

// changed must be called without m.mu held.
func (m *Manager) changed() {
	if m.opts.onChange == nil {
		return
	}
	m.opts.onChange(m.State())
}

// Refresh lists the backend models, appends the OpenAI-compatible
// pseudo-model, and keeps the current selection if it is still listed.
func (m *Manager) Refresh(ctx context.Context) error {
	listed, err := m.be.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("generation: list models: %w", err)
	}
	models := append(slices.Clone(listed), backend.ModelInfo{ID: OpenAIModelID})

	m.mu.Lock()
	m.models = models
	current := m.selected
	hasCurrent := false
	for _, mi := range models {
		if mi.ID == current {
			hasCurrent = true
			break
		}
	}
	next := models[0].ID
	preferred := m.opts.language
	if hasCurrent && current != "" {
		next = current
		preferred = m.language
	}
	m.selected = next
	m.language = pickLanguage(models, next, preferred)
	m.syncOpenAILocked()
	m.mu.Unlock()

	m.changed()
	return nil
}

// SelectModel unloads the current model and selects id. The model is not
// ready afterwards unless it is the configured OpenAI-compatible endpoint.
func (m *Manager) SelectModel(ctx context.Context, id string) error {
	m.mu.Lock()
	if !m.listed(id) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	m.mu.Unlock()

	if err := m.be.Unload(ctx); err != nil {
		return fmt.Errorf("generation: unload: %w", err)
	}

	m.mu.Lock()
	m.language = pickLanguage(m.models, id, m.language)
	m.selected = id
	m.loading = false
	m.ready = false
	m.syncOpenAILocked()
	m.mu.Unlock()

	m.changed()
	return nil
}

func (m *Manager) listed(id string) bool {
	for _, mi := range m.models {
		if mi.ID == id {
			return true
		}
	}
	return false
}

// SelectLanguage selects a language offered by the current model.
func (m *Manager) SelectLanguage(lang string) error {
	m.mu.Lock()
	got, ok := matchLanguage(modelLanguages(m.models, m.selected), lang)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	m.language = got
	m.mu.Unlock()

	m.changed()
	return nil
}

// SetOpenAI replaces the OpenAI-compatible configuration.
func (m *Manager) SetOpenAI(cfg OpenAIConfig) {
	m.mu.Lock()
	m.openai = cfg
	m.syncOpenAILocked()
	m.mu.Unlock()
	m.changed()
}

// syncOpenAILocked derives readiness from the endpoint configuration when
// the pseudo-model is selected. It reports whether it did.
func (m *Manager) syncOpenAILocked() bool {
	if m.selected != OpenAIModelID {
		return false
	}
	m.ready = m.openai.Configured()
	m.loading = false
	return true
}

// Toggle unloads a ready model, or loads the selected one and polls until
// it is ready. In OpenAI mode it only re-derives readiness. The load is
// published as a non-cancellable generation-load operation when a tracker
// is configured.
func (m *Manager) Toggle(ctx context.Context) error {
	m.mu.Lock()
	if m.syncOpenAILocked() {
		m.mu.Unlock()
		m.changed()
		return nil
	}
	ready := m.ready
	m.mu.Unlock()

	if ready {
		if err := m.be.Unload(ctx); err != nil {
			return fmt.Errorf("generation: unload: %w", err)
		}
		m.mu.Lock()
		m.ready = false
		m.loading = false
		m.mu.Unlock()
		m.changed()
		return nil
	}

	if t := m.opts.tracker; t != nil {
		if err := t.Start(pipeline.Operation{Type: pipeline.TypeGenerationLoad}); err != nil {
			return err
		}
		defer t.Finish()
	}
	_, err := m.load(ctx)
	return err
}

// load loads the selected model and polls readiness. Exhausting the poll
// is not an error.
func (m *Manager) load(ctx context.Context) (bool, error) {
	m.mu.Lock()
	id := m.selected
	m.mu.Unlock()
	if id == "" {
		return false, ErrNoModel
	}

	log := logging.Logger()
	log.Info("generation: loading model", "model", id)
	if err := m.be.LoadModel(ctx, id); err != nil {
		return false, fmt.Errorf("generation: load %s: %w", id, err)
	}
	m.setLoading(true)
	defer m.setLoading(false)

	for attempt := 0; attempt < m.opts.attempts; attempt++ {
		if m.CheckReady(ctx) {
			log.Info("generation: model ready", "model", id, "polls", attempt+1)
			return true, nil
		}
		if attempt == m.opts.attempts-1 {
			break
		}
		if err := clock.Sleep(ctx, m.opts.clock, m.opts.interval); err != nil {
			return false, err
		}
	}
	log.Warn("generation: model not ready after poll", "model", id, "polls", m.opts.attempts)
	return false, nil
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
	m.changed()
}

// CheckReady refreshes readiness from the backend and returns it. Backend
// errors leave the previous value.
func (m *Manager) CheckReady(ctx context.Context) bool {
	m.mu.Lock()
	if m.syncOpenAILocked() {
		r := m.ready
		m.mu.Unlock()
		return r
	}
	m.mu.Unlock()

	ready, err := m.be.Ready(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		logging.Logger().Debug("generation: readiness check failed", "error", err)
		return m.ready
	}
	m.ready = ready
	return ready
}

// EnsureReady makes the generation backend ready before processing. With
// a backend model it lists models and loads the selection when needed; in
// OpenAI mode it fails unless the endpoint is configured.
func (m *Manager) EnsureReady(ctx context.Context) error {
	m.mu.Lock()
	if m.syncOpenAILocked() {
		ready := m.ready
		m.mu.Unlock()
		if !ready {
			return ErrEndpointNotConfigured
		}
		return nil
	}
	ready := m.ready
	m.mu.Unlock()
	if ready {
		return nil
	}

	if err := m.Refresh(ctx); err != nil {
		logging.Logger().Warn("generation: refresh failed", "error", err)
	}
	if m.State().OpenAI() {
		return m.EnsureReady(ctx)
	}
	_, err := m.load(ctx)
	return err
}

// Translate produces translations for doc. blocks are the document's
// current text blocks; single restricts the translation to one block.
// Backend models translate remotely. In OpenAI mode the completion is
// applied locally and the updated blocks are pushed to the backend; an
// empty source is a no-op returning a nil snapshot.
func (m *Manager) Translate(ctx context.Context, doc int, blocks []document.TextBlock, single *int) (*document.Snapshot, error) {
	m.mu.Lock()
	openaiMode := m.syncOpenAILocked()
	ready := m.ready
	cfg := m.openai
	req := backend.TranslateRequest{TextBlock: single}
	langs := modelLanguages(m.models, m.selected)
	if len(langs) > 0 {
		req.Language = pickLanguage(m.models, m.selected, m.language)
	}
	m.mu.Unlock()

	if !openaiMode {
		snap, err := m.be.Translate(ctx, doc, req)
		if err != nil {
			return nil, fmt.Errorf("generation: translate document %d: %w", doc, err)
		}
		return snap, nil
	}
	if !ready {
		return nil, ErrEndpointNotConfigured
	}

	src := sourceText(blocks, single)
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	completion, err := complete(ctx, m.opts.http, cfg, src)
	if err != nil {
		return nil, err
	}
	updated := applyCompletion(blocks, single, completion)
	snap, err := m.be.UpdateTextBlocks(ctx, doc, updated)
	if err != nil {
		return nil, fmt.Errorf("generation: update text blocks: %w", err)
	}
	if snap == nil {
		snap = &document.Snapshot{}
	}
	if snap.TextBlocks == nil {
		snap.TextBlocks = &updated
	}
	return snap, nil
}
