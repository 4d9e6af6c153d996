// Package backendtest provides an in-memory backend.Backend for tests.
package backendtest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/retouch/backend"
	"github.com/gogpu/retouch/document"
)

// Call records one backend invocation.
type Call struct {
	Method string
	Doc    int
	Region *document.Region
	Data   []byte
	Blocks []document.TextBlock
	Render *backend.RenderRequest
	Trans  *backend.TranslateRequest
	Model  string
}

// Fake records every call. Responses and errors are looked up by method
// name; a nil response becomes an empty snapshot. Hook, when set, runs
// before each call returns and may block or return an error.
type Fake struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string]*document.Snapshot
	errs      map[string]error

	Models    []backend.ModelInfo
	ReadyWhen int // Ready polls after LoadModel before reporting true; negative never.
	Hook      func(ctx context.Context, c Call) error

	loaded string
	polls  int
}

var _ backend.Backend = (*Fake)(nil)

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		responses: make(map[string]*document.Snapshot),
		errs:      make(map[string]error),
	}
}

// Respond sets the snapshot returned by method.
func (f *Fake) Respond(method string, s *document.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = s
}

// Fail makes method return err. A nil err clears it.
func (f *Fake) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, method)
		return
	}
	f.errs[method] = err
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Methods returns the recorded method names in call order.
func (f *Fake) Methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method
	}
	return out
}

// Loaded returns the currently loaded model id.
func (f *Fake) Loaded() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

func (f *Fake) record(ctx context.Context, c Call) (*document.Snapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	hook := f.Hook
	err := f.errs[c.Method]
	resp := f.responses[c.Method]
	f.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx, c); herr != nil {
			return nil, herr
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Method, err)
	}
	if resp == nil {
		return &document.Snapshot{}, nil
	}
	return resp, nil
}

func (f *Fake) Detect(ctx context.Context, doc int) (*document.Snapshot, error) {
	return f.record(ctx, Call{Method: "Detect", Doc: doc})
}

func (f *Fake) Recognize(ctx context.Context, doc int) (*document.Snapshot, error) {
	return f.record(ctx, Call{Method: "Recognize", Doc: doc})
}

func (f *Fake) Inpaint(ctx context.Context, doc int) (*document.Snapshot, error) {
	return f.record(ctx, Call{Method: "Inpaint", Doc: doc})
}

func (f *Fake) InpaintPartial(ctx context.Context, doc int, region document.Region) (*document.Snapshot, error) {
	return f.record(ctx, Call{Method: "InpaintPartial", Doc: doc, Region: &region})
}

func (f *Fake) Translate(ctx context.Context, doc int, req backend.TranslateRequest) (*document.Snapshot, error) {
	return f.record(ctx, Call{Method: "Translate", Doc: doc, Trans: &req})
}

func (f *Fake) Render(ctx context.Context, doc int, req backend.RenderRequest) (*document.Snapshot, error) {
	return f.record(ctx, Call{Method: "Render", Doc: doc, Render: &req})
}

func (f *Fake) UpdateTextBlocks(ctx context.Context, doc int, blocks []document.TextBlock) (*document.Snapshot, error) {
	cp := make([]document.TextBlock, len(blocks))
	for i, b := range blocks {
		cp[i] = b.Clone()
	}
	return f.record(ctx, Call{Method: "UpdateTextBlocks", Doc: doc, Blocks: cp})
}

func (f *Fake) UpdateMask(ctx context.Context, doc int, data []byte, region *document.Region) (*document.Snapshot, error) {
	var r *document.Region
	if region != nil {
		rr := *region
		r = &rr
	}
	return f.record(ctx, Call{Method: "UpdateMask", Doc: doc, Data: slices.Clone(data), Region: r})
}

func (f *Fake) UpdateBrushLayer(ctx context.Context, doc int, patch []byte, region document.Region) (*document.Snapshot, error) {
	return f.record(ctx, Call{Method: "UpdateBrushLayer", Doc: doc, Data: slices.Clone(patch), Region: &region})
}

func (f *Fake) ListModels(ctx context.Context) ([]backend.ModelInfo, error) {
	if _, err := f.record(ctx, Call{Method: "ListModels"}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.Models), nil
}

func (f *Fake) LoadModel(ctx context.Context, id string) error {
	if _, err := f.record(ctx, Call{Method: "LoadModel", Model: id}); err != nil {
		return err
	}
	f.mu.Lock()
	f.loaded = id
	f.polls = 0
	f.mu.Unlock()
	return nil
}

func (f *Fake) Unload(ctx context.Context) error {
	if _, err := f.record(ctx, Call{Method: "Unload"}); err != nil {
		return err
	}
	f.mu.Lock()
	f.loaded = ""
	f.mu.Unlock()
	return nil
}

func (f *Fake) Ready(ctx context.Context) (bool, error) {
	if _, err := f.record(ctx, Call{Method: "Ready"}); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded == "" {
		return false, nil
	}
	f.polls++
	if f.ReadyWhen < 0 {
		return false, nil
	}
	return f.polls >= f.ReadyWhen, nil
}
