package pipeline

import (
	"context"
	"slices"
	"sync"
)

// OperationType names a tracked long-running operation.
type OperationType string

const (
	TypeProcessCurrent OperationType = "process-current"
	TypeProcessAll     OperationType = "process-all"
	TypeGenerationLoad OperationType = "generation-load"
)

// Operation is a snapshot of the running operation.
type Operation struct {
	Type            OperationType
	Step            Step
	Document        int
	Current         float64
	Total           float64
	Cancellable     bool
	CancelRequested bool
}

// Tracker owns the single running Operation and notifies observers of every
// change. It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	op        *Operation
	cancel    context.CancelFunc
	observers []func(*Operation)
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Subscribe registers f to receive a copy of the operation after every
// change; nil means no operation is running.
func (t *Tracker) Subscribe(f func(*Operation)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, f)
}

// Start begins op. It returns ErrBusy if another operation is running.
func (t *Tracker) Start(op Operation) error {
	t.mu.Lock()
	if t.op != nil {
		t.mu.Unlock()
		return ErrBusy
	}
	op.CancelRequested = false
	t.op = &op
	t.mu.Unlock()
	t.notify()
	return nil
}

// Update applies f to the running operation. It is a no-op when idle.
func (t *Tracker) Update(f func(*Operation)) {
	t.mu.Lock()
	if t.op == nil {
		t.mu.Unlock()
		return
	}
	f(t.op)
	t.mu.Unlock()
	t.notify()
}

// Finish ends the running operation.
func (t *Tracker) Finish() {
	t.mu.Lock()
	t.op = nil
	t.cancel = nil
	t.mu.Unlock()
	t.notify()
}

// Current returns a copy of the running operation.
func (t *Tracker) Current() (Operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.op == nil {
		return Operation{}, false
	}
	return *t.op, true
}

// CancelRequested reports whether cancellation of the running operation was
// requested.
func (t *Tracker) CancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.op != nil && t.op.CancelRequested
}

// RequestCancel flags the running operation as cancelled and cancels the
// context of the step in flight. It returns false when nothing cancellable
// is running.
func (t *Tracker) RequestCancel() bool {
	t.mu.Lock()
	if t.op == nil || !t.op.Cancellable || t.op.CancelRequested {
		t.mu.Unlock()
		return false
	}
	t.op.CancelRequested = true
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.notify()
	return true
}

// bind registers the cancel function of the running operation's context.
func (t *Tracker) bind(cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = cancel
}

func (t *Tracker) notify() {
	t.mu.Lock()
	var snap *Operation
	if t.op != nil {
		c := *t.op
		snap = &c
	}
	obs := slices.Clone(t.observers)
	t.mu.Unlock()

	for _, f := range obs {
		if snap == nil {
			f(nil)
			continue
		}
		c := *snap
		f(&c)
	}
}
