package pipeline

import (
	"context"
	"fmt"
)

// Step is one stage of document processing.
type Step uint8

const (
	StepDetect Step = iota
	StepRecognize
	StepInpaint
	StepTranslate
	StepRender

	stepCount
)

// Steps is the fixed processing order.
var Steps = [stepCount]Step{StepDetect, StepRecognize, StepInpaint, StepTranslate, StepRender}

// TotalSteps is the number of steps in a full run.
const TotalSteps = int(stepCount)

var stepNames = [stepCount]string{"detect", "recognize-text", "inpaint", "translate", "render"}

// String returns the step name.
func (s Step) String() string {
	if s < stepCount {
		return stepNames[s]
	}
	return fmt.Sprintf("Step(%d)", s)
}

// Handler runs one step against the document at index doc.
type Handler func(ctx context.Context, doc int) error

// Handlers is the step lookup table. Every entry must be set.
type Handlers [stepCount]Handler

func (h *Handlers) validate() error {
	for i, f := range h {
		if f == nil {
			return fmt.Errorf("%w: %s", ErrMissingHandler, Step(i))
		}
	}
	return nil
}

// Preflight makes the generation backend ready before a run.
type Preflight interface {
	EnsureReady(ctx context.Context) error
}

// PreflightFunc adapts a function to Preflight.
type PreflightFunc func(ctx context.Context) error

// EnsureReady implements Preflight.
func (f PreflightFunc) EnsureReady(ctx context.Context) error { return f(ctx) }

// ProgressSink receives progress in percent, 0 to 100.
type ProgressSink func(percent int)
