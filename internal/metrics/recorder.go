// Package metrics records reconciliation outcomes to Prometheus and CloudWatch.
package metrics

import (
	"context"
	"errors"

	"github.com/yairfalse/ilmarinen/pkg/types"
)

// Recorder observes reconciliation runs
type Recorder interface {
	ObserveOutcome(outcome types.ReconciliationOutcome)
	ObserveAction(kind types.Kind, rec types.ActionRecord)
	ObserveFetchRetry(kind types.Kind)
}

// Flusher is implemented by recorders that buffer and ship observations
type Flusher interface {
	Flush(ctx context.Context) error
}

// Nop discards every observation
type Nop struct{}

func (Nop) ObserveOutcome(types.ReconciliationOutcome)   {}
func (Nop) ObserveAction(types.Kind, types.ActionRecord) {}
func (Nop) ObserveFetchRetry(types.Kind)                 {}

// Multi forwards observations to several recorders
type Multi []Recorder

func (m Multi) ObserveOutcome(o types.ReconciliationOutcome) {
	for _, r := range m {
		r.ObserveOutcome(o)
	}
}

func (m Multi) ObserveAction(kind types.Kind, rec types.ActionRecord) {
	for _, r := range m {
		r.ObserveAction(kind, rec)
	}
}

func (m Multi) ObserveFetchRetry(kind types.Kind) {
	for _, r := range m {
		r.ObserveFetchRetry(kind)
	}
}

// Flush flushes every member that buffers
func (m Multi) Flush(ctx context.Context) error {
	var errs []error
	for _, r := range m {
		if f, ok := r.(Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
