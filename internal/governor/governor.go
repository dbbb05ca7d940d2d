// Package governor enforces the per-resource healing attempt budget.
//
// The budget is checked before any remediation and consumed only when a
// non-empty plan is about to run. There is no reset: once exhausted, a
// resource stays exhausted until an operator clears the stored record.
package governor

import (
	"context"
	"fmt"
	"time"

	"github.com/yairfalse/ilmarinen/internal/logger"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// DefaultMaxAttempts is the budget when none is configured
const DefaultMaxAttempts = 3

// Governor gates remediation on the attempt budget
type Governor struct {
	store       Store
	maxAttempts int
	now         func() time.Time
	log         logger.Logger
}

// New creates a governor. A non-positive maxAttempts uses DefaultMaxAttempts.
func New(store Store, maxAttempts int, log logger.Logger) *Governor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Governor{
		store:       store,
		maxAttempts: maxAttempts,
		now:         time.Now,
		log:         log,
	}
}

// WithClock replaces the time source
func (g *Governor) WithClock(now func() time.Time) *Governor {
	g.now = now
	return g
}

// MaxAttempts returns the configured budget
func (g *Governor) MaxAttempts() int {
	return g.maxAttempts
}

// CheckBudget loads the current record for snap
func (g *Governor) CheckBudget(ctx context.Context, snap *types.ResourceSnapshot) (types.AttemptRecord, error) {
	rec, err := g.store.Load(ctx, snap)
	if err != nil {
		return types.AttemptRecord{}, fmt.Errorf("%s store: %w", g.store.Name(), err)
	}
	return rec, nil
}

// Exhausted reports whether rec has used the whole budget
func (g *Governor) Exhausted(rec types.AttemptRecord) bool {
	return rec.Attempts >= g.maxAttempts
}

// RecordAttempt persists one more attempt on top of prev and returns the new record.
// The returned record is valid even when the write fails; callers log the
// error and carry on with remediation.
func (g *Governor) RecordAttempt(ctx context.Context, ref types.ResourceRef, prev types.AttemptRecord) (types.AttemptRecord, error) {
	next := prev.Next(g.now())

	if err := g.store.Save(ctx, ref, prev, next); err != nil {
		return next, fmt.Errorf("failed to record attempt %d/%d for %s: %w", next.Attempts, g.maxAttempts, ref, err)
	}

	g.log.WithFields(map[string]interface{}{
		"resource": ref.String(),
		"attempt":  next.Attempts,
		"max":      g.maxAttempts,
		"store":    g.store.Name(),
	}).Info("recorded healing attempt")
	return next, nil
}
