// Package fetcher reads resource snapshots with a bounded, fixed-delay retry.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/yairfalse/ilmarinen/internal/controlplane"
	"github.com/yairfalse/ilmarinen/internal/logger"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// ErrResourceUnavailable is returned once every fetch attempt has failed
var ErrResourceUnavailable = errors.New("resource unavailable")

const (
	DefaultAttempts = 3
	DefaultDelay    = 2 * time.Second
)

// Config controls the retry policy
type Config struct {
	Attempts int
	Delay    time.Duration
}

// RetryHook is called before each retry with the failed attempt number and its error
type RetryHook func(attempt int, err error)

// Fetcher wraps control-plane reads with retry
type Fetcher struct {
	cp       controlplane.ControlPlane
	attempts int
	delay    time.Duration
	log      logger.Logger
	onRetry  RetryHook
}

// New creates a fetcher. Non-positive settings fall back to the defaults.
func New(cp controlplane.ControlPlane, cfg Config, log logger.Logger) *Fetcher {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Fetcher{
		cp:       cp,
		attempts: cfg.Attempts,
		delay:    cfg.Delay,
		log:      log,
	}
}

// OnRetry registers a hook called for every retried attempt
func (f *Fetcher) OnRetry(hook RetryHook) *Fetcher {
	f.onRetry = hook
	return f
}

// Fetch returns a validated snapshot of ref. A not-found resource fails on
// the first attempt; any other error is retried up to the configured count
// with a constant delay between attempts. The returned error always wraps
// ErrResourceUnavailable and the last underlying error.
func (f *Fetcher) Fetch(ctx context.Context, ref types.ResourceRef) (*types.ResourceSnapshot, error) {
	attempt := 0

	operation := func() (*types.ResourceSnapshot, error) {
		attempt++
		snap, err := f.cp.FetchResource(ctx, ref)
		if err != nil {
			if errors.Is(err, controlplane.ErrNotFound) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if err := snap.Validate(); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("invalid snapshot for %s: %w", ref, err))
		}
		if snap.Kind != ref.Kind {
			return nil, backoff.Permanent(fmt.Errorf("%s resolved to a %s resource", ref, snap.Kind))
		}
		return snap, nil
	}

	notify := func(err error, next time.Duration) {
		f.log.WithFields(map[string]interface{}{
			"resource": ref.String(),
			"attempt":  attempt,
			"retry_in": next.String(),
		}).Warn(fmt.Sprintf("fetch failed, retrying: %v", err))
		if f.onRetry != nil {
			f.onRetry(attempt, err)
		}
	}

	snap, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(f.delay)),
		backoff.WithMaxTries(uint(f.attempts)),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s after %d attempt(s): %w", ErrResourceUnavailable, ref, attempt, err)
	}
	return snap, nil
}
