// Package app assembles the healer from configuration.
package app

import (
	"context"
	"errors"

	"github.com/yairfalse/ilmarinen/internal/controlplane"
	awscp "github.com/yairfalse/ilmarinen/internal/controlplane/aws"
	"github.com/yairfalse/ilmarinen/internal/drift"
	"github.com/yairfalse/ilmarinen/internal/fetcher"
	"github.com/yairfalse/ilmarinen/internal/governor"
	"github.com/yairfalse/ilmarinen/internal/guard"
	"github.com/yairfalse/ilmarinen/internal/logger"
	"github.com/yairfalse/ilmarinen/internal/metrics"
	"github.com/yairfalse/ilmarinen/internal/reconciler"
	"github.com/yairfalse/ilmarinen/internal/remediation"
	"github.com/yairfalse/ilmarinen/pkg/config"
)

// BuildInfo is stamped into the binary at link time
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// App holds the wired components for one managed resource
type App struct {
	Config       *config.Config
	Logger       logger.Logger
	Clients      *awscp.Clients
	ControlPlane controlplane.ControlPlane
	Fetcher      *fetcher.Fetcher
	Governor     *governor.Governor
	AttemptStore string
	Guard        *guard.Evaluator
	Detector     *drift.Detector
	Selector     *remediation.Selector
	Reconciler   *reconciler.Reconciler

	// Prometheus is nil unless metrics.prometheus is enabled
	Prometheus *metrics.Prometheus
	Metrics    metrics.Recorder

	flushers []metrics.Flusher
}

// Flush publishes buffered metrics. It is called after each reconciliation.
func (a *App) Flush(ctx context.Context) error {
	var errs []error
	for _, f := range a.flushers {
		if err := f.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
