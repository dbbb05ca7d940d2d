package controlplane

import (
	"context"

	"github.com/yairfalse/ilmarinen/internal/logger"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// DryRun wraps a control plane so reads pass through and mutations are only logged
type DryRun struct {
	inner ControlPlane
	log   logger.Logger
}

// NewDryRun creates a dry-run decorator around inner
func NewDryRun(inner ControlPlane, log logger.Logger) *DryRun {
	if log == nil {
		log = logger.NewNop()
	}
	return &DryRun{inner: inner, log: log}
}

// FetchResource delegates to the wrapped control plane
func (d *DryRun) FetchResource(ctx context.Context, ref types.ResourceRef) (*types.ResourceSnapshot, error) {
	return d.inner.FetchResource(ctx, ref)
}

// ReadTags delegates to the wrapped control plane
func (d *DryRun) ReadTags(ctx context.Context, ref types.ResourceRef) (map[string]string, error) {
	return d.inner.ReadTags(ctx, ref)
}

// WriteTags logs the tags that would be written
func (d *DryRun) WriteTags(ctx context.Context, ref types.ResourceRef, tags map[string]string) error {
	fields := map[string]interface{}{"resource": ref.String(), "dry_run": true}
	for k, v := range tags {
		fields["tag_"+k] = v
	}
	d.log.WithFields(fields).Info("would write tags")
	return nil
}

// Execute logs the step that would run
func (d *DryRun) Execute(ctx context.Context, ref types.ResourceRef, step types.RemediationStep) error {
	d.log.WithFields(map[string]interface{}{
		"resource": ref.String(),
		"action":   string(step.Action),
		"dry_run":  true,
	}).Info("would execute " + step.String())
	return nil
}
