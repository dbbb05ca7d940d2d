// Package controlplane is the boundary between the reconciler and the cloud
// provider. Everything the healer reads or changes on a resource goes through
// the ControlPlane interface so the decision logic can run against fakes.
package controlplane

import (
	"context"
	"errors"

	"github.com/yairfalse/ilmarinen/pkg/types"
)

var (
	// ErrNotFound is returned when the resource does not exist. It is not retried.
	ErrNotFound = errors.New("resource not found")
	// ErrUnsupportedAction is returned for actions the resource kind cannot perform
	ErrUnsupportedAction = errors.New("action not supported for resource kind")
)

// ControlPlane reads and mutates managed resources
type ControlPlane interface {
	// FetchResource describes the resource, including its tags
	FetchResource(ctx context.Context, ref types.ResourceRef) (*types.ResourceSnapshot, error)
	// ReadTags returns the resource's current tags
	ReadTags(ctx context.Context, ref types.ResourceRef) (map[string]string, error)
	// WriteTags adds or overwrites the given tags
	WriteTags(ctx context.Context, ref types.ResourceRef, tags map[string]string) error
	// Execute performs a single remediation step
	Execute(ctx context.Context, ref types.ResourceRef, step types.RemediationStep) error
}
