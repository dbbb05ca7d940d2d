package controlplane

import (
	"context"
	"fmt"
	"sync"

	"github.com/yairfalse/ilmarinen/pkg/types"
)

// Fake is an in-memory control plane for tests and local runs. It applies
// executed steps to the stored snapshot so follow-up fetches observe them.
type Fake struct {
	mu sync.Mutex

	snapshot *types.ResourceSnapshot

	// FetchErrors are returned by successive FetchResource calls before the snapshot is
	FetchErrors []error
	// ActionErrors fails the named actions
	ActionErrors map[types.Action]error
	// WriteTagsErr fails WriteTags
	WriteTagsErr error

	FetchCalls int
	Executed   []types.RemediationStep
	TagWrites  []map[string]string
}

// NewFake creates a fake holding a copy of snap
func NewFake(snap types.ResourceSnapshot) *Fake {
	return &Fake{snapshot: cloneSnapshot(&snap), ActionErrors: map[types.Action]error{}}
}

// Snapshot returns a copy of the current state
func (f *Fake) Snapshot() types.ResourceSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *cloneSnapshot(f.snapshot)
}

// FetchResource returns queued errors first, then a copy of the snapshot
func (f *Fake) FetchResource(ctx context.Context, ref types.ResourceRef) (*types.ResourceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.FetchCalls++
	if len(f.FetchErrors) > 0 {
		err := f.FetchErrors[0]
		f.FetchErrors = f.FetchErrors[1:]
		return nil, err
	}
	if f.snapshot == nil || f.snapshot.ID != ref.ID {
		return nil, fmt.Errorf("fake %s: %w", ref, ErrNotFound)
	}
	return cloneSnapshot(f.snapshot), nil
}

// ReadTags returns a copy of the snapshot tags
func (f *Fake) ReadTags(ctx context.Context, ref types.ResourceRef) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.snapshot == nil || f.snapshot.ID != ref.ID {
		return nil, fmt.Errorf("fake %s: %w", ref, ErrNotFound)
	}
	out := make(map[string]string, len(f.snapshot.Tags))
	for k, v := range f.snapshot.Tags {
		out[k] = v
	}
	return out, nil
}

// WriteTags merges tags into the snapshot
func (f *Fake) WriteTags(ctx context.Context, ref types.ResourceRef, tags map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteTagsErr != nil {
		return f.WriteTagsErr
	}
	written := make(map[string]string, len(tags))
	if f.snapshot.Tags == nil {
		f.snapshot.Tags = map[string]string{}
	}
	for k, v := range tags {
		f.snapshot.Tags[k] = v
		written[k] = v
	}
	f.TagWrites = append(f.TagWrites, written)
	return nil
}

// Execute records the step and applies it to the snapshot
func (f *Fake) Execute(ctx context.Context, ref types.ResourceRef, step types.RemediationStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Executed = append(f.Executed, step)
	if err := f.ActionErrors[step.Action]; err != nil {
		return err
	}

	s := f.snapshot
	switch step.Action {
	case types.ActionStop:
		s.State = "stopped"
	case types.ActionStart:
		if s.Kind == types.KindDatabase {
			s.State = "available"
		} else {
			s.State = "running"
		}
	case types.ActionResize:
		s.SizeClass = step.SizeClass
	case types.ActionResizeStorage:
		s.StorageGB = step.StorageGB
	case types.ActionRestoreNetworkGroups:
		s.NetworkGroups = types.SortedSet(step.NetworkGroups)
	case types.ActionReboot, types.ActionNoop:
	default:
		return fmt.Errorf("%s: %w", step.Action, ErrUnsupportedAction)
	}
	return nil
}

// Actions lists the executed actions in order
func (f *Fake) Actions() []types.Action {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]types.Action, 0, len(f.Executed))
	for _, s := range f.Executed {
		out = append(out, s.Action)
	}
	return out
}

func cloneSnapshot(s *types.ResourceSnapshot) *types.ResourceSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.NetworkGroups = append([]string(nil), s.NetworkGroups...)
	c.Tags = make(map[string]string, len(s.Tags))
	for k, v := range s.Tags {
		c.Tags[k] = v
	}
	return &c
}
