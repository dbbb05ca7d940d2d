package governor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/yairfalse/ilmarinen/internal/controlplane"
	"github.com/yairfalse/ilmarinen/internal/logger"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// Store persists attempt records
type Store interface {
	// Load returns the current record; a resource never healed has a zero record
	Load(ctx context.Context, snap *types.ResourceSnapshot) (types.AttemptRecord, error)
	// Save persists next. prev is the record next was derived from.
	Save(ctx context.Context, ref types.ResourceRef, prev, next types.AttemptRecord) error
	// Name identifies the backend in logs
	Name() string
}

// lastHealedLayouts are tried in order; the second matches Python isoformat()
// values written by earlier deployments.
var lastHealedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
}

// ParseRecord reads an attempt record from resource tags. A missing,
// unparsable or negative count is treated as zero.
func ParseRecord(tags map[string]string) types.AttemptRecord {
	var rec types.AttemptRecord

	if raw, ok := tags[types.TagHealingAttempts]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
			rec.Attempts = n
		}
	}

	if raw := strings.TrimSpace(tags[types.TagLastHealed]); raw != "" {
		for _, layout := range lastHealedLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				rec.LastHealed = t
				break
			}
		}
	}

	return rec
}

// FormatRecord renders rec as resource tags
func FormatRecord(rec types.AttemptRecord) map[string]string {
	return map[string]string{
		types.TagHealingAttempts: strconv.Itoa(rec.Attempts),
		types.TagLastHealed:      rec.LastHealed.UTC().Format(time.RFC3339),
	}
}

// TagStore keeps the record in the resource's own tags. Reads come from the
// snapshot already fetched for the run; the write is a plain tag overwrite, so
// two concurrent runs can both read N and both write N+1.
type TagStore struct {
	cp controlplane.ControlPlane
}

// NewTagStore creates a tag-backed store
func NewTagStore(cp controlplane.ControlPlane) *TagStore {
	return &TagStore{cp: cp}
}

// Load parses the snapshot tags
func (s *TagStore) Load(ctx context.Context, snap *types.ResourceSnapshot) (types.AttemptRecord, error) {
	return ParseRecord(snap.Tags), nil
}

// Save writes both tags in one call
func (s *TagStore) Save(ctx context.Context, ref types.ResourceRef, prev, next types.AttemptRecord) error {
	return s.cp.WriteTags(ctx, ref, FormatRecord(next))
}

// Name identifies the backend in logs
func (s *TagStore) Name() string { return "tags" }

// DryRunStore reads through to inner and only logs writes, so rehearsal runs
// never consume the real budget.
type DryRunStore struct {
	inner Store
	log   logger.Logger
}

// NewDryRunStore wraps inner
func NewDryRunStore(inner Store, log logger.Logger) *DryRunStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &DryRunStore{inner: inner, log: log}
}

// Load delegates to the wrapped store
func (s *DryRunStore) Load(ctx context.Context, snap *types.ResourceSnapshot) (types.AttemptRecord, error) {
	return s.inner.Load(ctx, snap)
}

// Save logs the record that would be written
func (s *DryRunStore) Save(ctx context.Context, ref types.ResourceRef, prev, next types.AttemptRecord) error {
	s.log.WithFields(map[string]interface{}{
		"resource": ref.String(),
		"store":    s.inner.Name(),
		"attempts": next.Attempts,
		"dry_run":  true,
	}).Info("would record healing attempt")
	return nil
}

// Name identifies the backend in logs
func (s *DryRunStore) Name() string { return s.inner.Name() + " (dry run)" }
