// Package guard decides when a reconciliation must stand down without acting.
package guard

import (
	"fmt"
	"strings"

	"github.com/yairfalse/ilmarinen/internal/resource"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

const (
	DefaultMaintenanceTag   = "Maintenance"
	DefaultMaintenanceValue = "active"
)

// Config selects the maintenance marker
type Config struct {
	MaintenanceTag   string
	MaintenanceValue string
}

// Evaluator checks the transitional and maintenance guards
type Evaluator struct {
	tag   string
	value string
}

// New creates an evaluator, filling empty settings with the defaults
func New(cfg Config) *Evaluator {
	if cfg.MaintenanceTag == "" {
		cfg.MaintenanceTag = DefaultMaintenanceTag
	}
	if cfg.MaintenanceValue == "" {
		cfg.MaintenanceValue = DefaultMaintenanceValue
	}
	return &Evaluator{tag: cfg.MaintenanceTag, value: cfg.MaintenanceValue}
}

// Transitional reports whether the resource is between lifecycle states
func (e *Evaluator) Transitional(snap *types.ResourceSnapshot) (bool, string) {
	profile, ok := resource.For(snap.Kind)
	if !ok {
		return false, ""
	}
	if profile.Transitional(snap.State) {
		return true, fmt.Sprintf("%s %s is in transitional state %q", profile.Noun(), snap.ID, snap.State)
	}
	return false, ""
}

// InFlight reports whether the resource is mid-operation and will settle on
// its own. Alarms defer only on this narrower set; a resource parked in a
// non-running state is left to the remediation rules.
func (e *Evaluator) InFlight(snap *types.ResourceSnapshot) (bool, string) {
	profile, ok := resource.For(snap.Kind)
	if !ok {
		return false, ""
	}
	if profile.InFlight(snap.State) {
		return true, fmt.Sprintf("%s %s is in transitional state %q", profile.Noun(), snap.ID, snap.State)
	}
	return false, ""
}

// Maintenance reports whether the resource carries the maintenance marker.
// The tag key must match exactly; the value is compared case-insensitively.
func (e *Evaluator) Maintenance(snap *types.ResourceSnapshot) (bool, string) {
	v, ok := snap.Tags[e.tag]
	if !ok {
		return false, ""
	}
	if strings.EqualFold(strings.TrimSpace(v), e.value) {
		return true, fmt.Sprintf("%s %s is tagged %s=%s", snap.Kind, snap.ID, e.tag, v)
	}
	return false, ""
}
