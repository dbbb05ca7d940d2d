// Package remediation turns an intent and a snapshot into an ordered
// remediation plan, and executes plans against the control plane.
package remediation

import (
	"fmt"

	"github.com/yairfalse/ilmarinen/internal/resource"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// DefaultStorageHeadroomPercent is the storage bump applied when a storage
// alarm fires on a database already at its declared size
const DefaultStorageHeadroomPercent = 20

// Policy tunes plan selection
type Policy struct {
	StorageHeadroomPercent int
}

// Decision is the selector's answer for one run. Status is set only when the
// plan is empty and the run ends without acting.
type Decision struct {
	Plan   *types.RemediationPlan
	Status types.Status
	Reason string
	Notes  []string
}

// HasPlan returns true when there is something to execute
func (d Decision) HasPlan() bool {
	return !d.Plan.IsEmpty()
}

// Selector chooses remediation plans
type Selector struct {
	policy Policy
}

// NewSelector creates a selector. A non-positive headroom uses the default.
func NewSelector(policy Policy) *Selector {
	if policy.StorageHeadroomPercent <= 0 {
		policy.StorageHeadroomPercent = DefaultStorageHeadroomPercent
	}
	return &Selector{policy: policy}
}

// Headroom returns current grown by the configured headroom, rounded down
func (s *Selector) Headroom(current int) int {
	return current * (100 + s.policy.StorageHeadroomPercent) / 100
}

func manual(reason string, notes ...string) Decision {
	return Decision{Status: types.StatusManualInterventionRequired, Reason: reason, Notes: notes}
}

// restartChain is reboot, falling back to stop for compute. A stopped
// instance is left stopped for the next run or an operator to start.
func restartChain(kind types.Kind) *types.RemediationPlan {
	plan := types.NewPlan(types.RemediationStep{Action: types.ActionReboot})
	if kind == types.KindCompute {
		plan.Or(types.NewPlan(types.RemediationStep{Action: types.ActionStop}))
	}
	return plan
}

// SelectAlarm picks the plan for an alarm of category on snap
func (s *Selector) SelectAlarm(snap *types.ResourceSnapshot, baseline types.Baseline, category types.AlarmCategory) Decision {
	profile, ok := resource.For(snap.Kind)
	if !ok {
		return manual(fmt.Sprintf("no remediation rules for kind %q", snap.Kind))
	}

	if !profile.Running(snap.State) {
		if snap.Kind == types.KindCompute && profile.Stopped(snap.State) {
			return Decision{
				Plan:   types.NewPlan(types.RemediationStep{Action: types.ActionStart, Reason: "instance is stopped"}),
				Reason: fmt.Sprintf("%s alarm on stopped %s", category, profile.Noun()),
			}
		}
		return manual(fmt.Sprintf("no action, wrong state: %s %s is %q", profile.Noun(), snap.ID, snap.State))
	}

	switch category {
	case types.CategoryCPU, types.CategoryMemory, types.CategoryIO:
		return s.selectCapacity(snap, baseline, category, profile)
	case types.CategoryStorage:
		if snap.Kind == types.KindDatabase {
			return s.selectStorage(snap, baseline)
		}
	}

	return Decision{
		Plan:   restartChain(snap.Kind),
		Reason: fmt.Sprintf("%s alarm: restart", categoryName(category)),
	}
}

func (s *Selector) selectCapacity(snap *types.ResourceSnapshot, baseline types.Baseline, category types.AlarmCategory, profile resource.Profile) Decision {
	if baseline.SizeClass != "" {
		if c, ok := profile.CompareSize(snap.SizeClass, baseline.SizeClass); ok && c < 0 {
			plan := types.NewPlan(types.RemediationStep{
				Action:    types.ActionResize,
				SizeClass: baseline.SizeClass,
				Reason:    fmt.Sprintf("%s below baseline %s", snap.SizeClass, baseline.SizeClass),
			}).Or(restartChain(snap.Kind))
			return Decision{
				Plan:   plan,
				Reason: fmt.Sprintf("%s alarm: %s undersized, resize to %s", category, snap.SizeClass, baseline.SizeClass),
			}
		}
	}
	return Decision{
		Plan:   restartChain(snap.Kind),
		Reason: fmt.Sprintf("%s alarm: size %s not below baseline, restart", category, snap.SizeClass),
	}
}

func (s *Selector) selectStorage(snap *types.ResourceSnapshot, baseline types.Baseline) Decision {
	current := snap.StorageGB
	switch {
	case baseline.StorageGB <= 0:
		return manual("storage alarm: no storage baseline declared")
	case current <= 0:
		return manual("storage alarm: allocated storage unknown")
	case current < baseline.StorageGB:
		return Decision{
			Plan: types.NewPlan(types.RemediationStep{
				Action:    types.ActionResizeStorage,
				StorageGB: baseline.StorageGB,
				Reason:    fmt.Sprintf("%dGB below baseline %dGB", current, baseline.StorageGB),
			}),
			Reason: fmt.Sprintf("storage alarm: grow %dGB to baseline %dGB", current, baseline.StorageGB),
		}
	case current == baseline.StorageGB:
		target := s.Headroom(current)
		return Decision{
			Plan: types.NewPlan(types.RemediationStep{
				Action:    types.ActionResizeStorage,
				StorageGB: target,
				Reason:    fmt.Sprintf("%d%% headroom over %dGB", s.policy.StorageHeadroomPercent, current),
			}),
			Reason: fmt.Sprintf("storage alarm: grow %dGB to %dGB", current, target),
		}
	default:
		return manual(fmt.Sprintf("storage alarm: allocated %dGB already above baseline %dGB, storage anomalies outside policy", current, baseline.StorageGB))
	}
}

// SelectDrift builds the corrective plan for findings. Steps follow the
// attribute order size, storage, network groups. Infeasible findings become notes.
func (s *Selector) SelectDrift(snap *types.ResourceSnapshot, baseline types.Baseline, findings []types.DriftFinding) Decision {
	profile, ok := resource.For(snap.Kind)
	if !ok {
		return manual(fmt.Sprintf("no remediation rules for kind %q", snap.Kind))
	}

	var steps []types.RemediationStep
	var notes []string

	if f, ok := types.FindingFor(findings, types.AttributeSizeClass); ok {
		resize := types.RemediationStep{
			Action:    types.ActionResize,
			SizeClass: baseline.SizeClass,
			Reason:    f.String(),
		}
		switch {
		case snap.Kind != types.KindCompute:
			steps = append(steps, resize)
		case profile.Running(snap.State):
			steps = append(steps,
				types.RemediationStep{Action: types.ActionStop, WaitForStop: true, Reason: "instance must be stopped to change type"},
				resize,
				types.RemediationStep{Action: types.ActionStart, Reason: "restore running state"},
			)
		case profile.Stopped(snap.State):
			steps = append(steps, resize)
		default:
			notes = append(notes, fmt.Sprintf("%s not fixed: %s is %q", f.String(), profile.Noun(), snap.State))
		}
	}

	if f, ok := types.FindingFor(findings, types.AttributeStorage); ok {
		if f.Feasible {
			steps = append(steps, types.RemediationStep{
				Action:    types.ActionResizeStorage,
				StorageGB: baseline.StorageGB,
				Reason:    f.String(),
			})
		} else {
			notes = append(notes, fmt.Sprintf("%s: storage anomalies outside policy, storage is never shrunk", f.String()))
		}
	}

	if f, ok := types.FindingFor(findings, types.AttributeNetworkGroups); ok {
		steps = append(steps, types.RemediationStep{
			Action:        types.ActionRestoreNetworkGroups,
			NetworkGroups: types.SortedSet(baseline.NetworkGroups),
			Reason:        f.String(),
		})
	}

	if f, ok := types.FindingFor(findings, types.AttributeImage); ok {
		notes = append(notes, fmt.Sprintf("%s drift detected but not automatically fixed. Manual intervention required.", f.Label))
	}

	if len(steps) == 0 {
		if len(notes) == 0 {
			return Decision{Reason: "no drift to remediate"}
		}
		return manual("drift cannot be remediated automatically", notes...)
	}

	plan := types.NewPlan(steps...)
	return Decision{
		Plan:   plan,
		Reason: "drift: " + plan.String(),
		Notes:  notes,
	}
}

func categoryName(c types.AlarmCategory) string {
	if c == "" {
		return string(types.CategoryUnknown)
	}
	return string(c)
}
