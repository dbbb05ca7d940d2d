package types

import (
	"fmt"
	"strings"
)

// Action is a corrective operation against a resource
type Action string

const (
	ActionReboot               Action = "reboot"
	ActionStop                 Action = "stop"
	ActionStart                Action = "start"
	ActionResize               Action = "resize"
	ActionResizeStorage        Action = "resize-storage"
	ActionRestoreNetworkGroups Action = "restore-network-groups"
	ActionNoop                 Action = "no-op"
)

// IsMutating returns true for actions that change the resource
func (a Action) IsMutating() bool {
	return a != ActionNoop && a != ""
}

// RemediationStep is one action plus the parameters needed to execute it
type RemediationStep struct {
	Action        Action   `json:"action"`
	SizeClass     string   `json:"size_class,omitempty"`
	StorageGB     int      `json:"storage_gb,omitempty"`
	NetworkGroups []string `json:"network_groups,omitempty"`
	// WaitForStop blocks a stop step until the resource reports stopped
	WaitForStop bool   `json:"wait_for_stop,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// String renders the step for logs and summaries
func (s RemediationStep) String() string {
	switch s.Action {
	case ActionResize:
		return fmt.Sprintf("resize to %s", s.SizeClass)
	case ActionResizeStorage:
		return fmt.Sprintf("resize storage to %dGB", s.StorageGB)
	case ActionRestoreNetworkGroups:
		return fmt.Sprintf("restore network groups [%s]", strings.Join(s.NetworkGroups, ", "))
	default:
		return string(s.Action)
	}
}

// RemediationPlan is an ordered list of steps with an optional plan B.
// The fallback runs only after a step of this plan failed.
type RemediationPlan struct {
	Steps    []RemediationStep `json:"steps"`
	Fallback *RemediationPlan  `json:"fallback,omitempty"`
}

// NewPlan creates a plan from steps
func NewPlan(steps ...RemediationStep) *RemediationPlan {
	return &RemediationPlan{Steps: steps}
}

// Or sets fallback as this plan's plan B and returns the plan
func (p *RemediationPlan) Or(fallback *RemediationPlan) *RemediationPlan {
	p.Fallback = fallback
	return p
}

// IsEmpty returns true if the plan has nothing to execute
func (p *RemediationPlan) IsEmpty() bool {
	return p == nil || len(p.Steps) == 0
}

// Actions lists the primary plan's actions in order
func (p *RemediationPlan) Actions() []Action {
	if p == nil {
		return nil
	}
	actions := make([]Action, 0, len(p.Steps))
	for _, s := range p.Steps {
		actions = append(actions, s.Action)
	}
	return actions
}

// String renders the plan and its fallback chain, e.g. "resize to m5.large || reboot || stop"
func (p *RemediationPlan) String() string {
	if p.IsEmpty() {
		return string(ActionNoop)
	}
	var parts []string
	for cur := p; cur != nil; cur = cur.Fallback {
		steps := make([]string, 0, len(cur.Steps))
		for _, s := range cur.Steps {
			steps = append(steps, s.String())
		}
		parts = append(parts, strings.Join(steps, " -> "))
	}
	return strings.Join(parts, " || ")
}
