package types

import (
	"net/http"
	"time"
)

// Status is the closed set of reconciliation results
type Status string

const (
	StatusHealed                     Status = "Healed"
	StatusNoDriftDetected            Status = "NoDriftDetected"
	StatusDeferredTransitional       Status = "Deferred-Transitional"
	StatusDeferredMaintenance        Status = "Deferred-Maintenance"
	StatusBudgetExhausted            Status = "BudgetExhausted"
	StatusManualInterventionRequired Status = "ManualInterventionRequired"
	StatusActionFailed               Status = "ActionFailed"
	StatusResourceUnavailable        Status = "ResourceUnavailable"
	StatusUnknownIntent              Status = "UnknownIntent"
)

// AllStatuses lists every status in a stable order
var AllStatuses = []Status{
	StatusHealed,
	StatusNoDriftDetected,
	StatusDeferredTransitional,
	StatusDeferredMaintenance,
	StatusBudgetExhausted,
	StatusManualInterventionRequired,
	StatusActionFailed,
	StatusResourceUnavailable,
	StatusUnknownIntent,
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsDeferred returns true for the guard outcomes
func (s Status) IsDeferred() bool {
	return s == StatusDeferredTransitional || s == StatusDeferredMaintenance
}

// IsFailure returns true for outcomes an operator should look at
func (s Status) IsFailure() bool {
	switch s {
	case StatusActionFailed, StatusResourceUnavailable, StatusUnknownIntent, StatusBudgetExhausted:
		return true
	default:
		return false
	}
}

// HTTPStatus maps the status onto the codes the Lambda handlers returned
func (s Status) HTTPStatus() int {
	switch s {
	case StatusBudgetExhausted:
		return http.StatusTooManyRequests
	case StatusUnknownIntent:
		return http.StatusBadRequest
	case StatusActionFailed, StatusResourceUnavailable:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// ActionRecord is one attempted remediation step
type ActionRecord struct {
	Action   Action `json:"action" yaml:"action"`
	Step     string `json:"step" yaml:"step"`
	Success  bool   `json:"success" yaml:"success"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
	Fallback bool   `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// ReconciliationOutcome is the terminal result of one run
type ReconciliationOutcome struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	ResourceID string         `json:"resource_id" yaml:"resource_id"`
	Kind       Kind           `json:"kind" yaml:"kind"`
	Intent     IntentType     `json:"intent,omitempty" yaml:"intent,omitempty"`
	Category   AlarmCategory  `json:"category,omitempty" yaml:"category,omitempty"`
	Status     Status         `json:"status" yaml:"status"`
	Summary    string         `json:"summary" yaml:"summary"`
	Attempts   int            `json:"attempts" yaml:"attempts"`
	Actions    []ActionRecord `json:"actions" yaml:"actions"`
	Findings   []DriftFinding `json:"findings,omitempty" yaml:"findings,omitempty"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	Duration   time.Duration  `json:"duration" yaml:"duration"`
	DryRun     bool           `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// MutatingActions returns the attempted actions that change the resource
func (o *ReconciliationOutcome) MutatingActions() []ActionRecord {
	var out []ActionRecord
	for _, a := range o.Actions {
		if a.Action.IsMutating() {
			out = append(out, a)
		}
	}
	return out
}
