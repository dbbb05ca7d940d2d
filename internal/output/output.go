// Package output renders reconciliation results for the terminal and for scripts.
package output

import (
	"fmt"
	"io"

	awscp "github.com/yairfalse/ilmarinen/internal/controlplane/aws"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// Formatter defines the interface for output formatting
type Formatter interface {
	FormatOutcome(w io.Writer, outcome types.ReconciliationOutcome) error
	FormatCheck(w io.Writer, report *CheckReport) error
	FormatAttempts(w io.Writer, report *AttemptsReport) error
}

// CheckReport is the read-only health view of the managed resource
type CheckReport struct {
	Resource    types.ResourceRef       `json:"resource"`
	Snapshot    *types.ResourceSnapshot `json:"snapshot"`
	Baseline    types.Baseline          `json:"baseline"`
	Findings    []types.DriftFinding    `json:"findings"`
	Alarms      []awscp.AlarmSummary    `json:"alarms"`
	Attempts    int                     `json:"attempts"`
	MaxAttempts int                     `json:"max_attempts"`
	// Deferred is the guard that would stop remediation, if any
	Deferred string `json:"deferred,omitempty"`
	// Plan is what a drift reconciliation would run now
	Plan string `json:"plan,omitempty"`
}

// Healthy reports whether there is nothing to heal
func (r *CheckReport) Healthy() bool {
	if len(r.Findings) > 0 {
		return false
	}
	for _, a := range r.Alarms {
		if a.Actionable {
			return false
		}
	}
	return true
}

// AttemptsReport shows the stored healing budget
type AttemptsReport struct {
	Resource    types.ResourceRef   `json:"resource"`
	Store       string              `json:"store"`
	Record      types.AttemptRecord `json:"record"`
	MaxAttempts int                 `json:"max_attempts"`
	Exhausted   bool                `json:"exhausted"`
}

// NewFormatter creates a formatter based on format type
func NewFormatter(format string, noColor bool) (Formatter, error) {
	switch format {
	case "", "table":
		return NewTableFormatter(noColor), nil
	case "json":
		return &JSONFormatter{}, nil
	case "yaml", "yml":
		return &YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
