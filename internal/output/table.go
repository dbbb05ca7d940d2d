package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// TableFormatter renders human readable tables
type TableFormatter struct {
	noColor    bool
	timeFormat string
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(noColor bool) *TableFormatter {
	return &TableFormatter{noColor: noColor, timeFormat: "2006-01-02 15:04:05"}
}

func (t *TableFormatter) colorize(text string, attrs ...color.Attribute) string {
	if t.noColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func statusColor(s types.Status) color.Attribute {
	switch {
	case s == types.StatusHealed || s == types.StatusNoDriftDetected:
		return color.FgGreen
	case s.IsFailure():
		return color.FgRed
	default:
		return color.FgYellow
	}
}

// FormatOutcome formats a reconciliation outcome
func (t *TableFormatter) FormatOutcome(w io.Writer, o types.ReconciliationOutcome) error {
	fmt.Fprintf(w, "%s %s", t.colorize("Reconciliation", color.FgCyan, color.Bold),
		t.colorize(o.Status.String(), statusColor(o.Status), color.Bold))
	if o.DryRun {
		fmt.Fprint(w, t.colorize(" (dry run, nothing changed)", color.FgYellow))
	}
	fmt.Fprint(w, "\n\n")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", o.RunID)
	fmt.Fprintf(tw, "Resource:\t%s/%s\n", o.Kind, o.ResourceID)
	if o.Intent != "" {
		intent := string(o.Intent)
		if o.Category != "" {
			intent += " (" + string(o.Category) + ")"
		}
		fmt.Fprintf(tw, "Intent:\t%s\n", intent)
	}
	fmt.Fprintf(tw, "Attempts:\t%d\n", o.Attempts)
	if !o.StartedAt.IsZero() {
		fmt.Fprintf(tw, "Started:\t%s\n", o.StartedAt.Format(t.timeFormat))
	}
	fmt.Fprintf(tw, "Duration:\t%s\n", o.Duration.Round(time.Millisecond))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(o.Findings) > 0 {
		fmt.Fprintln(w)
		if err := t.findingsTable(w, o.Findings); err != nil {
			return err
		}
	}

	if len(o.Actions) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "ACTION\tSTEP\tFALLBACK\tRESULT\n")
		for _, a := range o.Actions {
			result := t.colorize("ok", color.FgGreen)
			if !a.Success {
				result = t.colorize("failed: "+a.Error, color.FgRed)
			}
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", a.Action, a.Step, a.Fallback, result)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if o.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", o.Summary)
	}
	return nil
}

func (t *TableFormatter) findingsTable(w io.Writer, findings []types.DriftFinding) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ATTRIBUTE\tCURRENT\tBASELINE\tAUTO-FIX\n")
	for _, f := range findings {
		label := f.Label
		if label == "" {
			label = f.Attribute.String()
		}
		fix := "yes"
		if !f.Feasible {
			fix = t.colorize("no", color.FgYellow)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", label, dash(f.Observed), dash(f.Baseline), fix)
	}
	return tw.Flush()
}

// FormatCheck formats the health view of the resource
func (t *TableFormatter) FormatCheck(w io.Writer, r *CheckReport) error {
	fmt.Fprintf(w, "%s\n", t.colorize("Resource Check", color.FgCyan, color.Bold))
	fmt.Fprintf(w, "%s\n\n", t.colorize(strings.Repeat("=", 14), color.FgCyan))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Resource:\t%s\n", r.Resource)
	if s := r.Snapshot; s != nil {
		fmt.Fprintf(tw, "State:\t%s\n", s.State)
		fmt.Fprintf(tw, "Size:\t%s\n", dash(s.SizeClass))
		fmt.Fprintf(tw, "Image:\t%s\n", dash(s.Image))
		fmt.Fprintf(tw, "Storage:\t%d GiB\n", s.StorageGB)
		fmt.Fprintf(tw, "Network groups:\t%s\n", dash(strings.Join(s.NetworkGroups, ", ")))
	}
	fmt.Fprintf(tw, "Healing attempts:\t%d/%d\n", r.Attempts, r.MaxAttempts)
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	if len(r.Findings) == 0 {
		fmt.Fprintln(w, t.colorize("No configuration drift detected", color.FgGreen))
	} else if err := t.findingsTable(w, r.Findings); err != nil {
		return err
	}

	if len(r.Alarms) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "ALARM\tMETRIC\tUPDATED\tSTATE\n")
		for _, a := range r.Alarms {
			state := a.State
			if a.Actionable {
				state = t.colorize(state, color.FgRed)
			}
			updated := "-"
			if !a.UpdatedAt.IsZero() {
				updated = a.UpdatedAt.Format(t.timeFormat)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Name, a.Metric, updated, state)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if r.Deferred != "" {
		fmt.Fprintf(w, "\n%s %s\n", t.colorize("Deferred:", color.FgYellow), r.Deferred)
	}
	if r.Plan != "" {
		fmt.Fprintf(w, "\nWould run: %s\n", r.Plan)
	}
	return nil
}

// FormatAttempts formats the stored healing budget
func (t *TableFormatter) FormatAttempts(w io.Writer, r *AttemptsReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Resource:\t%s\n", r.Resource)
	fmt.Fprintf(tw, "Store:\t%s\n", r.Store)
	fmt.Fprintf(tw, "Attempts:\t%d/%d\n", r.Record.Attempts, r.MaxAttempts)
	last := "never"
	if !r.Record.LastHealed.IsZero() {
		last = r.Record.LastHealed.Format(t.timeFormat)
	}
	fmt.Fprintf(tw, "Last healed:\t%s\n", last)
	if err := tw.Flush(); err != nil {
		return err
	}
	if r.Exhausted {
		fmt.Fprintln(w, t.colorize("Healing budget exhausted", color.FgRed, color.Bold))
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
