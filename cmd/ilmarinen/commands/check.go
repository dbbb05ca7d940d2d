package commands

import (
	"github.com/spf13/cobra"
	awscp "github.com/yairfalse/ilmarinen/internal/controlplane/aws"
	"github.com/yairfalse/ilmarinen/internal/output"
)

func newCheckCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Show drift, alarms and the healing budget without changing anything",
		Long: `Fetch the managed resource and report its drift against the baseline,
the state of the CloudWatch alarms that watch it, its healing attempt count
and the plan a drift reconciliation would run. Nothing is modified and no
attempt is recorded.`,
		Example: `  ilmarinen check
  ilmarinen check -o json
  ilmarinen check --exit-code && echo healthy`,
		Args: cobra.NoArgs,
		RunE: c.runCheck,
	}
	cmd.Flags().Bool("exit-code", false, "exit 1 when drift is found or an alarm is firing")
	cmd.Flags().Bool("no-alarms", false, "skip listing CloudWatch alarms")
	return cmd
}

func (c *cli) runCheck(cmd *cobra.Command, args []string) error {
	a, err := c.newApp(cmd)
	if err != nil {
		return err
	}
	f, err := formatter(a.Config)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	ref := a.Config.Ref()
	baseline := a.Config.BaselineSpec()

	snap, err := a.Fetcher.Fetch(ctx, ref)
	if err != nil {
		return fetchError(ref, err)
	}

	report := &output.CheckReport{
		Resource:    ref,
		Snapshot:    snap,
		Baseline:    baseline,
		Findings:    a.Detector.DetectDrift(snap, baseline),
		MaxAttempts: a.Governor.MaxAttempts(),
	}

	if rec, err := a.Governor.CheckBudget(ctx, snap); err != nil {
		warn(a.Logger, "failed to read healing attempts", err)
	} else {
		report.Attempts = rec.Attempts
	}

	if skip, _ := cmd.Flags().GetBool("no-alarms"); !skip && a.Clients.CloudWatch != nil {
		alarms, err := awscp.AlarmsForResource(ctx, a.Clients.CloudWatch, ref)
		if err != nil {
			warn(a.Logger, "failed to list alarms", err)
		}
		report.Alarms = alarms
	}

	if deferred, reason := a.Guard.Transitional(snap); deferred {
		report.Deferred = reason
	} else if suppressed, reason := a.Guard.Maintenance(snap); suppressed && len(report.Findings) > 0 {
		report.Deferred = reason
	}
	if len(report.Findings) > 0 {
		if d := a.Selector.SelectDrift(snap, baseline, report.Findings); d.HasPlan() {
			report.Plan = d.Plan.String()
		}
	}

	if err := f.FormatCheck(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if exitCode, _ := cmd.Flags().GetBool("exit-code"); exitCode && !report.Healthy() {
		return driftError{}
	}
	return nil
}
