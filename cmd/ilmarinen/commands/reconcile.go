package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

func newReconcileCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation of the managed resource",
		Long: `Run one reconciliation and print its outcome.

The trigger is an EventBridge event. Pass one with --event (a file, or - for
stdin), synthesise an alarm with --alarm, or run a scheduled drift check,
which is the default.

The command exits 2 when the run ends in ActionFailed, ResourceUnavailable,
UnknownIntent or BudgetExhausted.`,
		Example: `  # Drift check against the configured baseline
  ilmarinen reconcile --scheduled

  # Replay an alarm event delivered by EventBridge
  ilmarinen reconcile --event alarm.json

  # Pretend the CPU alarm fired, without touching the resource
  ilmarinen reconcile --alarm web-HighCPU --dry-run`,
		Args: cobra.NoArgs,
		RunE: c.runReconcile,
	}

	cmd.Flags().String("event", "", "EventBridge event file, - for stdin")
	cmd.Flags().String("alarm", "", "alarm name to build an alarm trigger for")
	cmd.Flags().String("state", "ALARM", "alarm state used with --alarm")
	cmd.Flags().Bool("scheduled", false, "run a scheduled drift check")
	cmd.MarkFlagsMutuallyExclusive("event", "alarm", "scheduled")

	return cmd
}

func (c *cli) trigger(cmd *cobra.Command) (types.Trigger, error) {
	now := time.Now()
	if path, _ := cmd.Flags().GetString("event"); path != "" {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		return types.Trigger(data), nil
	}
	if alarm, _ := cmd.Flags().GetString("alarm"); alarm != "" {
		state, _ := cmd.Flags().GetString("state")
		return types.AlarmTrigger(alarm, state, now), nil
	}
	return types.ScheduledTrigger(now), nil
}

func (c *cli) runReconcile(cmd *cobra.Command, args []string) error {
	trigger, err := c.trigger(cmd)
	if err != nil {
		return err
	}

	a, err := c.newApp(cmd)
	if err != nil {
		return err
	}
	f, err := formatter(a.Config)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	outcome := a.Reconciler.Reconcile(ctx, trigger)
	if err := a.Flush(ctx); err != nil {
		warn(a.Logger, "failed to publish metrics", err)
	}

	if err := f.FormatOutcome(cmd.OutOrStdout(), outcome); err != nil {
		return err
	}
	if outcome.Status.IsFailure() {
		return &outcomeError{status: outcome.Status}
	}
	return nil
}
