package commands

import (
	"github.com/spf13/cobra"
	"github.com/yairfalse/ilmarinen/internal/output"
)

func newAttemptsCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "attempts",
		Short: "Show the stored healing attempt budget",
		Long: `Show how many healing attempts have been recorded for the managed
resource, when it was last healed and whether the budget is exhausted.
There is no reset: clear the HealingAttempts tag or the table item to
re-arm an exhausted resource.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd)
			if err != nil {
				return err
			}
			f, err := formatter(a.Config)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)

			snap, err := a.Fetcher.Fetch(ctx, a.Config.Ref())
			if err != nil {
				return fetchError(a.Config.Ref(), err)
			}
			rec, err := a.Governor.CheckBudget(ctx, snap)
			if err != nil {
				return err
			}

			return f.FormatAttempts(cmd.OutOrStdout(), &output.AttemptsReport{
				Resource:    snap.Ref(),
				Store:       a.AttemptStore,
				Record:      rec,
				MaxAttempts: a.Governor.MaxAttempts(),
				Exhausted:   a.Governor.Exhausted(rec),
			})
		},
	}
}
