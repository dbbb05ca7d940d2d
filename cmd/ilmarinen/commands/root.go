package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yairfalse/ilmarinen/internal/app"
	"github.com/yairfalse/ilmarinen/internal/controlplane"
	healerrors "github.com/yairfalse/ilmarinen/internal/errors"
	"github.com/yairfalse/ilmarinen/internal/logger"
	"github.com/yairfalse/ilmarinen/internal/output"
	"github.com/yairfalse/ilmarinen/pkg/config"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// exitOutcome is the exit code of a run that ended in a failure status
const exitOutcome = 2

// outcomeError reports a reconciliation that finished with a failure status
type outcomeError struct {
	status types.Status
}

func (e *outcomeError) Error() string {
	return "reconciliation finished with status " + e.status.String()
}

// driftError reports unhealthy resources found by check --exit-code
type driftError struct{}

func (driftError) Error() string { return "resource needs healing" }

// cli holds state shared by the commands of one invocation
type cli struct {
	factory *app.AppFactory
	cfgFile string
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	cmd := NewRootCommand(app.NewAppFactory())
	err := cmd.Execute()
	if err == nil {
		return 0
	}

	var oe *outcomeError
	var de driftError
	switch {
	case errors.As(err, &oe):
		return exitOutcome
	case errors.As(err, &de):
		return 1
	}
	healerrors.DisplayError(err)
	return healerrors.GetExitCode(err)
}

// NewRootCommand builds the command tree around factory
func NewRootCommand(factory *app.AppFactory) *cobra.Command {
	c := &cli{factory: factory}

	root := &cobra.Command{
		Use:   "ilmarinen",
		Short: "Self-healing reconciliation for EC2 instances and RDS databases",
		Long: `ilmarinen keeps one EC2 instance or RDS DB instance healthy.

It reacts to CloudWatch alarm state changes and to scheduled drift checks,
compares the resource with its declared baseline and runs a bounded number
of remediation attempts: reboot, stop/start, resize, storage growth and
security group restoration.

  ilmarinen check                    # Show drift and alarms, change nothing
  ilmarinen reconcile --scheduled    # Run one drift reconciliation
  ilmarinen reconcile --event ev.json
  ilmarinen serve                    # Accept events over HTTP`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", os.Getenv("ILMARINEN_CONFIG"), "config file (default is $HOME/.ilmarinen/ilmarinen.yaml)")
	flags.Bool("dry-run", false, "log remediation steps instead of running them")
	flags.StringP("output", "o", "", "output format (table, json, yaml)")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("region", "", "AWS region")
	flags.String("profile", "", "AWS shared config profile")

	root.AddCommand(
		newVersionCommand(),
		newReconcileCommand(c),
		newCheckCommand(c),
		newAttemptsCommand(c),
		newServeCommand(c),
		newAuthCommand(c),
	)
	return root
}

// flagBindings maps persistent flags onto config keys
var flagBindings = map[string]string{
	"dry-run":   "policy.dry_run",
	"output":    "output.format",
	"no-color":  "output.no_color",
	"log-level": "logging.level",
	"region":    "aws.region",
	"profile":   "aws.profile",
}

// loadConfig reads configuration with command line flags taking precedence
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()
	if c.cfgFile != "" {
		v.SetConfigFile(c.cfgFile)
	}
	for flag, key := range flagBindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, err
		}
	}

	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, healerrors.ConfigError("configuration", err.Error())
	}
	return cfg, nil
}

// newApp loads configuration and wires the healer
func (c *cli) newApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		return nil, healerrors.ConfigError("logging", err.Error())
	}
	return c.factory.Create(commandContext(cmd), cfg, log)
}

func formatter(cfg *config.Config) (output.Formatter, error) {
	return output.NewFormatter(cfg.Output.Format, cfg.Output.NoColor)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func warn(log logger.Logger, msg string, err error) {
	log.WithField("error", fmt.Sprint(err)).Warn(msg)
}

// fetchError turns a missing resource into guided output with exit code 66
func fetchError(ref types.ResourceRef, err error) error {
	if !errors.Is(err, controlplane.ErrNotFound) {
		return err
	}
	service := healerrors.ServiceEC2
	if ref.Kind == types.KindDatabase {
		service = healerrors.ServiceRDS
	}
	return healerrors.ResourceNotFoundError(service, ref.ID)
}
