package commands

import (
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yairfalse/ilmarinen/internal/server"
)

func newServeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept trigger events over HTTP",
		Long: `Run an HTTP server for the managed resource.

  POST /events   run one reconciliation for the posted EventBridge event
  GET  /healthz  liveness and the last outcome
  GET  /metrics  Prometheus metrics, when metrics.prometheus is enabled

Reconciliations are serialised. With --drift-interval a scheduled drift
check also runs on a timer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd)
			if err != nil {
				return err
			}

			cfg := server.Config{
				Listen:        a.Config.Server.Listen,
				DriftInterval: a.Config.Server.DriftInterval,
			}
			if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
				cfg.Listen = listen
			}
			if cmd.Flags().Changed("drift-interval") {
				cfg.DriftInterval, _ = cmd.Flags().GetDuration("drift-interval")
			}

			var metricsHandler http.Handler
			if a.Prometheus != nil {
				metricsHandler = a.Prometheus.Handler()
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.New(cfg, a.Reconciler, server.Options{
				Metrics: metricsHandler,
				Flush:   a.Flush,
				Logger:  a.Logger,
			}).Run(ctx)
		},
	}
	cmd.Flags().String("listen", "", "listen address (default from server.listen)")
	cmd.Flags().Duration("drift-interval", 0, "period of scheduled drift checks, 0 disables them")
	return cmd
}
