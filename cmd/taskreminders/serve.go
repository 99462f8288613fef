package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/nhle/task-reminders/internal/api"
	"github.com/nhle/task-reminders/internal/reconcile"
)

func serveCmd() *cobra.Command {
	var (
		addr    string
		noSweep bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic sweep",
		Long: `Run the HTTP API and the periodic reconciliation sweep.

Examples:
  taskreminders serve
  taskreminders serve --addr :9090
  taskreminders serve --no-sweep`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			if addr == "" {
				addr = e.cfg.Server.Addr
			}

			scheduler := reconcile.NewScheduler(e.sweeper, reconcile.SchedulerConfig{
				Interval:   e.cfg.Sweep.Interval(),
				RunOnStart: e.cfg.Sweep.RunOnStart,
			}, e.logger.With("component", "scheduler"))
			if !noSweep {
				scheduler.Start(ctx)
				defer scheduler.Stop()
			}

			gin.SetMode(gin.ReleaseMode)
			deps := api.Deps{
				Inbox:  e.inbox,
				Events: e.manager,
				Sweeps: scheduler,
			}
			if e.todos != nil {
				deps.Todos = e.todos
			}
			if e.intake != nil {
				deps.Events = e.intake
			}
			return api.NewServer(deps, e.logger.With("component", "api")).Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config server.addr)")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run the periodic sweep")
	return cmd
}
