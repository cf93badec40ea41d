package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/LeventeLantos/wa-scheduler/internal/scheduler"
	"github.com/LeventeLantos/wa-scheduler/internal/service"
)

// newWakeCmd runs a single background tick, for cron or a systemd timer acting
// as the platform wake.
func newWakeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "wake",
		Short: "Run one background tick and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt, err := newRuntime(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := wakeOnce(ctx, rt)
			logTick(service.Background.Name)(tickSummary(res), err)
			return err
		},
	}
}

func wakeOnce(ctx context.Context, rt *runtime) (service.TickResult, error) {
	agent, err := rt.agent(service.Background)
	if err != nil {
		return service.TickResult{}, err
	}
	return agent.Tick(ctx)
}

func newBackgroundCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "background",
		Short: "Run the background agent on its own interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runBackground(ctx, a)
		},
	}
}

func runBackground(ctx context.Context, a *app) error {
	rt, err := newRuntime(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	agent, err := rt.agent(service.Background)
	if err != nil {
		return err
	}

	sched, err := scheduler.New("background", a.cfg.Scheduler.BackgroundInterval, rt.clock,
		tickFunc(agent, logTick(service.Background.Name)))
	if err != nil {
		return err
	}

	slog.Info("background agent starting", "interval", a.cfg.Scheduler.BackgroundInterval)
	sched.Run(ctx)
	return nil
}
