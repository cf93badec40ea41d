package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/wa-scheduler/internal/api"
	"github.com/LeventeLantos/wa-scheduler/internal/scheduler"
	"github.com/LeventeLantos/wa-scheduler/internal/service"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the foreground agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	rt, err := newRuntime(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	agent, err := rt.agent(service.Foreground)
	if err != nil {
		return err
	}

	reaper, err := service.NewReaper(rt.repo, rt.clock, a.cfg.Scheduler.Expiry)
	if err != nil {
		return err
	}
	if n, err := reaper.Sweep(ctx); err != nil {
		slog.Warn("startup expiry sweep failed", "err", err)
	} else if n > 0 {
		slog.Info("startup expiry sweep", "expired", n)
	}

	sched, err := scheduler.New("foreground", a.cfg.Scheduler.ForegroundInterval, rt.clock,
		tickFunc(agent, logTick(service.Foreground.Name)))
	if err != nil {
		return err
	}

	handler := api.NewHandler(sched, service.NewMessageService(rt.repo, rt.clock), rt.prefs, rt.links, api.Options{
		AppBaseURL:            a.cfg.Server.AppBaseURL,
		DefaultAdvanceMinutes: int(a.cfg.Scheduler.Advance / time.Minute),
	})

	srv := &http.Server{
		Addr:              a.cfg.Server.Address,
		Handler:           api.Logging(api.Router(handler)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("wa-scheduler starting",
		"addr", a.cfg.Server.Address,
		"interval", a.cfg.Scheduler.ForegroundInterval,
		"policy", a.cfg.Scheduler.Policy,
		"redis", a.cfg.Redis.Enabled,
	)

	sched.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
