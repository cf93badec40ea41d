package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LeventeLantos/wa-scheduler/internal/config"
	"github.com/LeventeLantos/wa-scheduler/internal/logging"
)

type app struct {
	cfg       *config.Config
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "wa-scheduler",
		Short:         "Schedule messages and remind you to send them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAll()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logCloser = logging.Setup(logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logCloser != nil {
				_ = a.logCloser.Close()
			}
		},
	}

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newWakeCmd(a))
	root.AddCommand(newBackgroundCmd(a))

	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func logTick(name string) func(res tickSummary, err error) {
	return func(res tickSummary, err error) {
		if err != nil {
			slog.Warn("tick skipped", "agent", name, "err", err)
			return
		}
		if res.changed() {
			slog.Info("tick", append([]any{"agent", name}, res.attrs()...)...)
		}
	}
}
