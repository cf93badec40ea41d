package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/wa-scheduler/internal/config"
	"github.com/LeventeLantos/wa-scheduler/internal/deeplink"
	"github.com/LeventeLantos/wa-scheduler/internal/model"
	"github.com/LeventeLantos/wa-scheduler/internal/notify"
	"github.com/LeventeLantos/wa-scheduler/internal/prefs"
	"github.com/LeventeLantos/wa-scheduler/internal/repo"
	"github.com/LeventeLantos/wa-scheduler/internal/service"
)

// runtime holds the collaborators shared by every subcommand.
type runtime struct {
	cfg        *config.Config
	clock      clockwork.Clock
	repo       repo.MessageRepository
	prefs      prefs.Store
	links      *deeplink.Builder
	dispatcher *notify.Dispatcher

	closers []func() error
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		links: deeplink.NewBuilder(cfg.Links.CountryCode, map[model.App]string{
			model.WhatsApp: cfg.Links.WhatsAppHost,
			model.Business: cfg.Links.BusinessHost,
		}),
	}

	store, err := repo.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open message store: %w", err)
	}
	rt.repo = store
	rt.closers = append(rt.closers, store.Close)

	rt.prefs = rt.openPrefs(ctx)

	surfaces, err := buildSurfaces(cfg.Notify)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.dispatcher = notify.NewDispatcher(rt.links, cfg.Server.AppBaseURL, surfaces...)

	return rt, nil
}

func (rt *runtime) openPrefs(ctx context.Context) prefs.Store {
	if !rt.cfg.Redis.Enabled {
		slog.Info("preferences kept in memory (REDIS_ADDR not set)")
		return prefs.NewMemoryStore()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     rt.cfg.Redis.Address,
		Password: rt.cfg.Redis.Password,
		DB:       rt.cfg.Redis.DB,
	})
	rt.closers = append(rt.closers, rdb.Close)

	store := prefs.NewRedisStore(rdb)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		slog.Warn("redis unreachable, foreground agent will use the default advance", "addr", rt.cfg.Redis.Address, "err", err)
	}
	return store
}

// buildSurfaces orders surfaces by preference. The log surface always comes
// last so a reminder is at least recorded.
func buildSurfaces(nc config.NotifyConfig) ([]notify.Surface, error) {
	var surfaces []notify.Surface

	if nc.WebhookURL != "" {
		surfaces = append(surfaces, notify.NewWebhookSurface(nc.WebhookURL))
	}
	if nc.TelegramToken != "" {
		tg, err := notify.NewTelegramSurface(nc.TelegramToken, nc.TelegramChatID)
		if err != nil {
			return nil, err
		}
		surfaces = append(surfaces, tg)
	}

	return append(surfaces, notify.NewLogSurface(slog.Default().With("surface", "log"))), nil
}

func (rt *runtime) settings() service.Settings {
	return service.Settings{
		Advance: rt.cfg.Scheduler.Advance,
		Expiry:  rt.cfg.Scheduler.Expiry,
		Policy:  rt.cfg.Scheduler.Policy,
	}
}

func (rt *runtime) agent(c service.Capability) (*service.Agent, error) {
	var store prefs.Store
	if c.ReadsPreferences {
		store = rt.prefs
	}
	return service.NewAgent(c, rt.repo, rt.dispatcher, store, rt.clock, rt.settings())
}

func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	return errors.Join(errs...)
}

type tickSummary service.TickResult

func (s tickSummary) changed() bool {
	return s.Advanced+s.Triggered+s.Completed+s.Spawned+s.Expired > 0
}

func (s tickSummary) attrs() []any {
	return []any{
		"evaluated", s.Evaluated,
		"advanced", s.Advanced,
		"triggered", s.Triggered,
		"completed", s.Completed,
		"spawned", s.Spawned,
		"expired", s.Expired,
	}
}

func tickFunc(a *service.Agent, report func(tickSummary, error)) func(context.Context) {
	return func(ctx context.Context) {
		res, err := a.Tick(ctx)
		report(tickSummary(res), err)
	}
}
