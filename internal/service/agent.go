// Package service holds the scheduling engine: the agent that evaluates
// pending messages each tick, the expiry reaper, recurrence spawning and the
// user-facing message operations. Every write goes through the same
// conditional-update guard so that independent agents and user edits can share
// one store without coordinating.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LeventeLantos/wa-scheduler/internal/model"
	"github.com/LeventeLantos/wa-scheduler/internal/notify"
	"github.com/LeventeLantos/wa-scheduler/internal/prefs"
	"github.com/LeventeLantos/wa-scheduler/internal/repo"
)

// Capability describes what the execution context of an agent can reach.
type Capability struct {
	Name                string
	ReadsPreferences    bool
	ActionableReminders bool
}

var (
	// Foreground runs while the host application is open.
	Foreground = Capability{Name: "foreground", ReadsPreferences: true}
	// Background is woken by the platform and cannot reach preferences, but
	// its reminders carry actions that work without the host application.
	Background = Capability{Name: "background", ActionableReminders: true}
)

type Policy string

const (
	// PolicyConfirm leaves a triggered message pending until the user marks
	// it sent.
	PolicyConfirm Policy = "confirm"
	// PolicyAuto completes the message when its exact-time trigger fires.
	PolicyAuto Policy = "auto"
)

func (p Policy) Valid() bool {
	return p == PolicyConfirm || p == PolicyAuto
}

type Settings struct {
	Advance time.Duration
	Expiry  time.Duration
	Policy  Policy
}

func (s Settings) validate() error {
	var errs []error
	if s.Advance <= 0 {
		errs = append(errs, errors.New("advance must be > 0"))
	}
	if s.Expiry <= 0 {
		errs = append(errs, errors.New("expiry must be > 0"))
	}
	if !s.Policy.Valid() {
		errs = append(errs, fmt.Errorf("unknown completion policy %q", s.Policy))
	}
	return errors.Join(errs...)
}

type Notifier interface {
	Dispatch(ctx context.Context, msg model.Message, kind notify.Kind, actionable bool) error
}

type TickResult struct {
	Evaluated int
	Advanced  int
	Triggered int
	Completed int
	Spawned   int
	Expired   int
}

type Agent struct {
	capability Capability
	repo       repo.MessageRepository
	notifier   Notifier
	prefs      prefs.Store
	clock      clockwork.Clock
	settings   Settings

	spawner *Spawner
	reaper  *Reaper
	log     *slog.Logger
}

// NewAgent wires an agent. store may be nil for capabilities that do not read
// preferences.
func NewAgent(
	capability Capability,
	r repo.MessageRepository,
	n Notifier,
	store prefs.Store,
	clock clockwork.Clock,
	settings Settings,
) (*Agent, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if r == nil || n == nil || clock == nil {
		return nil, errors.New("repository, notifier and clock are required")
	}
	if capability.ReadsPreferences && store == nil {
		return nil, fmt.Errorf("%s agent needs a preference store", capability.Name)
	}

	reaper, err := NewReaper(r, clock, settings.Expiry)
	if err != nil {
		return nil, err
	}

	return &Agent{
		capability: capability,
		repo:       r,
		notifier:   n,
		prefs:      store,
		clock:      clock,
		settings:   settings,
		spawner:    NewSpawner(r, clock),
		reaper:     reaper,
		log:        slog.With("agent", capability.Name),
	}, nil
}

func (a *Agent) Capability() Capability { return a.capability }

// Tick evaluates every pending message once: advance reminder, exact-time
// trigger, then expiry. It then settles successors that an earlier completion
// failed to create. An unavailable store aborts the tick; the next tick starts
// over from persisted state.
func (a *Agent) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult

	pending, err := a.repo.ListByStatus(ctx, model.Pending)
	if err != nil {
		return res, fmt.Errorf("list pending: %w", err)
	}

	advance := a.advance(ctx)

	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Evaluated++

		if err := a.evaluate(ctx, m.ID, advance, &res); err != nil {
			if errors.Is(err, repo.ErrUnavailable) {
				return res, fmt.Errorf("evaluate %s: %w", m.ID, err)
			}
			a.log.Warn("evaluate failed", "message_id", m.ID, "err", err)
		}
	}

	spawned, err := a.spawner.Reconcile(ctx)
	res.Spawned += spawned
	if err != nil {
		return res, fmt.Errorf("reconcile successors: %w", err)
	}
	return res, nil
}

// advance resolves the reminder lead time for this tick. A stored preference
// of 0 means remind at the exact time.
func (a *Agent) advance(ctx context.Context) time.Duration {
	if !a.capability.ReadsPreferences {
		return a.settings.Advance
	}

	minutes, ok, err := a.prefs.AdvanceMinutes(ctx)
	if err != nil {
		a.log.Warn("advance preference unavailable, using default", "err", err)
		return a.settings.Advance
	}
	if !ok {
		return a.settings.Advance
	}
	return time.Duration(minutes) * time.Minute
}

func (a *Agent) evaluate(ctx context.Context, id string, advance time.Duration, res *TickResult) error {
	if err := a.advanceReminder(ctx, id, advance, res); err != nil {
		return err
	}
	if err := a.exactTrigger(ctx, id, res); err != nil {
		return err
	}

	won, err := a.reaper.expire(ctx, id, a.clock.Now())
	if err != nil {
		return err
	}
	if won {
		res.Expired++
		a.log.Info("message expired", "message_id", id)
	}
	return nil
}

func (a *Agent) advanceReminder(ctx context.Context, id string, advance time.Duration, res *TickResult) error {
	now := a.clock.Now()

	msg, won, err := claim(ctx, a.repo, id, func(m *model.Message) error {
		if m.Status != model.Pending || m.Notified || now.Before(m.ScheduledAt.Add(-advance)) {
			return errSkip
		}
		m.Notified = true
		m.UpdatedAt = now
		return nil
	})
	if err != nil || !won {
		return err
	}

	res.Advanced++
	a.emit(ctx, *msg, notify.Advance)
	return nil
}

func (a *Agent) exactTrigger(ctx context.Context, id string, res *TickResult) error {
	now := a.clock.Now()
	auto := a.settings.Policy == PolicyAuto

	msg, won, err := claim(ctx, a.repo, id, func(m *model.Message) error {
		if m.Status != model.Pending || m.TriggeredNotification || now.Before(m.ScheduledAt) {
			return errSkip
		}
		m.TriggeredNotification = true
		m.UpdatedAt = now
		if auto {
			sentAt := now
			m.Status = model.Sent
			m.SentAt = &sentAt
		}
		return nil
	})
	if err != nil || !won {
		return err
	}

	res.Triggered++
	a.emit(ctx, *msg, notify.Exact)

	if !auto {
		return nil
	}
	res.Completed++

	created, err := a.spawner.Settle(ctx, *msg)
	if err != nil {
		return err
	}
	if created {
		res.Spawned++
	}
	return nil
}

// emit never fails the tick: the flag is already set, so a denied reminder is
// simply missed.
func (a *Agent) emit(ctx context.Context, msg model.Message, kind notify.Kind) {
	err := a.notifier.Dispatch(ctx, msg, kind, a.capability.ActionableReminders)
	if err != nil {
		a.log.Warn("reminder not delivered", "message_id", msg.ID, "kind", kind, "err", err)
		return
	}
	a.log.Info("reminder emitted", "message_id", msg.ID, "kind", kind)
}
