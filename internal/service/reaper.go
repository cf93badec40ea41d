package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LeventeLantos/wa-scheduler/internal/model"
	"github.com/LeventeLantos/wa-scheduler/internal/repo"
)

// Reaper moves pending messages that are older than the expiry threshold to
// expired. It ignores notification flags and never spawns.
type Reaper struct {
	repo   repo.MessageRepository
	clock  clockwork.Clock
	expiry time.Duration
}

func NewReaper(r repo.MessageRepository, clock clockwork.Clock, expiry time.Duration) (*Reaper, error) {
	if expiry <= 0 {
		return nil, errors.New("expiry must be > 0")
	}
	return &Reaper{repo: r, clock: clock, expiry: expiry}, nil
}

// Sweep expires every overdue pending message and returns how many it moved.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	pending, err := r.repo.ListByStatus(ctx, model.Pending)
	if err != nil {
		return 0, err
	}

	now := r.clock.Now()
	expired := 0
	for _, m := range pending {
		if !r.overdue(m, now) {
			continue
		}
		won, err := r.expire(ctx, m.ID, now)
		if err != nil {
			if errors.Is(err, repo.ErrUnavailable) {
				return expired, err
			}
			slog.Warn("expire failed", "message_id", m.ID, "err", err)
			continue
		}
		if won {
			expired++
		}
	}
	return expired, nil
}

func (r *Reaper) overdue(m model.Message, now time.Time) bool {
	return m.Status == model.Pending && now.Sub(m.ScheduledAt) > r.expiry
}

func (r *Reaper) expire(ctx context.Context, id string, now time.Time) (bool, error) {
	_, won, err := claim(ctx, r.repo, id, func(m *model.Message) error {
		if !r.overdue(*m, now) {
			return errSkip
		}
		m.Status = model.Expired
		m.UpdatedAt = now
		return nil
	})
	return won, err
}
