package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/LeventeLantos/wa-scheduler/internal/model"
	"github.com/LeventeLantos/wa-scheduler/internal/recurrence"
	"github.com/LeventeLantos/wa-scheduler/internal/repo"
)

// Spawner creates the next occurrence of a completed repeating message.
type Spawner struct {
	repo  repo.MessageRepository
	clock clockwork.Clock

	newBackOff func() backoff.BackOff
}

func NewSpawner(r repo.MessageRepository, clock clockwork.Clock) *Spawner {
	return &Spawner{
		repo:       r,
		clock:      clock,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return b
}

// Spawn creates the successor of origin. created is false when origin does not
// repeat, its recurrence is invalid, or the successor already exists (a
// repeated spawn for the same firing). Only unavailable-store errors are
// retried.
func (s *Spawner) Spawn(ctx context.Context, origin model.Message) (created bool, err error) {
	next, ok, err := recurrence.Successor(origin, s.clock.Now())
	if err != nil {
		slog.Warn("recurrence spawn skipped", "message_id", origin.ID, "err", err)
		return false, nil
	}
	if !ok {
		return false, nil
	}

	op := func() error {
		candidate := next.Clone()
		err := s.repo.Create(ctx, &candidate)
		switch {
		case err == nil:
			created = true
			return nil
		case errors.Is(err, repo.ErrAlreadyExists):
			return nil
		case errors.Is(err, repo.ErrUnavailable):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	if err := backoff.Retry(op, backoff.WithContext(s.newBackOff(), ctx)); err != nil {
		return false, err
	}

	if created {
		slog.Info("recurrence spawned", "message_id", origin.ID, "successor_id", next.ID, "scheduled_at", next.ScheduledAt)
	}
	return created, nil
}

// Settle spawns the successor of a completed message and then marks origin as
// spawned. On failure origin stays unmarked, so Reconcile picks it up again.
func (s *Spawner) Settle(ctx context.Context, origin model.Message) (created bool, err error) {
	created, err = s.Spawn(ctx, origin)
	if err != nil {
		return false, fmt.Errorf("spawn successor of %s: %w", origin.ID, err)
	}

	now := s.clock.Now()
	_, _, err = claim(ctx, s.repo, origin.ID, func(m *model.Message) error {
		if !m.AwaitsSuccessor() {
			return errSkip
		}
		m.Spawned = true
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return created, fmt.Errorf("mark %s spawned: %w", origin.ID, err)
	}
	return created, nil
}

// Reconcile settles every completed repeating message whose successor was
// never recorded, e.g. because the store failed right after completion.
func (s *Spawner) Reconcile(ctx context.Context) (spawned int, err error) {
	sent, err := s.repo.ListByStatus(ctx, model.Sent)
	if err != nil {
		return 0, fmt.Errorf("list sent: %w", err)
	}

	for _, m := range sent {
		if !m.AwaitsSuccessor() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return spawned, err
		}

		created, err := s.Settle(ctx, m)
		if err != nil {
			if errors.Is(err, repo.ErrUnavailable) {
				return spawned, err
			}
			slog.Warn("successor not settled", "message_id", m.ID, "err", err)
			continue
		}
		if created {
			spawned++
		}
	}
	return spawned, nil
}
