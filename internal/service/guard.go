package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/LeventeLantos/wa-scheduler/internal/model"
	"github.com/LeventeLantos/wa-scheduler/internal/repo"
)

const maxClaimAttempts = 5

// errSkip lets a mutate func decline the transition without failing.
var errSkip = errors.New("skip")

// claim re-reads id, lets mutate apply a transition to the fresh copy and
// writes it back conditionally on the version that was read. won is true only
// for the caller whose write landed; that caller alone may perform the side
// effect. A conflict re-reads and re-evaluates. A record that disappeared is
// reported as not won with a nil error.
func claim(
	ctx context.Context,
	r repo.MessageRepository,
	id string,
	mutate func(m *model.Message) error,
) (msg *model.Message, won bool, err error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		m, err := r.Get(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}

		if err := mutate(m); err != nil {
			if errors.Is(err, errSkip) {
				return m, false, nil
			}
			return m, false, err
		}

		err = r.Update(ctx, m)
		switch {
		case err == nil:
			return m, true, nil
		case errors.Is(err, repo.ErrConflict):
			continue
		case errors.Is(err, repo.ErrNotFound):
			return nil, false, nil
		default:
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("%w: %s still contended after %d attempts", repo.ErrConflict, id, maxClaimAttempts)
}
