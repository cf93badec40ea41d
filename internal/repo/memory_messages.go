package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/LeventeLantos/wa-scheduler/internal/model"
)

type MemoryMessageRepo struct {
	mu   sync.RWMutex
	msgs map[string]model.Message
}

func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{msgs: make(map[string]model.Message)}
}

func (r *MemoryMessageRepo) Create(ctx context.Context, msg *model.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.msgs[msg.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, msg.ID)
	}
	msg.Version = 1
	r.msgs[msg.ID] = msg.Clone()
	return nil
}

func (r *MemoryMessageRepo) Get(ctx context.Context, id string) (*model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.msgs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := m.Clone()
	return &c, nil
}

func (r *MemoryMessageRepo) ListByStatus(ctx context.Context, status model.Status) ([]model.Message, error) {
	return r.list(ctx, func(m model.Message) bool { return m.Status == status })
}

func (r *MemoryMessageRepo) ListAll(ctx context.Context) ([]model.Message, error) {
	return r.list(ctx, func(model.Message) bool { return true })
}

func (r *MemoryMessageRepo) list(ctx context.Context, keep func(model.Message) bool) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	r.mu.RLock()
	out := make([]model.Message, 0, len(r.msgs))
	for _, m := range r.msgs {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

func (r *MemoryMessageRepo) Update(ctx context.Context, msg *model.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.msgs[msg.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, msg.ID)
	}
	if cur.Version != msg.Version {
		return fmt.Errorf("%w: %s (have v%d, stored v%d)", ErrConflict, msg.ID, msg.Version, cur.Version)
	}

	msg.Version++
	r.msgs[msg.ID] = msg.Clone()
	return nil
}

func (r *MemoryMessageRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.msgs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.msgs, id)
	return nil
}

func (r *MemoryMessageRepo) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
