package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/LeventeLantos/wa-scheduler/internal/deeplink"
	"github.com/LeventeLantos/wa-scheduler/internal/model"
	"github.com/LeventeLantos/wa-scheduler/internal/repo"
)

const DefaultUpcomingLimit = 5

var (
	ErrTerminal = errors.New("message is no longer pending")
	// ErrStale means the caller edited an older version than the stored one.
	ErrStale = errors.New("message was modified concurrently")
)

// StatusAll selects every message regardless of status.
const StatusAll = "all"

// MessageService covers the user-initiated operations. It shares the
// conditional-write guard with the agents.
type MessageService struct {
	repo    repo.MessageRepository
	clock   clockwork.Clock
	spawner *Spawner
}

func NewMessageService(r repo.MessageRepository, clock clockwork.Clock) *MessageService {
	return &MessageService{
		repo:    r,
		clock:   clock,
		spawner: NewSpawner(r, clock),
	}
}

// Schedule stores a new pending message. Engine-owned fields in in are ignored.
func (s *MessageService) Schedule(ctx context.Context, in model.Message) (*model.Message, error) {
	now := s.clock.Now()

	m := in.Clone()
	m.ID = uuid.NewString()
	m.Phone = deeplink.CleanPhone(strings.TrimSpace(m.Phone))
	m.Status = model.Pending
	m.Notified = false
	m.TriggeredNotification = false
	m.SentAt = nil
	m.Spawned = false
	m.ParentID = nil
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.MediaFiles == nil {
		m.MediaFiles = []model.MediaFile{}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MessageService) Get(ctx context.Context, id string) (*model.Message, error) {
	return s.repo.Get(ctx, id)
}

// Update replaces the editable fields of id with those of in. When in.Version
// is set it must match the stored version. Editing a pending message resets
// its notification flags so the new schedule is reminded afresh. A sent or
// expired message keeps its content; only tags and media may change.
func (s *MessageService) Update(ctx context.Context, id string, in model.Message) (*model.Message, error) {
	now := s.clock.Now()

	msg, won, err := claim(ctx, s.repo, id, func(m *model.Message) error {
		if in.Version != 0 && in.Version != m.Version {
			return fmt.Errorf("%w: have version %d, stored %d", ErrStale, in.Version, m.Version)
		}

		edit := in.Clone()
		if m.Status.Terminal() {
			if !sameContent(m, edit) {
				return fmt.Errorf("%w: %s is %s", ErrTerminal, m.ID, m.Status)
			}
			setAttachments(m, edit)
			m.UpdatedAt = now
			return nil
		}

		m.Phone = deeplink.CleanPhone(strings.TrimSpace(edit.Phone))
		m.ContactName = edit.ContactName
		m.ContactID = edit.ContactID
		m.Text = edit.Text
		m.ScheduledAt = edit.ScheduledAt
		m.App = edit.App
		m.Recurrence = edit.Recurrence
		m.RecurrenceInterval = edit.RecurrenceInterval
		setAttachments(m, edit)
		m.UpdatedAt = now
		m.Notified = false
		m.TriggeredNotification = false
		return m.Validate()
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, fmt.Errorf("%w: %s", repo.ErrNotFound, id)
	}
	return msg, nil
}

func setAttachments(m *model.Message, edit model.Message) {
	if edit.Tags != nil {
		m.Tags = edit.Tags
	}
	if edit.MediaFiles != nil {
		m.MediaFiles = edit.MediaFiles
	}
}

// sameContent reports whether edit leaves the recipient, body and schedule of
// m as they are. Enum defaults are filled in before comparing.
func sameContent(m *model.Message, edit model.Message) bool {
	_ = edit.Validate()

	return m.Phone == deeplink.CleanPhone(strings.TrimSpace(edit.Phone)) &&
		m.ContactName == edit.ContactName &&
		equalPtr(m.ContactID, edit.ContactID) &&
		m.Text == edit.Text &&
		m.ScheduledAt.Equal(edit.ScheduledAt) &&
		m.App == edit.App &&
		m.Recurrence == edit.Recurrence &&
		m.RecurrenceInterval == edit.RecurrenceInterval
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Delete removes id unconditionally. An agent holding the record fails its
// conditional write and drops it.
func (s *MessageService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// MarkSent records the user's confirmation that the message went out and
// spawns the next occurrence. Confirming an already sent message is a no-op.
// The confirmation stands even when the spawn fails; agents settle the
// missing successor on a later tick.
func (s *MessageService) MarkSent(ctx context.Context, id string) (*model.Message, error) {
	now := s.clock.Now()

	msg, won, err := claim(ctx, s.repo, id, func(m *model.Message) error {
		switch m.Status {
		case model.Sent:
			return errSkip
		case model.Expired:
			return fmt.Errorf("%w: %s is %s", ErrTerminal, m.ID, m.Status)
		}
		sentAt := now
		m.Status = model.Sent
		m.SentAt = &sentAt
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: %s", repo.ErrNotFound, id)
	}
	if !won {
		return msg, nil
	}

	if _, err := s.spawner.Settle(ctx, *msg); err != nil {
		slog.Warn("successor left for a later tick", "message_id", msg.ID, "err", err)
		return msg, nil
	}
	if fresh, err := s.repo.Get(ctx, msg.ID); err == nil {
		msg = fresh
	}
	return msg, nil
}

// ListByStatus accepts a status name or "all".
func (s *MessageService) ListByStatus(ctx context.Context, status string) ([]model.Message, error) {
	if status == "" || status == StatusAll {
		return s.repo.ListAll(ctx)
	}
	st := model.Status(status)
	if !st.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}
	return s.repo.ListByStatus(ctx, st)
}

// Upcoming returns the next pending messages still in the future, soonest
// first.
func (s *MessageService) Upcoming(ctx context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultUpcomingLimit
	}

	pending, err := s.repo.ListByStatus(ctx, model.Pending)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]model.Message, 0, limit)
	for _, m := range pending {
		if m.ScheduledAt.After(now) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
