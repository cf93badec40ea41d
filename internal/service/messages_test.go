package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/wa-scheduler/internal/model"
	"github.com/LeventeLantos/wa-scheduler/internal/recurrence"
	"github.com/LeventeLantos/wa-scheduler/internal/repo"
)

func newService(t *testing.T) (*MessageService, repo.MessageRepository, *clockwork.FakeClock) {
	t.Helper()
	r := repo.NewMemoryMessageRepo()
	clock := clockwork.NewFakeClockAt(t0)
	return NewMessageService(r, clock), r, clock
}

func TestMessageService_Schedule(t *testing.T) {
	svc, r, _ := newService(t)
	ctx := context.Background()

	got, err := svc.Schedule(ctx, model.Message{
		ID:                    "client-chosen",
		Phone:                 " +33 (6) 12-34-56-78 ",
		Text:                  "hi",
		ScheduledAt:           t0.Add(time.Hour),
		Status:                model.Sent,
		Notified:              true,
		TriggeredNotification: true,
	})
	require.NoError(t, err)

	assert.NotEqual(t, "client-chosen", got.ID)
	assert.Equal(t, "+33612345678", got.Phone)
	assert.Equal(t, model.Pending, got.Status)
	assert.False(t, got.Notified)
	assert.False(t, got.TriggeredNotification)
	assert.Equal(t, model.WhatsApp, got.App)
	assert.Equal(t, model.NoRecurrence, got.Recurrence)
	assert.Equal(t, 1, got.RecurrenceInterval)
	assert.True(t, got.CreatedAt.Equal(t0))

	stored := mustGet(t, r, got.ID)
	assert.Equal(t, got.Phone, stored.Phone)
}

func TestMessageService_ScheduleRejectsInvalid(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Schedule(context.Background(), model.Message{Recurrence: "hourly"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidPhone))
	assert.True(t, errors.Is(err, model.ErrInvalidText))
	assert.True(t, errors.Is(err, model.ErrInvalidSchedule))
	assert.True(t, errors.Is(err, model.ErrInvalidRecurrence))
}

func TestMessageService_UpdateResetsFlags(t *testing.T) {
	svc, r, _ := newService(t)
	ctx := context.Background()
	seed(t, r, "m1", t0, model.NoRecurrence, 1)

	m := mustGet(t, r, "m1")
	m.Notified = true
	m.TriggeredNotification = true
	require.NoError(t, r.Update(ctx, m))

	edit := m.Clone()
	edit.ScheduledAt = t0.Add(24 * time.Hour)
	edit.Text = "rescheduled"

	got, err := svc.Update(ctx, "m1", edit)
	require.NoError(t, err)
	assert.Equal(t, "rescheduled", got.Text)
	assert.False(t, got.Notified)
	assert.False(t, got.TriggeredNotification)
	assert.Equal(t, model.Pending, got.Status)
}

func TestMessageService_UpdateStaleVersion(t *testing.T) {
	svc, r, _ := newService(t)
	ctx := context.Background()
	seed(t, r, "m1", t0, model.NoRecurrence, 1)

	old := mustGet(t, r, "m1")

	fresh := old.Clone()
	fresh.Notified = true
	require.NoError(t, r.Update(ctx, &fresh))

	old.Text = "from an old form"
	_, err := svc.Update(ctx, "m1", *old)
	assert.True(t, errors.Is(err, ErrStale), "got %v", err)
	assert.Equal(t, "hello", mustGet(t, r, "m1").Text)
}

func TestMessageService_UpdateMissing(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Update(context.Background(), "nope", model.Message{Phone: "1", Text: "x", ScheduledAt: t0})
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestMessageService_MarkSent(t *testing.T) {
	svc, r, clock := newService(t)
	ctx := context.Background()
	seed(t, r, "m1", t0, model.Weekly, 1)

	clock.Advance(2 * time.Minute)
	got, err := svc.MarkSent(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Sent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.True(t, got.SentAt.Equal(t0.Add(2*time.Minute)))

	assert.True(t, got.Spawned)

	succ := mustGet(t, r, recurrence.SuccessorID("m1"))
	assert.True(t, succ.ScheduledAt.Equal(t0.AddDate(0, 0, 7)))

	again, err := svc.MarkSent(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, again.SentAt.Equal(*got.SentAt), "second confirmation is a no-op")

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMessageService_UpdateKeepsSentContent(t *testing.T) {
	svc, r, _ := newService(t)
	ctx := context.Background()
	seed(t, r, "m1", t0, model.NoRecurrence, 1)

	sent, err := svc.MarkSent(ctx, "m1")
	require.NoError(t, err)

	edit := sent.Clone()
	edit.Text = "rewritten"
	_, err = svc.Update(ctx, "m1", edit)
	assert.True(t, errors.Is(err, ErrTerminal), "got %v", err)

	edit = sent.Clone()
	edit.ScheduledAt = t0.Add(time.Hour)
	_, err = svc.Update(ctx, "m1", edit)
	assert.True(t, errors.Is(err, ErrTerminal), "got %v", err)

	got := mustGet(t, r, "m1")
	assert.Equal(t, "hello", got.Text)
	assert.True(t, got.ScheduledAt.Equal(t0))

	edit = got.Clone()
	edit.Tags = []string{"archived"}
	updated, err := svc.Update(ctx, "m1", edit)
	require.NoError(t, err)
	assert.Equal(t, []string{"archived"}, updated.Tags)
	assert.Equal(t, model.Sent, updated.Status)
	assert.Equal(t, "hello", updated.Text)
}

func TestMessageService_MarkSentSurvivesFailedSpawn(t *testing.T) {
	inner := repo.NewMemoryMessageRepo()
	clock := clockwork.NewFakeClockAt(t0)
	seed(t, inner, "m1", t0, model.Daily, 1)

	fr := &flakyRepo{MessageRepository: inner, createErr: errors.New("disk full")}
	svc := NewMessageService(fr, clock)
	ctx := context.Background()

	got, err := svc.MarkSent(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Sent, got.Status)
	assert.False(t, got.Spawned)

	fr.mu.Lock()
	fr.createErr = nil
	fr.mu.Unlock()

	a := newAgent(t, Background, fr, &recordingNotifier{}, clock, defaultSettings(PolicyConfirm))
	res, err := a.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Spawned)
	assert.True(t, mustGet(t, inner, "m1").Spawned)
	mustGet(t, inner, recurrence.SuccessorID("m1"))
}

func TestMessageService_MarkSentExpired(t *testing.T) {
	svc, r, _ := newService(t)
	ctx := context.Background()
	seed(t, r, "m1", t0, model.NoRecurrence, 1)

	m := mustGet(t, r, "m1")
	m.Status = model.Expired
	require.NoError(t, r.Update(ctx, m))

	_, err := svc.MarkSent(ctx, "m1")
	assert.True(t, errors.Is(err, ErrTerminal))

	_, err = svc.MarkSent(ctx, "missing")
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestMessageService_Delete(t *testing.T) {
	svc, r, _ := newService(t)
	ctx := context.Background()
	seed(t, r, "m1", t0, model.NoRecurrence, 1)

	require.NoError(t, svc.Delete(ctx, "m1"))
	_, err := svc.Get(ctx, "m1")
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestMessageService_ListByStatus(t *testing.T) {
	svc, r, _ := newService(t)
	ctx := context.Background()
	seed(t, r, "a", t0, model.NoRecurrence, 1)
	seed(t, r, "b", t0.Add(time.Hour), model.NoRecurrence, 1)

	m := mustGet(t, r, "b")
	m.Status = model.Sent
	require.NoError(t, r.Update(ctx, m))

	all, err := svc.ListByStatus(ctx, StatusAll)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sent, err := svc.ListByStatus(ctx, "sent")
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "b", sent[0].ID)

	_, err = svc.ListByStatus(ctx, "archived")
	assert.True(t, errors.Is(err, model.ErrInvalidStatus))
}

func TestMessageService_Upcoming(t *testing.T) {
	svc, r, _ := newService(t)
	ctx := context.Background()

	seed(t, r, "past", t0.Add(-time.Minute), model.NoRecurrence, 1)
	for i, id := range []string{"u3", "u1", "u2", "u4", "u5", "u6"} {
		offsets := []time.Duration{3, 1, 2, 4, 5, 6}
		seed(t, r, id, t0.Add(offsets[i]*time.Hour), model.NoRecurrence, 1)
	}

	got, err := svc.Upcoming(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, DefaultUpcomingLimit)
	assert.Equal(t, "u1", got[0].ID)
	assert.Equal(t, "u5", got[4].ID)

	got, err = svc.Upcoming(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
