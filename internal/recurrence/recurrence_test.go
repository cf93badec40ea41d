package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/wa-scheduler/internal/model"
)

func TestNext(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		date     time.Time
		kind     model.Recurrence
		interval int
		want     time.Time
	}{
		{"daily", base, model.Daily, 0, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)},
		{"weekly", base, model.Weekly, 0, time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)},
		{"monthly", base, model.Monthly, 0, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)},
		{"custom 3 days", base, model.Custom, 3, time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC)},
		{"monthly clamps in leap year", time.Date(2024, 1, 31, 9, 30, 0, 0, time.UTC), model.Monthly, 0, time.Date(2024, 2, 29, 9, 30, 0, 0, time.UTC)},
		{"monthly clamps in common year", time.Date(2023, 1, 31, 9, 30, 0, 0, time.UTC), model.Monthly, 0, time.Date(2023, 2, 28, 9, 30, 0, 0, time.UTC)},
		{"monthly december rolls year", time.Date(2023, 12, 31, 8, 0, 0, 0, time.UTC), model.Monthly, 0, time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC)},
		{"monthly to 30-day month", time.Date(2024, 3, 31, 8, 0, 0, 0, time.UTC), model.Monthly, 0, time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC)},
		{"daily across month end", time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC), model.Daily, 0, time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok, err := Next(tc.date, tc.kind, tc.interval)
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, got.Equal(tc.want), "want %v, got %v", tc.want, got)
		})
	}
}

func TestNext_NoneHasNoOccurrence(t *testing.T) {
	_, ok, err := Next(time.Now(), model.NoRecurrence, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNext_Errors(t *testing.T) {
	_, _, err := Next(time.Now(), "yearly", 1)
	assert.True(t, errors.Is(err, ErrInvalidRecurrence), "got %v", err)

	_, _, err = Next(time.Now(), model.Custom, 0)
	assert.True(t, errors.Is(err, ErrInvalidInterval), "got %v", err)
}

func TestNext_PreservesLocalWallClock(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// DST starts on 2024-03-31 in Paris; the reminder stays at 09:00 local.
	date := time.Date(2024, 3, 30, 9, 0, 0, 0, paris)
	got, ok, err := Next(date, model.Daily, 0)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, 31, got.Day())
}

func TestSuccessor(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 5, 0, time.UTC)
	sentAt := now
	origin := model.Message{
		ID:                    "origin-1",
		Phone:                 "33612345678",
		Text:                  "hi",
		ScheduledAt:           time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Recurrence:            model.Custom,
		RecurrenceInterval:    3,
		Status:                model.Sent,
		Notified:              true,
		TriggeredNotification: true,
		SentAt:                &sentAt,
		Spawned:               true,
		Tags:                  []string{"family"},
		Version:               7,
	}

	next, ok, err := Successor(origin, now)
	require.NoError(t, err)
	require.True(t, ok)

	assert.NotEqual(t, origin.ID, next.ID)
	assert.Equal(t, SuccessorID(origin.ID), next.ID)
	assert.True(t, next.ScheduledAt.Equal(time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, model.Pending, next.Status)
	assert.False(t, next.Notified)
	assert.False(t, next.TriggeredNotification)
	assert.Nil(t, next.SentAt)
	assert.False(t, next.Spawned)
	require.NotNil(t, next.ParentID)
	assert.Equal(t, origin.ID, *next.ParentID)
	assert.Equal(t, []string{"family"}, next.Tags)
	assert.Zero(t, next.Version)

	again, _, err := Successor(origin, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, next.ID, again.ID, "successor id must be stable per origin")
}

func TestSuccessor_NoRecurrence(t *testing.T) {
	_, ok, err := Successor(model.Message{ID: "x", Recurrence: model.NoRecurrence}, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}
