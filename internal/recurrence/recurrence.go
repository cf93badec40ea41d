// Package recurrence computes the next occurrence of a repeating message and
// builds the successor record for it.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/wa-scheduler/internal/model"
)

var (
	ErrInvalidRecurrence = errors.New("invalid recurrence")
	ErrInvalidInterval   = errors.New("invalid recurrence interval")
)

// successorSpace namespaces the derived IDs of recurrence successors.
var successorSpace = uuid.MustParse("5b0c7a4e-4a53-4f43-9a3e-2f3b1d6c9e10")

// Next returns the occurrence after date. ok is false for NoRecurrence.
func Next(date time.Time, kind model.Recurrence, interval int) (next time.Time, ok bool, err error) {
	switch kind {
	case model.NoRecurrence, "":
		return time.Time{}, false, nil
	case model.Daily:
		return date.AddDate(0, 0, 1), true, nil
	case model.Weekly:
		return date.AddDate(0, 0, 7), true, nil
	case model.Monthly:
		return addMonthClamped(date), true, nil
	case model.Custom:
		if interval < 1 {
			return time.Time{}, false, fmt.Errorf("%w: %d", ErrInvalidInterval, interval)
		}
		return date.AddDate(0, 0, interval), true, nil
	default:
		return time.Time{}, false, fmt.Errorf("%w: %q", ErrInvalidRecurrence, kind)
	}
}

// addMonthClamped moves date one calendar month forward, clamping the day to
// the length of the target month (Jan 31 -> Feb 28/29).
func addMonthClamped(date time.Time) time.Time {
	y, m, d := date.Date()
	hh, mm, ss := date.Clock()
	loc := date.Location()

	lastDay := time.Date(y, m+2, 0, 0, 0, 0, 0, loc).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(y, m+1, d, hh, mm, ss, date.Nanosecond(), loc)
}

// SuccessorID is stable for a given origin so that a repeated or concurrent
// spawn for the same firing collides instead of duplicating.
func SuccessorID(originID string) string {
	return uuid.NewSHA1(successorSpace, []byte(originID)).String()
}

// Successor builds the next pending occurrence of origin. ok is false when
// origin does not repeat.
func Successor(origin model.Message, now time.Time) (next model.Message, ok bool, err error) {
	at, ok, err := Next(origin.ScheduledAt, origin.Recurrence, origin.RecurrenceInterval)
	if err != nil || !ok {
		return model.Message{}, false, err
	}

	parentID := origin.ID
	next = origin.Clone()
	next.ID = SuccessorID(origin.ID)
	next.ScheduledAt = at
	next.Status = model.Pending
	next.Notified = false
	next.TriggeredNotification = false
	next.SentAt = nil
	next.Spawned = false
	next.ParentID = &parentID
	next.CreatedAt = now
	next.UpdatedAt = now
	next.Version = 0

	return next, true, nil
}
