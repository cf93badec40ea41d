package model

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	Pending Status = "pending"
	Sent    Status = "sent"
	Expired Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case Pending, Sent, Expired:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == Sent || s == Expired
}

type App string

const (
	WhatsApp App = "whatsapp"
	Business App = "business"
)

func (a App) Valid() bool {
	return a == WhatsApp || a == Business
}

type Recurrence string

const (
	NoRecurrence Recurrence = "none"
	Daily        Recurrence = "daily"
	Weekly       Recurrence = "weekly"
	Monthly      Recurrence = "monthly"
	Custom       Recurrence = "custom"
)

func (r Recurrence) Valid() bool {
	switch r {
	case NoRecurrence, Daily, Weekly, Monthly, Custom:
		return true
	}
	return false
}

var (
	ErrInvalidPhone      = errors.New("phone is required")
	ErrInvalidText       = errors.New("text is required")
	ErrInvalidSchedule   = errors.New("scheduledAt is required")
	ErrInvalidApp        = errors.New("unknown app")
	ErrInvalidRecurrence = errors.New("unknown recurrence")
	ErrInvalidInterval   = errors.New("recurrenceInterval must be >= 1")
	ErrInvalidStatus     = errors.New("unknown status")
)

type MediaFile struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	DataURL string `json:"dataUrl,omitempty"`
}

type Message struct {
	ID          string  `json:"id"`
	Phone       string  `json:"phone"`
	ContactName string  `json:"contactName"`
	ContactID   *string `json:"contactId"`
	Text        string  `json:"text"`

	ScheduledAt        time.Time  `json:"scheduledAt"`
	App                App        `json:"app"`
	Recurrence         Recurrence `json:"recurrence"`
	RecurrenceInterval int        `json:"recurrenceInterval"`

	Status                Status     `json:"status"`
	Notified              bool       `json:"notified"`
	TriggeredNotification bool       `json:"triggeredNotification"`
	SentAt                *time.Time `json:"sentAt"`
	ParentID              *string    `json:"parentId"`
	// Spawned is set once the successor of a completed repeating message has
	// been created, or found not to be due.
	Spawned bool `json:"spawned"`

	Tags       []string    `json:"tags"`
	MediaFiles []MediaFile `json:"mediaFiles"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Version is bumped by the repository on every successful write and is
	// the token checked by conditional updates.
	Version int64 `json:"version"`
}

// Validate fills defaults for optional enums and rejects anything the engine
// could not evaluate.
func (m *Message) Validate() error {
	var errs []error

	if m.Phone == "" {
		errs = append(errs, ErrInvalidPhone)
	}
	if m.Text == "" {
		errs = append(errs, ErrInvalidText)
	}
	if m.ScheduledAt.IsZero() {
		errs = append(errs, ErrInvalidSchedule)
	}

	if m.App == "" {
		m.App = WhatsApp
	}
	if !m.App.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidApp, m.App))
	}

	if m.Recurrence == "" {
		m.Recurrence = NoRecurrence
	}
	if !m.Recurrence.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidRecurrence, m.Recurrence))
	}
	if m.RecurrenceInterval == 0 {
		m.RecurrenceInterval = 1
	}
	if m.RecurrenceInterval < 1 {
		errs = append(errs, ErrInvalidInterval)
	}

	if m.Status == "" {
		m.Status = Pending
	}
	if !m.Status.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidStatus, m.Status))
	}

	return errors.Join(errs...)
}

// AwaitsSuccessor reports whether m completed as a repeating message whose
// next occurrence has not been created yet.
func (m *Message) AwaitsSuccessor() bool {
	return m.Status == Sent && m.Recurrence != "" && m.Recurrence != NoRecurrence && !m.Spawned
}

// DisplayName is what reminders show for the recipient.
func (m *Message) DisplayName(formatPhone func(string) string) string {
	if m.ContactName != "" {
		return m.ContactName
	}
	if formatPhone != nil {
		return formatPhone(m.Phone)
	}
	return m.Phone
}

// Clone returns a deep copy so callers can mutate without aliasing slices or
// pointers held by a repository.
func (m Message) Clone() Message {
	out := m
	if m.ContactID != nil {
		v := *m.ContactID
		out.ContactID = &v
	}
	if m.SentAt != nil {
		v := *m.SentAt
		out.SentAt = &v
	}
	if m.ParentID != nil {
		v := *m.ParentID
		out.ParentID = &v
	}
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.MediaFiles != nil {
		out.MediaFiles = append([]MediaFile(nil), m.MediaFiles...)
	}
	return out
}
