package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_FillsDefaults(t *testing.T) {
	m := Message{
		Phone:       "0612345678",
		Text:        "hello",
		ScheduledAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, m.Validate())
	assert.Equal(t, WhatsApp, m.App)
	assert.Equal(t, NoRecurrence, m.Recurrence)
	assert.Equal(t, 1, m.RecurrenceInterval)
	assert.Equal(t, Pending, m.Status)
}

func TestValidate_Rejects(t *testing.T) {
	base := func() Message {
		return Message{
			Phone:       "0612345678",
			Text:        "hello",
			ScheduledAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		}
	}

	cases := []struct {
		name string
		mut  func(*Message)
		want error
	}{
		{"missing phone", func(m *Message) { m.Phone = "" }, ErrInvalidPhone},
		{"missing text", func(m *Message) { m.Text = "" }, ErrInvalidText},
		{"missing schedule", func(m *Message) { m.ScheduledAt = time.Time{} }, ErrInvalidSchedule},
		{"unknown app", func(m *Message) { m.App = "signal" }, ErrInvalidApp},
		{"unknown recurrence", func(m *Message) { m.Recurrence = "yearly" }, ErrInvalidRecurrence},
		{"negative interval", func(m *Message) { m.RecurrenceInterval = -2 }, ErrInvalidInterval},
		{"unknown status", func(m *Message) { m.Status = "failed" }, ErrInvalidStatus},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			m := base()
			tc.mut(&m)
			err := m.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestClone_DoesNotAlias(t *testing.T) {
	parent := "p1"
	sentAt := time.Now()
	m := Message{Tags: []string{"a"}, ParentID: &parent, SentAt: &sentAt}

	c := m.Clone()
	c.Tags[0] = "b"
	*c.ParentID = "p2"

	assert.Equal(t, "a", m.Tags[0])
	assert.Equal(t, "p1", *m.ParentID)
}

func TestDisplayName(t *testing.T) {
	m := Message{Phone: "33612345678"}
	assert.Equal(t, "33612345678", m.DisplayName(nil))
	assert.Equal(t, "formatted", m.DisplayName(func(string) string { return "formatted" }))

	m.ContactName = "Alice"
	assert.Equal(t, "Alice", m.DisplayName(func(string) string { return "formatted" }))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, Pending.Terminal())
	assert.True(t, Sent.Terminal())
	assert.True(t, Expired.Terminal())
}

func TestAwaitsSuccessor(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"pending daily", Message{Status: Pending, Recurrence: Daily}, false},
		{"sent once", Message{Status: Sent, Recurrence: NoRecurrence}, false},
		{"sent daily", Message{Status: Sent, Recurrence: Daily}, true},
		{"sent daily spawned", Message{Status: Sent, Recurrence: Daily, Spawned: true}, false},
		{"expired weekly", Message{Status: Expired, Recurrence: Weekly}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.AwaitsSuccessor())
		})
	}
}
