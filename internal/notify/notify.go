// Package notify builds reminder payloads and emits them through whichever
// surfaces the running agent can reach.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LeventeLantos/wa-scheduler/internal/deeplink"
	"github.com/LeventeLantos/wa-scheduler/internal/model"
)

// ErrDispatchDenied means no surface accepted the reminder (permission
// withheld, surface not configured or unreachable).
var ErrDispatchDenied = errors.New("reminder dispatch denied")

type Kind string

const (
	Advance Kind = "advance"
	Exact   Kind = "exact"
)

const (
	ActionOpen    = "open"
	ActionDismiss = "dismiss"
)

type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
}

type Reminder struct {
	MessageID   string    `json:"messageId"`
	Phone       string    `json:"phone"`
	Text        string    `json:"text"`
	App         model.App `json:"app"`
	DeepLinkURL string    `json:"deepLinkUrl"`

	Kind  Kind   `json:"kind"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`

	// ClickURL focuses the host application on the message's edit context.
	ClickURL string   `json:"clickUrl"`
	Actions  []Action `json:"actions,omitempty"`
}

type Surface interface {
	Name() string
	Show(ctx context.Context, r Reminder) error
}

type Dispatcher struct {
	links      *deeplink.Builder
	appBaseURL string
	surfaces   []Surface
}

// NewDispatcher tries surfaces in order; the first one that accepts the
// reminder wins.
func NewDispatcher(links *deeplink.Builder, appBaseURL string, surfaces ...Surface) *Dispatcher {
	return &Dispatcher{
		links:      links,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		surfaces:   surfaces,
	}
}

// Build assembles the payload for msg. Actionable reminders carry the fully
// formed deep link on the open action so it can fire without the host app.
func (d *Dispatcher) Build(msg model.Message, kind Kind, actionable bool) Reminder {
	name := msg.DisplayName(deeplink.FormatPhone)

	r := Reminder{
		MessageID:   msg.ID,
		Phone:       msg.Phone,
		Text:        msg.Text,
		App:         msg.App,
		DeepLinkURL: d.links.Build(msg.Phone, msg.Text, msg.App),
		Kind:        kind,
		Title:       "Message reminder",
		Body:        fmt.Sprintf("Your message to %s is ready to be sent", name),
		Tag:         "wa-msg-" + msg.ID,
		ClickURL:    d.ClickURL(msg.ID),
	}
	if kind == Exact {
		r.Title = "Time to send your message"
		r.Tag += "-now"
	}

	if actionable {
		r.Actions = []Action{
			{Action: ActionOpen, Title: "Send now", URL: r.DeepLinkURL},
			{Action: ActionDismiss, Title: "Close"},
		}
	}
	return r
}

func (d *Dispatcher) ClickURL(messageID string) string {
	return EditURL(d.appBaseURL, messageID)
}

// EditURL routes the host application to the edit view of a message.
func EditURL(appBaseURL, messageID string) string {
	return strings.TrimRight(appBaseURL, "/") + "/#/edit/" + messageID
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg model.Message, kind Kind, actionable bool) error {
	if len(d.surfaces) == 0 {
		return fmt.Errorf("%w: no surface configured", ErrDispatchDenied)
	}

	r := d.Build(msg, kind, actionable)

	var errs []error
	for _, s := range d.surfaces {
		err := s.Show(ctx, r)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return fmt.Errorf("%w: %w", ErrDispatchDenied, errors.Join(errs...))
}
