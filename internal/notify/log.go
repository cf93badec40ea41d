package notify

import (
	"context"
	"log/slog"
)

// LogSurface writes reminders to the structured log. It always succeeds, so it
// belongs last in a dispatcher's surface list.
type LogSurface struct {
	log *slog.Logger
}

func NewLogSurface(log *slog.Logger) *LogSurface {
	return &LogSurface{log: log}
}

func (s *LogSurface) Name() string { return "log" }

func (s *LogSurface) Show(ctx context.Context, r Reminder) error {
	s.log.InfoContext(ctx, "reminder",
		"message_id", r.MessageID,
		"kind", r.Kind,
		"title", r.Title,
		"body", r.Body,
		"deep_link", r.DeepLinkURL,
		"actions", len(r.Actions),
	)
	return nil
}
