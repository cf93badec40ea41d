package repo

import (
	"context"
	"errors"

	"github.com/LeventeLantos/wa-scheduler/internal/model"
)

var (
	ErrNotFound      = errors.New("message not found")
	ErrAlreadyExists = errors.New("message already exists")
	// ErrConflict means the stored version moved since the caller read it.
	ErrConflict = errors.New("message was modified concurrently")
	// ErrCorrupt marks a stored record that cannot be decoded. Listings skip
	// such records.
	ErrCorrupt = errors.New("message record is corrupt")
	// ErrUnavailable wraps transient storage failures; callers retry later.
	ErrUnavailable = errors.New("message store unavailable")
)

// MessageRepository is shared by every agent and by user-initiated writes.
// Update is the only way to modify an existing record: it writes the full
// record only when the stored Version equals msg.Version, then bumps
// msg.Version to the new stored value.
type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	Get(ctx context.Context, id string) (*model.Message, error)
	ListByStatus(ctx context.Context, status model.Status) ([]model.Message, error)
	ListAll(ctx context.Context) ([]model.Message, error)
	Update(ctx context.Context, msg *model.Message) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}
