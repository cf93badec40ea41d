package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/LeventeLantos/wa-scheduler/internal/model"
)

type Dialect string

const (
	Postgres Dialect = "pgx"
	SQLite   Dialect = "sqlite3"
)

const messageColumns = `id, phone, contact_name, contact_id, text, scheduled_at, app,
	recurrence, recurrence_interval, status, notified, triggered_notification,
	sent_at, parent_id, spawned, tags, media_files, created_at, updated_at, version`

type SQLMessageRepo struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database named by dsn and makes sure the schema exists.
// postgres:// and postgresql:// go through pgx; file:, sqlite:/// and :memory:
// use SQLite.
func Open(ctx context.Context, dsn string) (*SQLMessageRepo, error) {
	dialect, driverDSN, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(dialect), driverDSN)
	if err != nil {
		return nil, err
	}
	if dialect == SQLite {
		// Serializes writers; required for :memory: which is per-connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("ping failed: %w, close failed: %v", err, closeErr)
		}
		return nil, fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}

	r := NewSQLMessageRepo(db, dialect)
	if err := r.Migrate(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("migrate failed: %w, close failed: %v", err, closeErr)
		}
		return nil, err
	}
	return r, nil
}

func parseDSN(dsn string) (Dialect, string, error) {
	switch {
	case dsn == "":
		return "", "", errors.New("database dsn is required")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return Postgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite:///"):
		return SQLite, "file:" + strings.TrimPrefix(dsn, "sqlite:///"), nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return SQLite, dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database dsn %q", dsn)
	}
}

func NewSQLMessageRepo(db *sql.DB, dialect Dialect) *SQLMessageRepo {
	return &SQLMessageRepo{db: db, dialect: dialect}
}

func (r *SQLMessageRepo) Close() error {
	return r.db.Close()
}

func (r *SQLMessageRepo) Migrate(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if r.dialect == SQLite {
		ts = "TIMESTAMP"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scheduled_messages (
			id TEXT PRIMARY KEY,
			phone TEXT NOT NULL,
			contact_name TEXT NOT NULL DEFAULT '',
			contact_id TEXT,
			text TEXT NOT NULL,
			scheduled_at ` + ts + ` NOT NULL,
			app TEXT NOT NULL,
			recurrence TEXT NOT NULL,
			recurrence_interval INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL,
			notified BOOLEAN NOT NULL DEFAULT FALSE,
			triggered_notification BOOLEAN NOT NULL DEFAULT FALSE,
			sent_at ` + ts + `,
			parent_id TEXT,
			spawned BOOLEAN NOT NULL DEFAULT FALSE,
			tags TEXT NOT NULL DEFAULT '[]',
			media_files TEXT NOT NULL DEFAULT '[]',
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL,
			version BIGINT NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_messages_status
			ON scheduled_messages (status, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_messages_parent
			ON scheduled_messages (parent_id)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %w", ErrUnavailable, err)
		}
	}
	return nil
}

func (r *SQLMessageRepo) Create(ctx context.Context, msg *model.Message) error {
	tags, media, err := encodeSets(msg)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO NOTHING
	`,
		msg.ID,
		msg.Phone,
		msg.ContactName,
		nullString(msg.ContactID),
		msg.Text,
		msg.ScheduledAt.UTC(),
		string(msg.App),
		string(msg.Recurrence),
		msg.RecurrenceInterval,
		string(msg.Status),
		msg.Notified,
		msg.TriggeredNotification,
		nullTime(msg.SentAt),
		nullString(msg.ParentID),
		msg.Spawned,
		tags,
		media,
		msg.CreatedAt.UTC(),
		msg.UpdatedAt.UTC(),
		int64(1),
	)
	if err != nil {
		return fmt.Errorf("%w: insert %s: %w", ErrUnavailable, msg.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: insert %s: %w", ErrUnavailable, msg.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, msg.ID)
	}

	msg.Version = 1
	return nil
}

func (r *SQLMessageRepo) Get(ctx context.Context, id string) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE id = $1
	`, id)

	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if errors.Is(err, ErrCorrupt) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrUnavailable, id, err)
	}
	return &m, nil
}

func (r *SQLMessageRepo) ListByStatus(ctx context.Context, status model.Status) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE status = $1
		ORDER BY scheduled_at ASC, id ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrUnavailable, status, err)
	}
	return collect(rows)
}

func (r *SQLMessageRepo) ListAll(ctx context.Context) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		ORDER BY scheduled_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrUnavailable, err)
	}
	return collect(rows)
}

func (r *SQLMessageRepo) Update(ctx context.Context, msg *model.Message) error {
	tags, media, err := encodeSets(msg)
	if err != nil {
		return err
	}

	// Placeholders appear in ascending order; SQLite numbers $N parameters by
	// first appearance.
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET phone = $1,
		    contact_name = $2,
		    contact_id = $3,
		    text = $4,
		    scheduled_at = $5,
		    app = $6,
		    recurrence = $7,
		    recurrence_interval = $8,
		    status = $9,
		    notified = $10,
		    triggered_notification = $11,
		    sent_at = $12,
		    parent_id = $13,
		    spawned = $14,
		    tags = $15,
		    media_files = $16,
		    updated_at = $17,
		    version = $18
		WHERE id = $19 AND version = $20
	`,
		msg.Phone,
		msg.ContactName,
		nullString(msg.ContactID),
		msg.Text,
		msg.ScheduledAt.UTC(),
		string(msg.App),
		string(msg.Recurrence),
		msg.RecurrenceInterval,
		string(msg.Status),
		msg.Notified,
		msg.TriggeredNotification,
		nullTime(msg.SentAt),
		nullString(msg.ParentID),
		msg.Spawned,
		tags,
		media,
		msg.UpdatedAt.UTC(),
		msg.Version+1,
		msg.ID,
		msg.Version,
	)
	if err != nil {
		return fmt.Errorf("%w: update %s: %w", ErrUnavailable, msg.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update %s: %w", ErrUnavailable, msg.ID, err)
	}
	if n == 1 {
		msg.Version++
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM scheduled_messages WHERE id = $1`, msg.ID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %s", ErrNotFound, msg.ID)
	case err != nil:
		return fmt.Errorf("%w: update %s: %w", ErrUnavailable, msg.ID, err)
	default:
		return fmt.Errorf("%w: %s (have v%d)", ErrConflict, msg.ID, msg.Version)
	}
}

func (r *SQLMessageRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrUnavailable, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrUnavailable, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (r *SQLMessageRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(s rowScanner) (model.Message, error) {
	var (
		m          model.Message
		contactID  sql.NullString
		parentID   sql.NullString
		sentAt     sql.NullTime
		app        string
		recurrence string
		status     string
		tags       string
		media      string
	)

	if err := s.Scan(
		&m.ID,
		&m.Phone,
		&m.ContactName,
		&contactID,
		&m.Text,
		&m.ScheduledAt,
		&app,
		&recurrence,
		&m.RecurrenceInterval,
		&status,
		&m.Notified,
		&m.TriggeredNotification,
		&sentAt,
		&parentID,
		&m.Spawned,
		&tags,
		&media,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.Version,
	); err != nil {
		return model.Message{}, err
	}

	m.App = model.App(app)
	m.Recurrence = model.Recurrence(recurrence)
	m.Status = model.Status(status)
	m.ScheduledAt = m.ScheduledAt.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()

	if contactID.Valid {
		s := contactID.String
		m.ContactID = &s
	}
	if parentID.Valid {
		s := parentID.String
		m.ParentID = &s
	}
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		m.SentAt = &t
	}

	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return model.Message{}, fmt.Errorf("%w: tags of %s: %w", ErrCorrupt, m.ID, err)
	}
	if err := json.Unmarshal([]byte(media), &m.MediaFiles); err != nil {
		return model.Message{}, fmt.Errorf("%w: media of %s: %w", ErrCorrupt, m.ID, err)
	}
	return m, nil
}

func collect(rows *sql.Rows) ([]model.Message, error) {
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if errors.Is(err, ErrCorrupt) {
			slog.Warn("skipping undecodable message", "err", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrUnavailable, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return out, nil
}

func encodeSets(msg *model.Message) (string, string, error) {
	tags := msg.Tags
	if tags == nil {
		tags = []string{}
	}
	media := msg.MediaFiles
	if media == nil {
		media = []model.MediaFile{}
	}

	t, err := json.Marshal(tags)
	if err != nil {
		return "", "", err
	}
	m, err := json.Marshal(media)
	if err != nil {
		return "", "", err
	}
	return string(t), string(m), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
