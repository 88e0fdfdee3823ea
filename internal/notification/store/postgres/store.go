// Package postgres persists notifications in a single notifications table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"caretrail/internal/audit"
	"caretrail/internal/notification"
	"caretrail/pkg/sentinel"
)

// Store implements notification.Store on database/sql.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL notification store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
	CREATE TABLE IF NOT EXISTS notifications (
		id                 UUID PRIMARY KEY,
		source_record_id   UUID NOT NULL,
		severity           TEXT NOT NULL,
		title              TEXT NOT NULL,
		message            TEXT NOT NULL,
		actor_display_name TEXT NOT NULL,
		actor_role         TEXT NOT NULL,
		target_snapshot    TEXT NOT NULL DEFAULT '',
		is_read            BOOLEAN NOT NULL DEFAULT FALSE,
		is_dismissed       BOOLEAN NOT NULL DEFAULT FALSE,
		dismissed_by       BIGINT,
		dismissed_at       TIMESTAMPTZ,
		created_at         TIMESTAMPTZ NOT NULL,
		expires_at         TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_active ON notifications (created_at DESC) WHERE NOT is_dismissed;
	CREATE INDEX IF NOT EXISTS idx_notifications_expires_at ON notifications (expires_at);
`

// EnsureSchema creates the notifications table and its indices.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure notifications schema: %w", err)
	}
	return nil
}

const columns = `
	id, source_record_id, severity, title, message,
	actor_display_name, actor_role, target_snapshot,
	is_read, is_dismissed, dismissed_by, dismissed_at,
	created_at, expires_at
`

func (s *Store) Insert(ctx context.Context, n *notification.Notification) error {
	query := `
		INSERT INTO notifications (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	var dismissedBy *int64
	if n.DismissedBy != 0 {
		dismissedBy = &n.DismissedBy
	}
	_, err := s.db.ExecContext(ctx, query,
		n.ID,
		n.SourceRecordID,
		string(n.Severity),
		n.Title,
		n.Message,
		n.ActorDisplayName,
		string(n.ActorRole),
		n.TargetSnapshot,
		n.IsRead,
		n.IsDismissed,
		dismissedBy,
		n.DismissedAt,
		n.CreatedAt,
		n.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (notification.Notification, error) {
	query := `SELECT ` + columns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return notification.Notification{}, sentinel.ErrNotFound
	}
	if err != nil {
		return notification.Notification{}, fmt.Errorf("find notification: %w", err)
	}
	return n, nil
}

func (s *Store) ListActive(ctx context.Context, now time.Time) ([]notification.Notification, error) {
	query := `
		SELECT ` + columns + `
		FROM notifications
		WHERE NOT is_dismissed AND expires_at > $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("query active notifications: %w", err)
	}
	defer rows.Close()

	var active []notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		active = append(active, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return active, nil
}

func (s *Store) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
}

func (s *Store) Dismiss(ctx context.Context, id uuid.UUID, by int64, at time.Time) error {
	query := `
		UPDATE notifications
		SET is_dismissed = TRUE, dismissed_by = $2, dismissed_at = $3
		WHERE id = $1
	`
	return s.update(ctx, query, id, by, at)
}

func (s *Store) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	expired, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	return expired, nil
}

func (s *Store) update(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (notification.Notification, error) {
	var (
		n           notification.Notification
		severity    string
		role        string
		dismissedBy sql.NullInt64
	)
	err := row.Scan(
		&n.ID,
		&n.SourceRecordID,
		&severity,
		&n.Title,
		&n.Message,
		&n.ActorDisplayName,
		&role,
		&n.TargetSnapshot,
		&n.IsRead,
		&n.IsDismissed,
		&dismissedBy,
		&n.DismissedAt,
		&n.CreatedAt,
		&n.ExpiresAt,
	)
	if err != nil {
		return notification.Notification{}, err
	}
	n.Severity = audit.Severity(severity)
	n.ActorRole = audit.Role(role)
	if dismissedBy.Valid {
		n.DismissedBy = dismissedBy.Int64
	}
	return n, nil
}
