package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence port for notifications. Lookup misses return
// sentinel.ErrNotFound.
type Store interface {
	Insert(ctx context.Context, n *Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (Notification, error)

	// ListActive returns undismissed, unexpired notifications, newest first.
	ListActive(ctx context.Context, now time.Time) ([]Notification, error)

	MarkRead(ctx context.Context, id uuid.UUID) error

	// Dismiss records who dismissed the notification and when.
	Dismiss(ctx context.Context, id uuid.UUID, by int64, at time.Time) error

	// ExpireBefore deletes notifications whose expiry has passed and
	// reports how many were removed.
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
}
