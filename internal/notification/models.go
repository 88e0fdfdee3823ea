// Package notification turns critical audit events into in-app alerts for
// admin and management users and manages their lifecycle.
package notification

import (
	"time"

	"github.com/google/uuid"

	"caretrail/internal/audit"
)

// Notification is one in-app alert derived from a critical action record.
// Notifications are shared across recipients; read and dismissed state is
// global, not per user.
type Notification struct {
	ID               uuid.UUID      `json:"id"`
	SourceRecordID   uuid.UUID      `json:"sourceRecordId"`
	Severity         audit.Severity `json:"severity"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	ActorDisplayName string         `json:"actorDisplayName"`
	ActorRole        audit.Role     `json:"actorRole"`
	TargetSnapshot   string         `json:"targetSnapshot,omitempty"`
	IsRead           bool           `json:"isRead"`
	IsDismissed      bool           `json:"isDismissed"`
	DismissedBy      int64          `json:"dismissedBy,omitempty"`
	DismissedAt      *time.Time     `json:"dismissedAt,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	ExpiresAt        time.Time      `json:"expiresAt"`
}

// Expired reports whether the notification has passed its expiry.
func (n *Notification) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// Active reports whether the notification should still be surfaced.
func (n *Notification) Active(now time.Time) bool {
	return !n.IsDismissed && !n.Expired(now)
}
