package notification_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caretrail/internal/audit"
	"caretrail/internal/notification"
	"caretrail/internal/notification/store/memory"
	"caretrail/pkg/requestcontext"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func criticalRecord(actionType string) audit.ActionRecord {
	return audit.ActionRecord{
		ID:               uuid.New(),
		ActorID:          1,
		ActorRole:        audit.RoleAdmin,
		ActorDisplayName: "Ada Admin",
		ActionType:       actionType,
		Description:      "did something notable",
		TargetType:       audit.TargetUser,
		TargetID:         42,
		TargetDisplayName: "Jane Roe",
		Timestamp:        time.Now(),
	}
}

func activeNotifications(t *testing.T, store *memory.Store) []notification.Notification {
	t.Helper()
	active, err := store.ListActive(context.Background(), time.Now())
	require.NoError(t, err)
	return active
}

func TestFactory_DeletedUserProducesCriticalNotification(t *testing.T) {
	store := memory.New()
	factory := notification.NewFactory(store, 24*time.Hour, discardLogger(), nil)

	record := criticalRecord(audit.ActionUserDeleted)
	factory.NotifyCritical(context.Background(), record, audit.Classify(record.ActionType))

	active := activeNotifications(t, store)
	require.Len(t, active, 1)

	n := active[0]
	assert.Equal(t, record.ID, n.SourceRecordID)
	assert.Equal(t, audit.SeverityCritical, n.Severity)
	assert.Equal(t, "User Account Deleted", n.Title)
	assert.Contains(t, n.Message, "user #42 (Jane Roe)")
	assert.Equal(t, "Ada Admin", n.ActorDisplayName)
	assert.Equal(t, audit.RoleAdmin, n.ActorRole)
	assert.False(t, n.IsRead)
	assert.False(t, n.IsDismissed)
}

func TestFactory_ExpiryIsCreationPlusTTL(t *testing.T) {
	store := memory.New()
	factory := notification.NewFactory(store, 24*time.Hour, discardLogger(), nil)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	record := criticalRecord(audit.ActionPatientDeleted)
	factory.NotifyCritical(ctx, record, audit.Classify(record.ActionType))

	active, err := store.ListActive(ctx, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, now, active[0].CreatedAt)
	assert.Equal(t, now.Add(24*time.Hour), active[0].ExpiresAt)
}

func TestFactory_TitlesPerActionType(t *testing.T) {
	tests := []struct {
		action string
		title  string
	}{
		{audit.ActionUserDeleted, "User Account Deleted"},
		{audit.ActionPatientRemoved, "Patient Record Removed"},
		{audit.ActionPatientDeleted, "Patient Record Deleted"},
		{audit.ActionUserCreated, "User Account Created"},
		{audit.ActionUserAdded, "User Account Created"},
		{audit.ActionFamilyCreated, "Family Record Created"},
		{audit.ActionPatientCreated, "Patient Registered"},
		{audit.ActionLoginFailed, "Failed Login Attempt"},
		{audit.ActionMultipleFailedLogins, "Repeated Failed Logins"},
		{audit.ActionBackupRestored, "Backup Restored"},
	}
	for _, tt := range tests {
		store := memory.New()
		factory := notification.NewFactory(store, 24*time.Hour, discardLogger(), nil)

		record := criticalRecord(tt.action)
		factory.NotifyCritical(context.Background(), record, audit.Classify(tt.action))

		active := activeNotifications(t, store)
		require.Len(t, active, 1, "action %s", tt.action)
		assert.Equal(t, tt.title, active[0].Title, "action %s", tt.action)
	}
}

func TestFactory_UnmappedCriticalFallsBackToDescription(t *testing.T) {
	store := memory.New()
	factory := notification.NewFactory(store, 24*time.Hour, discardLogger(), nil)

	record := criticalRecord("future_critical_action")
	severity := audit.SeverityHigh
	factory.CreateNotification(context.Background(), record, &severity)

	active := activeNotifications(t, store)
	require.Len(t, active, 1)
	assert.Equal(t, "Audit Event", active[0].Title)
	assert.Equal(t, record.Description, active[0].Message)
}

func TestFactory_SeverityOverrideWins(t *testing.T) {
	store := memory.New()
	factory := notification.NewFactory(store, 24*time.Hour, discardLogger(), nil)

	record := criticalRecord(audit.ActionUserCreated) // normally high
	severity := audit.SeverityMedium
	factory.CreateNotification(context.Background(), record, &severity)

	active := activeNotifications(t, store)
	require.Len(t, active, 1)
	assert.Equal(t, audit.SeverityMedium, active[0].Severity)
}

func TestFactory_RepeatedFailedLoginsInterpolatesMetadata(t *testing.T) {
	store := memory.New()
	factory := notification.NewFactory(store, 24*time.Hour, discardLogger(), nil)

	record := criticalRecord(audit.ActionMultipleFailedLogins)
	record.SourceIP = "198.51.100.7"
	record.Metadata = audit.LoginFailure{Username: "jroe", Attempts: 5}
	factory.NotifyCritical(context.Background(), record, audit.Classify(record.ActionType))

	active := activeNotifications(t, store)
	require.Len(t, active, 1)
	assert.Contains(t, active[0].Message, "5 failed login attempts")
	assert.Contains(t, active[0].Message, `"jroe"`)
	assert.Contains(t, active[0].Message, "198.51.100.7")
}

func TestFactory_StoreFailureIsSwallowed(t *testing.T) {
	factory := notification.NewFactory(failingStore{}, 24*time.Hour, discardLogger(), nil)

	record := criticalRecord(audit.ActionUserDeleted)
	assert.NotPanics(t, func() {
		factory.NotifyCritical(context.Background(), record, audit.Classify(record.ActionType))
	})
}

func TestFactory_IgnoresNonCriticalClassification(t *testing.T) {
	store := memory.New()
	factory := notification.NewFactory(store, 24*time.Hour, discardLogger(), nil)

	record := criticalRecord(audit.ActionLogout)
	factory.NotifyCritical(context.Background(), record, audit.Classify(record.ActionType))

	assert.Empty(t, activeNotifications(t, store))
}

type failingStore struct{}

func (failingStore) Insert(context.Context, *notification.Notification) error {
	return assert.AnError
}

func (failingStore) FindByID(context.Context, uuid.UUID) (notification.Notification, error) {
	return notification.Notification{}, assert.AnError
}

func (failingStore) ListActive(context.Context, time.Time) ([]notification.Notification, error) {
	return nil, assert.AnError
}

func (failingStore) MarkRead(context.Context, uuid.UUID) error { return assert.AnError }

func (failingStore) Dismiss(context.Context, uuid.UUID, int64, time.Time) error {
	return assert.AnError
}

func (failingStore) ExpireBefore(context.Context, time.Time) (int64, error) {
	return 0, assert.AnError
}
