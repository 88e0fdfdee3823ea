package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caretrail/pkg/domerrors"
	"caretrail/pkg/requestcontext"
)

func seedRecord(store *fakeStore, timestamp time.Time) {
	_ = store.Insert(context.Background(), &ActionRecord{
		ID:               uuid.New(),
		ActorID:          1,
		ActorRole:        RoleAdmin,
		ActorDisplayName: "Ada Admin",
		ActionType:       ActionLogin,
		Description:      "Signed in",
		Timestamp:        timestamp,
	})
}

func TestRetention_RejectsOutOfRangeDays(t *testing.T) {
	store := &fakeStore{}
	manager := NewRetentionManager(store, nil, discardLogger(), nil)

	for _, days := range []int{0, 1, 29, 366, 400, -5} {
		_, err := manager.Purge(context.Background(), days)
		require.Error(t, err, "daysToKeep=%d", days)
		assert.True(t, domerrors.Is(err, domerrors.CodeBadRequest), "daysToKeep=%d must be a validation error", days)

		var de *domerrors.Error
		require.ErrorAs(t, err, &de)
		assert.Contains(t, de.Fields, "daysToKeep")
	}
}

func TestRetention_AcceptsBoundaryDays(t *testing.T) {
	store := &fakeStore{}
	manager := NewRetentionManager(store, nil, discardLogger(), nil)

	for _, days := range []int{30, 365} {
		_, err := manager.Purge(context.Background(), days)
		assert.NoError(t, err, "daysToKeep=%d", days)
	}
}

func TestRetention_DeletesExactlyOlderThanCutoff(t *testing.T) {
	store := &fakeStore{}
	manager := NewRetentionManager(store, nil, discardLogger(), nil)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -30)

	seedRecord(store, cutoff.Add(-48*time.Hour)) // old, deleted
	seedRecord(store, cutoff.Add(-time.Second))  // just past, deleted
	seedRecord(store, cutoff)                    // exactly at cutoff, kept
	seedRecord(store, cutoff.Add(time.Hour))     // recent, kept
	seedRecord(store, now)                       // recent, kept

	ctx := requestcontext.WithTime(context.Background(), now)
	deleted, err := manager.Purge(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Len(t, store.all(), 3)
}

func TestRetention_PurgeIsSelfAuditedAfterCutoff(t *testing.T) {
	store := &fakeStore{}
	writer := NewWriter(store, discardLogger())
	manager := NewRetentionManager(store, writer, discardLogger(), nil)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -90)
	seedRecord(store, cutoff.Add(-time.Hour))

	ctx := requestcontext.WithTime(actorCtx(1, RoleAdmin, "Ada Admin"), now)
	deleted, err := manager.Purge(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records := store.all()
	require.Len(t, records, 1, "only the purge audit record remains")
	purgeRecord := records[0]
	assert.Equal(t, ActionLogsPurged, purgeRecord.ActionType)
	assert.True(t, purgeRecord.Timestamp.After(cutoff), "purge record must postdate the cutoff so it cannot self-delete")
	assert.Equal(t, PurgeSummary{DaysKept: 90, Deleted: 1}, purgeRecord.Metadata)
	assert.Equal(t, TargetAudit, purgeRecord.TargetType)
}
