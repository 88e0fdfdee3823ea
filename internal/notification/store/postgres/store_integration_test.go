//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"caretrail/internal/audit"
	"caretrail/internal/notification"
	"caretrail/internal/notification/store/postgres"
	"caretrail/pkg/sentinel"
	"caretrail/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	base     time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
	s.base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.postgres.Terminate(context.Background())
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "notifications"))
}

func (s *PostgresStoreSuite) insert(mutate func(*notification.Notification)) *notification.Notification {
	n := &notification.Notification{
		ID:               uuid.New(),
		SourceRecordID:   uuid.New(),
		Severity:         audit.SeverityCritical,
		Title:            "User Account Deleted",
		Message:          "Ada Admin deleted user #42 (Jane Roe)",
		ActorDisplayName: "Ada Admin",
		ActorRole:        audit.RoleAdmin,
		TargetSnapshot:   "user #42 (Jane Roe)",
		CreatedAt:        s.base,
		ExpiresAt:        s.base.Add(24 * time.Hour),
	}
	if mutate != nil {
		mutate(n)
	}
	s.Require().NoError(s.store.Insert(context.Background(), n))
	return n
}

func (s *PostgresStoreSuite) TestInsertAndFind() {
	ctx := context.Background()
	inserted := s.insert(nil)

	found, err := s.store.FindByID(ctx, inserted.ID)
	s.Require().NoError(err)
	s.Equal(inserted.ID, found.ID)
	s.Equal(inserted.SourceRecordID, found.SourceRecordID)
	s.Equal(audit.SeverityCritical, found.Severity)
	s.Equal("user #42 (Jane Roe)", found.TargetSnapshot)
	s.False(found.IsRead)
	s.False(found.IsDismissed)
	s.Nil(found.DismissedAt)
	s.True(found.ExpiresAt.Equal(inserted.ExpiresAt))

	_, err = s.store.FindByID(ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListActive() {
	ctx := context.Background()
	now := s.base.Add(time.Hour)

	newer := s.insert(func(n *notification.Notification) { n.CreatedAt = s.base.Add(30 * time.Minute) })
	older := s.insert(nil)
	s.insert(func(n *notification.Notification) { n.IsDismissed = true })
	s.insert(func(n *notification.Notification) { n.ExpiresAt = now.Add(-time.Minute) })

	active, err := s.store.ListActive(ctx, now)
	s.Require().NoError(err)
	s.Require().Len(active, 2)
	s.Equal(newer.ID, active[0].ID)
	s.Equal(older.ID, active[1].ID)
}

func (s *PostgresStoreSuite) TestMarkRead() {
	ctx := context.Background()
	inserted := s.insert(nil)

	s.Require().NoError(s.store.MarkRead(ctx, inserted.ID))

	found, err := s.store.FindByID(ctx, inserted.ID)
	s.Require().NoError(err)
	s.True(found.IsRead)

	s.ErrorIs(s.store.MarkRead(ctx, uuid.New()), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDismiss() {
	ctx := context.Background()
	inserted := s.insert(nil)
	at := s.base.Add(time.Hour)

	s.Require().NoError(s.store.Dismiss(ctx, inserted.ID, 9, at))

	found, err := s.store.FindByID(ctx, inserted.ID)
	s.Require().NoError(err)
	s.True(found.IsDismissed)
	s.EqualValues(9, found.DismissedBy)
	s.Require().NotNil(found.DismissedAt)
	s.True(found.DismissedAt.Equal(at))

	s.ErrorIs(s.store.Dismiss(ctx, uuid.New(), 9, at), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestExpireBefore() {
	ctx := context.Background()
	now := s.base.Add(48 * time.Hour)

	expired := s.insert(nil) // expires base+24h, before now
	fresh := s.insert(func(n *notification.Notification) { n.ExpiresAt = now.Add(time.Hour) })

	removed, err := s.store.ExpireBefore(ctx, now)
	s.Require().NoError(err)
	s.EqualValues(1, removed)

	_, err = s.store.FindByID(ctx, expired.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(ctx, fresh.ID)
	s.NoError(err)
}
