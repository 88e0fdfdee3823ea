//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"caretrail/internal/audit"
	"caretrail/internal/audit/store/postgres"
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
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "action_records"))
}

func (s *PostgresStoreSuite) newRecord(mutate func(*audit.ActionRecord)) *audit.ActionRecord {
	record := &audit.ActionRecord{
		ID:               uuid.New(),
		ActorID:          1,
		ActorRole:        audit.RoleAdmin,
		ActorDisplayName: "Ada Admin",
		ActionType:       audit.ActionLogin,
		Description:      "Signed in",
		Timestamp:        s.base,
	}
	if mutate != nil {
		mutate(record)
	}
	return record
}

func (s *PostgresStoreSuite) insert(mutate func(*audit.ActionRecord)) *audit.ActionRecord {
	record := s.newRecord(mutate)
	s.Require().NoError(s.store.Insert(context.Background(), record))
	return record
}

func (s *PostgresStoreSuite) TestInsertAndFind() {
	ctx := context.Background()

	inserted := s.insert(func(r *audit.ActionRecord) {
		r.ActionType = audit.ActionUserDeleted
		r.TargetType = audit.TargetUser
		r.TargetID = 42
		r.TargetDisplayName = "Jane Roe"
		r.Metadata = audit.UserDeletion{DeletedUserID: 42, DeletedUserName: "Jane Roe"}
		r.SourceIP = "203.0.113.9"
		r.SessionID = "sess-1"
		r.RequestID = "req-1"
		r.ErrorMessage = ""
	})

	found, err := s.store.FindByID(ctx, inserted.ID)
	s.Require().NoError(err)
	s.Equal(inserted.ID, found.ID)
	s.Equal(audit.RoleAdmin, found.ActorRole)
	s.Equal(audit.TargetUser, found.TargetType)
	s.Equal(audit.UserDeletion{DeletedUserID: 42, DeletedUserName: "Jane Roe"}, found.Metadata)
	s.True(found.Timestamp.Equal(inserted.Timestamp))

	_, err = s.store.FindByID(ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestNilMetadataRoundTrips() {
	ctx := context.Background()
	inserted := s.insert(nil)

	found, err := s.store.FindByID(ctx, inserted.ID)
	s.Require().NoError(err)
	s.Nil(found.Metadata)
}

func (s *PostgresStoreSuite) TestListFiltering() {
	ctx := context.Background()

	s.insert(func(r *audit.ActionRecord) { r.Timestamp = s.base.Add(-2 * time.Hour) })
	s.insert(func(r *audit.ActionRecord) {
		r.ActorID = 7
		r.ActorRole = audit.RoleDoctor
		r.ActorDisplayName = "Greg House"
		r.ActionType = audit.ActionPatientCheckedIn
		r.Description = "Checked in patient"
		r.Timestamp = s.base.Add(-time.Hour)
	})
	s.insert(func(r *audit.ActionRecord) {
		r.Description = "Updated the ward roster"
	})

	s.Run("newest first with total", func() {
		rows, total, err := s.store.List(ctx, audit.Query{})
		s.Require().NoError(err)
		s.EqualValues(3, total)
		s.Require().Len(rows, 3)
		for i := 1; i < len(rows); i++ {
			s.False(rows[i].Timestamp.After(rows[i-1].Timestamp))
		}
	})

	s.Run("role filter", func() {
		rows, total, err := s.store.List(ctx, audit.Query{
			Filters: audit.Filters{ActorRole: audit.RoleDoctor},
		})
		s.Require().NoError(err)
		s.EqualValues(1, total)
		s.Equal(audit.ActionPatientCheckedIn, rows[0].ActionType)
	})

	s.Run("case-insensitive search", func() {
		rows, total, err := s.store.List(ctx, audit.Query{
			Filters: audit.Filters{Search: "WARD"},
		})
		s.Require().NoError(err)
		s.EqualValues(1, total)
		s.Contains(rows[0].Description, "ward")
	})

	s.Run("inclusive time range", func() {
		from := s.base.Add(-time.Hour)
		to := s.base
		rows, total, err := s.store.List(ctx, audit.Query{
			Filters: audit.Filters{From: &from, To: &to},
		})
		s.Require().NoError(err)
		s.EqualValues(3, total)
		s.Len(rows, 3)
	})

	s.Run("limit and offset leave total alone", func() {
		rows, total, err := s.store.List(ctx, audit.Query{Offset: 1, Limit: 1})
		s.Require().NoError(err)
		s.EqualValues(3, total)
		s.Len(rows, 1)
	})
}

func (s *PostgresStoreSuite) TestLatestSinceAndUpdateAggregate() {
	ctx := context.Background()

	viewed := s.insert(func(r *audit.ActionRecord) {
		r.ActionType = audit.ActionViewedLogs
		r.Description = "Viewed audit logs"
		r.Metadata = audit.ViewTrail{ViewCount: 1}
	})

	found, err := s.store.LatestSince(ctx, viewed.ActorID, audit.ActionViewedLogs, s.base.Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(viewed.ID, found.ID)

	_, err = s.store.LatestSince(ctx, viewed.ActorID, audit.ActionViewedLogs, s.base.Add(time.Minute))
	s.ErrorIs(err, sentinel.ErrNotFound)

	refreshed := s.base.Add(10 * time.Minute)
	err = s.store.UpdateAggregate(ctx, viewed.ID, refreshed, "Viewed audit logs 2 times", audit.ViewTrail{ViewCount: 2})
	s.Require().NoError(err)

	updated, err := s.store.FindByID(ctx, viewed.ID)
	s.Require().NoError(err)
	s.True(updated.Timestamp.Equal(refreshed))
	s.Equal(audit.ViewTrail{ViewCount: 2}, updated.Metadata)

	err = s.store.UpdateAggregate(ctx, uuid.New(), refreshed, "x", nil)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListByActorAction() {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		offset := time.Duration(i) * time.Minute
		s.insert(func(r *audit.ActionRecord) { r.Timestamp = s.base.Add(offset) })
	}
	s.insert(func(r *audit.ActionRecord) { r.ActorID = 2 })

	rows, err := s.store.ListByActorAction(ctx, 1, audit.ActionLogin, 2)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.True(rows[0].Timestamp.After(rows[1].Timestamp))
	for _, r := range rows {
		s.EqualValues(1, r.ActorID)
	}
}

func (s *PostgresStoreSuite) TestDistinctValues() {
	ctx := context.Background()

	s.insert(nil)
	s.insert(nil)
	s.insert(func(r *audit.ActionRecord) {
		r.ActionType = audit.ActionStockAdded
		r.TargetType = audit.TargetMedication
	})

	actions, err := s.store.DistinctActionTypes(ctx)
	s.Require().NoError(err)
	s.Equal([]string{audit.ActionStockAdded, audit.ActionLogin}, actions)

	targets, err := s.store.DistinctTargetTypes(ctx)
	s.Require().NoError(err)
	s.Equal([]string{string(audit.TargetMedication)}, targets)
}

func (s *PostgresStoreSuite) TestStats() {
	ctx := context.Background()
	now := s.base

	s.insert(func(r *audit.ActionRecord) { r.Timestamp = now.Add(-time.Hour) })
	s.insert(func(r *audit.ActionRecord) { r.Timestamp = now.Add(-2 * time.Hour) })
	s.insert(func(r *audit.ActionRecord) {
		r.ActorID = 7
		r.ActorRole = audit.RoleDoctor
		r.ActorDisplayName = "Greg House"
		r.ActionType = audit.ActionPatientCheckedIn
		r.Timestamp = now.AddDate(0, 0, -2)
	})

	stats, err := s.store.Stats(ctx, nil, nil, now)
	s.Require().NoError(err)
	s.EqualValues(3, stats.TotalCount)
	s.EqualValues(2, stats.ByRole[audit.RoleAdmin])
	s.EqualValues(1, stats.ByRole[audit.RoleDoctor])
	s.EqualValues(2, stats.Last24hCount)

	s.Require().NotEmpty(stats.TopActions)
	s.Equal(audit.ActionLogin, stats.TopActions[0].ActionType)
	s.EqualValues(2, stats.TopActions[0].Count)

	s.Require().NotEmpty(stats.TopActors)
	s.EqualValues(1, stats.TopActors[0].ActorID)
	s.Equal("Ada Admin", stats.TopActors[0].ActorDisplayName)
}

func (s *PostgresStoreSuite) TestStatsRange() {
	ctx := context.Background()
	now := s.base

	s.insert(func(r *audit.ActionRecord) { r.Timestamp = now.Add(-time.Hour) })
	s.insert(func(r *audit.ActionRecord) { r.Timestamp = now.AddDate(0, -2, 0) })

	from := now.AddDate(0, -1, 0)
	stats, err := s.store.Stats(ctx, &from, nil, now)
	s.Require().NoError(err)
	s.EqualValues(1, stats.TotalCount)
}

func (s *PostgresStoreSuite) TestDeleteOlderThan() {
	ctx := context.Background()
	cutoff := s.base

	old := s.insert(func(r *audit.ActionRecord) { r.Timestamp = cutoff.Add(-time.Second) })
	kept := s.insert(func(r *audit.ActionRecord) { r.Timestamp = cutoff })

	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	s.Require().NoError(err)
	s.EqualValues(1, deleted)

	_, err = s.store.FindByID(ctx, old.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(ctx, kept.ID)
	s.NoError(err)
}
