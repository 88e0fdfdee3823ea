package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filters narrow a trail query. Zero values mean "no constraint"; all set
// filters are AND-combined.
type Filters struct {
	ActorID    int64 // 0 = any actor; set to scope doctors to themselves
	ActorRole  Role
	ActionType string
	TargetType TargetType
	From       *time.Time // inclusive
	To         *time.Time // inclusive
	Search     string     // substring across actor name, description, target name
}

// Query is a filtered, paginated trail read. Limit 0 means the caller wants
// everything up to the export cap.
type Query struct {
	Filters Filters
	Offset  int
	Limit   int
}

// Page is one page of trail results with pagination bookkeeping.
type Page struct {
	Rows        []ActionRecord `json:"rows"`
	TotalCount  int64          `json:"totalCount"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
	HasNext     bool           `json:"hasNextPage"`
	HasPrevious bool           `json:"hasPreviousPage"`
}

// ActionCount pairs an action type with its occurrence count.
type ActionCount struct {
	ActionType string `json:"actionType"`
	Count      int64  `json:"count"`
}

// ActorCount pairs an actor with their activity count.
type ActorCount struct {
	ActorID          int64  `json:"actorId"`
	ActorDisplayName string `json:"actorDisplayName"`
	Count            int64  `json:"count"`
}

// Stats aggregates trail activity for the dashboard.
type Stats struct {
	TotalCount   int64          `json:"totalCount"`
	ByRole       map[Role]int64 `json:"byRole"`
	TopActions   []ActionCount  `json:"topActions"`   // top 10 by count
	Last24hCount int64          `json:"last24hCount"` // writes in the last 24 hours
	TopActors    []ActorCount   `json:"topActors"`    // top 10 by 30-day activity
}

// Store is the persistence port for action records. Implementations must be
// safe for concurrent writers. Lookup misses return sentinel.ErrNotFound.
type Store interface {
	Insert(ctx context.Context, record *ActionRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (ActionRecord, error)

	// List returns rows sorted timestamp-descending plus the unpaginated
	// total matching the filters.
	List(ctx context.Context, q Query) ([]ActionRecord, int64, error)

	// LatestSince returns the most recent record for actor+action with
	// Timestamp >= since. Used by the view aggregator.
	LatestSince(ctx context.Context, actorID int64, actionType string, since time.Time) (ActionRecord, error)

	// UpdateAggregate refreshes a coalesced record in place.
	UpdateAggregate(ctx context.Context, id uuid.UUID, timestamp time.Time, description string, metadata Metadata) error

	// ListByActorAction returns an actor's records of one action type,
	// newest first, capped at limit.
	ListByActorAction(ctx context.Context, actorID int64, actionType string, limit int) ([]ActionRecord, error)

	DistinctActionTypes(ctx context.Context) ([]string, error)
	DistinctTargetTypes(ctx context.Context) ([]string, error)

	// Stats aggregates over the optional inclusive range; the 24h and 30d
	// sub-windows are measured back from now.
	Stats(ctx context.Context, from, to *time.Time, now time.Time) (Stats, error)

	// DeleteOlderThan removes records with Timestamp < cutoff and reports
	// how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
