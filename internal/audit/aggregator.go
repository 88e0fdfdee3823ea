package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"caretrail/internal/platform/metrics"
	"caretrail/pkg/sentinel"
)

// Locker serializes the aggregator's read-then-write per coalescing key so
// concurrent requests from the same actor cannot both miss the existing row
// and create duplicates.
type Locker interface {
	// Lock acquires the key and returns its release func. A failed acquire
	// returns an error; the aggregator then degrades to a plain insert.
	Lock(ctx context.Context, key string) (func(), error)
}

// ViewAggregator coalesces repeated viewed-logs events per actor within a
// rolling window. Within the window the latest row's view count, timestamp,
// and description are refreshed in place; outside it a fresh row is written.
type ViewAggregator struct {
	store   Store
	locker  Locker
	window  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewViewAggregator constructs the aggregator. A nil locker falls back to
// in-process serialization.
func NewViewAggregator(store Store, locker Locker, window time.Duration, logger *slog.Logger, m *metrics.Metrics) *ViewAggregator {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if window <= 0 {
		window = time.Hour
	}
	return &ViewAggregator{
		store:   store,
		locker:  locker,
		window:  window,
		logger:  logger,
		metrics: m,
	}
}

// Record persists or coalesces one viewed-logs record. Returns the row's ID
// (the existing row's when coalesced) and whether a write happened.
func (a *ViewAggregator) Record(ctx context.Context, record *ActionRecord) (uuid.UUID, bool) {
	key := a.lockKey(record)
	unlock, err := a.locker.Lock(ctx, key)
	if err != nil {
		// Lock service down: accept the historical duplicate-row risk over
		// dropping the event.
		a.logger.WarnContext(ctx, "view aggregation lock unavailable, inserting without coalescing",
			"key", key,
			"error", err,
		)
		return a.insert(ctx, record)
	}
	defer unlock()

	since := record.Timestamp.Add(-a.window)
	latest, err := a.store.LatestSince(ctx, record.ActorID, record.ActionType, since)
	switch {
	case err == nil:
		return a.coalesce(ctx, record, latest)
	case errors.Is(err, sentinel.ErrNotFound):
		return a.insert(ctx, record)
	default:
		a.logger.ErrorContext(ctx, "view aggregation lookup failed, swallowing",
			"actor_id", record.ActorID,
			"error", err,
		)
		return uuid.Nil, false
	}
}

func (a *ViewAggregator) insert(ctx context.Context, record *ActionRecord) (uuid.UUID, bool) {
	record.Metadata = ViewTrail{ViewCount: 1}
	if err := a.store.Insert(ctx, record); err != nil {
		if a.metrics != nil {
			a.metrics.WriteFailures.Inc()
		}
		a.logger.ErrorContext(ctx, "view record write failed, swallowing",
			"actor_id", record.ActorID,
			"error", err,
		)
		return uuid.Nil, false
	}
	return record.ID, true
}

func (a *ViewAggregator) coalesce(ctx context.Context, record *ActionRecord, latest ActionRecord) (uuid.UUID, bool) {
	count := 1
	if trail, ok := latest.Metadata.(ViewTrail); ok {
		count = trail.ViewCount
	}
	count++

	description := fmt.Sprintf("Viewed audit logs (%d times in the last hour)", count)
	err := a.store.UpdateAggregate(ctx, latest.ID, record.Timestamp, description, ViewTrail{ViewCount: count})
	if err != nil {
		if a.metrics != nil {
			a.metrics.WriteFailures.Inc()
		}
		a.logger.ErrorContext(ctx, "view record coalesce failed, swallowing",
			"record_id", latest.ID,
			"error", err,
		)
		return uuid.Nil, false
	}
	if a.metrics != nil {
		a.metrics.ViewsCoalesced.Inc()
	}
	return latest.ID, true
}

// lockKey buckets by actor, action, and hour so lock cardinality stays
// bounded while still covering the coalescing window.
func (a *ViewAggregator) lockKey(record *ActionRecord) string {
	bucket := record.Timestamp.Unix() / int64(time.Hour/time.Second)
	return fmt.Sprintf("audit:viewlock:%d:%s:%d", record.ActorID, record.ActionType, bucket)
}

// KeyedMutex is the in-process Locker used when Redis is not configured.
// Entries are reference-counted so eviction can never separate a waiter
// from the holder of the same key.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an in-process keyed locker.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for key, lazily creating it. Idle buckets are
// dropped once the map grows large; only entries with zero holders and
// waiters are eligible.
func (k *KeyedMutex) Lock(_ context.Context, key string) (func(), error) {
	k.mu.Lock()
	if len(k.locks) > 4096 {
		for stale, l := range k.locks {
			if l.refs == 0 {
				delete(k.locks, stale)
			}
		}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		k.mu.Unlock()
	}, nil
}
