package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caretrail/pkg/requestcontext"
)

func newViewWriter(store Store) *Writer {
	aggregator := NewViewAggregator(store, nil, time.Hour, discardLogger(), nil)
	return NewWriter(store, discardLogger(), WithAggregator(aggregator))
}

func viewEntry() Entry {
	return Entry{ActionType: ActionViewedLogs, Description: "Viewed audit logs"}
}

func TestViewAggregator_CoalescesWithinWindow(t *testing.T) {
	store := &fakeStore{}
	writer := newViewWriter(store)

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ctx1 := requestcontext.WithTime(actorCtx(7, RoleAdmin, "Ada Admin"), base)
	ctx2 := requestcontext.WithTime(actorCtx(7, RoleAdmin, "Ada Admin"), base.Add(10*time.Minute))

	id1, ok := writer.Record(ctx1, viewEntry())
	require.True(t, ok)
	id2, ok := writer.Record(ctx2, viewEntry())
	require.True(t, ok)
	assert.Equal(t, id1, id2, "second view within the window folds into the first row")

	records := store.all()
	require.Len(t, records, 1)
	assert.Equal(t, ViewTrail{ViewCount: 2}, records[0].Metadata)
	assert.Equal(t, base.Add(10*time.Minute), records[0].Timestamp)
	assert.Contains(t, records[0].Description, "2 times")
}

func TestViewAggregator_ThreeViewsInTenMinutes(t *testing.T) {
	store := &fakeStore{}
	writer := newViewWriter(store)

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ctx := requestcontext.WithTime(actorCtx(7, RoleAdmin, "Ada Admin"), base.Add(time.Duration(i)*5*time.Minute))
		_, ok := writer.Record(ctx, viewEntry())
		require.True(t, ok)
	}

	records := store.all()
	require.Len(t, records, 1)
	assert.Equal(t, ViewTrail{ViewCount: 3}, records[0].Metadata)
}

func TestViewAggregator_SeparateRowsOutsideWindow(t *testing.T) {
	store := &fakeStore{}
	writer := newViewWriter(store)

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ctx1 := requestcontext.WithTime(actorCtx(7, RoleAdmin, "Ada Admin"), base)
	ctx2 := requestcontext.WithTime(actorCtx(7, RoleAdmin, "Ada Admin"), base.Add(2*time.Hour))

	id1, ok := writer.Record(ctx1, viewEntry())
	require.True(t, ok)
	id2, ok := writer.Record(ctx2, viewEntry())
	require.True(t, ok)
	assert.NotEqual(t, id1, id2)

	records := store.all()
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, ViewTrail{ViewCount: 1}, r.Metadata)
	}
}

func TestViewAggregator_DistinctActorsDoNotCoalesce(t *testing.T) {
	store := &fakeStore{}
	writer := newViewWriter(store)

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, ok := writer.Record(requestcontext.WithTime(actorCtx(7, RoleAdmin, "Ada Admin"), base), viewEntry())
	require.True(t, ok)
	_, ok = writer.Record(requestcontext.WithTime(actorCtx(8, RoleManagement, "Max Manager"), base.Add(time.Minute)), viewEntry())
	require.True(t, ok)

	assert.Len(t, store.all(), 2)
}

func TestViewAggregator_LockFailureDegradesToInsert(t *testing.T) {
	store := &fakeStore{}
	aggregator := NewViewAggregator(store, failingLocker{}, time.Hour, discardLogger(), nil)

	record := &ActionRecord{
		ID:               uuid.New(),
		ActorID:          7,
		ActorRole:        RoleAdmin,
		ActorDisplayName: "Ada Admin",
		ActionType:       ActionViewedLogs,
		Description:      "Viewed audit logs",
		Timestamp:        time.Now(),
	}
	_, ok := aggregator.Record(context.Background(), record)
	require.True(t, ok, "lock failure must not drop the event")
	assert.Len(t, store.all(), 1)
}

func TestViewAggregator_ConcurrentSameActorProducesOneRow(t *testing.T) {
	store := &fakeStore{}
	writer := newViewWriter(store)

	base := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := requestcontext.WithTime(actorCtx(7, RoleAdmin, "Ada Admin"), base)
			writer.Record(ctx, viewEntry())
		}()
	}
	wg.Wait()

	records := store.all()
	require.Len(t, records, 1, "the keyed lock must close the read-then-write race")
	assert.Equal(t, ViewTrail{ViewCount: 8}, records[0].Metadata)
}

func TestKeyedMutex_EvictionSparesContendedKeys(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	release, err := k.Lock(ctx, "contended")
	require.NoError(t, err)

	var entered atomic.Int32
	done := make(chan struct{})
	go func() {
		r, _ := k.Lock(ctx, "contended")
		entered.Add(1)
		r()
		close(done)
	}()

	// Let the waiter block, then churn enough distinct keys to push the map
	// past the eviction threshold several times over.
	time.Sleep(10 * time.Millisecond)
	for i := 0; i < 5000; i++ {
		r, lockErr := k.Lock(ctx, fmt.Sprintf("bucket-%d", i))
		require.NoError(t, lockErr)
		r()
	}

	assert.Zero(t, entered.Load(), "waiter must stay serialized behind the holder across eviction sweeps")
	release()
	<-done
	assert.EqualValues(t, 1, entered.Load())
}

func TestKeyedMutex_MutualExclusion(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				release, err := k.Lock(ctx, "shared")
				if err != nil {
					continue
				}
				n := holders.Add(1)
				for {
					seen := maxSeen.Load()
					if n <= seen || maxSeen.CompareAndSwap(seen, n) {
						break
					}
				}
				holders.Add(-1)
				release()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxSeen.Load(), "at most one holder per key at a time")
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("lock service unavailable")
}
