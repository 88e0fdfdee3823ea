// Package memory provides the in-memory ActionRecord store used by unit
// tests and dependency-free development runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"caretrail/internal/audit"
	"caretrail/pkg/sentinel"
)

// Store keeps records in a slice guarded by a RWMutex. Reads copy out so
// callers can never observe later mutations.
type Store struct {
	mu      sync.RWMutex
	records []audit.ActionRecord
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

// Clear removes every record. Test isolation helper.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

func (s *Store) Insert(_ context.Context, record *audit.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *record)
	return nil
}

func (s *Store) FindByID(_ context.Context, id uuid.UUID) (audit.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.records {
		if s.records[i].ID == id {
			return s.records[i], nil
		}
	}
	return audit.ActionRecord{}, sentinel.ErrNotFound
}

func (s *Store) List(_ context.Context, q audit.Query) ([]audit.ActionRecord, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]audit.ActionRecord, 0)
	for i := range s.records {
		if matches(&s.records[i], &q.Filters) {
			matched = append(matched, s.records[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := int64(len(matched))
	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return matched[start:end], total, nil
}

func (s *Store) LatestSince(_ context.Context, actorID int64, actionType string, since time.Time) (audit.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *audit.ActionRecord
	for i := range s.records {
		r := &s.records[i]
		if r.ActorID != actorID || r.ActionType != actionType || r.Timestamp.Before(since) {
			continue
		}
		if latest == nil || r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}
	if latest == nil {
		return audit.ActionRecord{}, sentinel.ErrNotFound
	}
	return *latest, nil
}

func (s *Store) UpdateAggregate(_ context.Context, id uuid.UUID, timestamp time.Time, description string, metadata audit.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Timestamp = timestamp
			s.records[i].Description = description
			s.records[i].Metadata = metadata
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *Store) ListByActorAction(_ context.Context, actorID int64, actionType string, limit int) ([]audit.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]audit.ActionRecord, 0)
	for i := range s.records {
		r := &s.records[i]
		if r.ActorID == actorID && r.ActionType == actionType {
			matched = append(matched, *r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) DistinctActionTypes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for i := range s.records {
		seen[s.records[i].ActionType] = struct{}{}
	}
	return sortedKeys(seen), nil
}

func (s *Store) DistinctTargetTypes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for i := range s.records {
		if s.records[i].TargetType != "" {
			seen[string(s.records[i].TargetType)] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (s *Store) Stats(_ context.Context, from, to *time.Time, now time.Time) (audit.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := audit.Stats{ByRole: make(map[audit.Role]int64)}
	actionCounts := make(map[string]int64)
	actorCounts := make(map[int64]*audit.ActorCount)
	dayAgo := now.Add(-24 * time.Hour)
	monthAgo := now.AddDate(0, 0, -30)

	for i := range s.records {
		r := &s.records[i]
		if from != nil && r.Timestamp.Before(*from) {
			continue
		}
		if to != nil && r.Timestamp.After(*to) {
			continue
		}
		stats.TotalCount++
		stats.ByRole[r.ActorRole]++
		actionCounts[r.ActionType]++
		if !r.Timestamp.Before(dayAgo) {
			stats.Last24hCount++
		}
		if !r.Timestamp.Before(monthAgo) {
			ac, ok := actorCounts[r.ActorID]
			if !ok {
				ac = &audit.ActorCount{ActorID: r.ActorID, ActorDisplayName: r.ActorDisplayName}
				actorCounts[r.ActorID] = ac
			}
			ac.Count++
		}
	}

	stats.TopActions = topActions(actionCounts, 10)
	stats.TopActors = topActors(actorCounts, 10)
	return stats, nil
}

func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for i := range s.records {
		if s.records[i].Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, s.records[i])
	}
	s.records = kept
	return deleted, nil
}

func matches(r *audit.ActionRecord, f *audit.Filters) bool {
	if f.ActorID != 0 && r.ActorID != f.ActorID {
		return false
	}
	if f.ActorRole != "" && r.ActorRole != f.ActorRole {
		return false
	}
	if f.ActionType != "" && r.ActionType != f.ActionType {
		return false
	}
	if f.TargetType != "" && r.TargetType != f.TargetType {
		return false
	}
	if f.From != nil && r.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && r.Timestamp.After(*f.To) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(r.ActorDisplayName), needle) &&
			!strings.Contains(strings.ToLower(r.Description), needle) &&
			!strings.Contains(strings.ToLower(r.TargetDisplayName), needle) {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func topActions(counts map[string]int64, n int) []audit.ActionCount {
	out := make([]audit.ActionCount, 0, len(counts))
	for action, count := range counts {
		out = append(out, audit.ActionCount{ActionType: action, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ActionType < out[j].ActionType
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func topActors(counts map[int64]*audit.ActorCount, n int) []audit.ActorCount {
	out := make([]audit.ActorCount, 0, len(counts))
	for _, ac := range counts {
		out = append(out, *ac)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ActorID < out[j].ActorID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
