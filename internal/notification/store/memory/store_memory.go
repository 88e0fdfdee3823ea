// Package memory provides the in-memory notification store used by unit
// tests and dependency-free development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"caretrail/internal/notification"
	"caretrail/pkg/sentinel"
)

// Store keeps notifications in a map guarded by a RWMutex.
type Store struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]notification.Notification
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{notifications: make(map[uuid.UUID]notification.Notification)}
}

// Clear removes every notification. Test isolation helper.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = make(map[uuid.UUID]notification.Notification)
}

func (s *Store) Insert(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.notifications[n.ID]; exists {
		return sentinel.ErrConflict
	}
	s.notifications[n.ID] = *n
	return nil
}

func (s *Store) FindByID(_ context.Context, id uuid.UUID) (notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return notification.Notification{}, sentinel.ErrNotFound
	}
	return n, nil
}

func (s *Store) ListActive(_ context.Context, now time.Time) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]notification.Notification, 0)
	for _, n := range s.notifications {
		if n.Active(now) {
			active = append(active, n)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

func (s *Store) MarkRead(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	n.IsRead = true
	s.notifications[id] = n
	return nil
}

func (s *Store) Dismiss(_ context.Context, id uuid.UUID, by int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	n.IsDismissed = true
	n.DismissedBy = by
	n.DismissedAt = &at
	s.notifications[id] = n
	return nil
}

func (s *Store) ExpireBefore(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired int64
	for id, n := range s.notifications {
		if n.Expired(now) {
			delete(s.notifications, id)
			expired++
		}
	}
	return expired, nil
}
