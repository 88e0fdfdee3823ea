package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"caretrail/internal/platform/metrics"
	"caretrail/pkg/requestcontext"
)

// Service exposes the notification lifecycle: listing active alerts, marking
// them read, dismissing them, and sweeping out expired ones.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService creates a notification service.
func NewService(store Store, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, logger: logger, metrics: m}
}

// ListActive returns undismissed, unexpired notifications, newest first.
func (s *Service) ListActive(ctx context.Context) ([]Notification, error) {
	return s.store.ListActive(ctx, requestcontext.Now(ctx))
}

// MarkRead flags a notification as read.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.store.MarkRead(ctx, id)
}

// Dismiss dismisses a notification on behalf of the acting user.
func (s *Service) Dismiss(ctx context.Context, id uuid.UUID) error {
	var by int64
	if actor, ok := requestcontext.Actor(ctx); ok {
		by = actor.ID
	}
	return s.store.Dismiss(ctx, id, by, requestcontext.Now(ctx))
}

// Sweep removes notifications past their expiry and reports how many.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	expired, err := s.store.ExpireBefore(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.logger.Info("expired notifications swept", "count", expired)
		if s.metrics != nil {
			s.metrics.NotificationsExpired.Add(float64(expired))
		}
	}
	return expired, nil
}

// RunSweeper sweeps on the given interval until the context is cancelled.
// Sweep failures are logged and the loop keeps going.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("notification sweep failed", "error", err)
			}
		}
	}
}
