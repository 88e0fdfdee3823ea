package audit

import (
	"context"
	"fmt"
	"log/slog"

	"caretrail/internal/platform/metrics"
	"caretrail/pkg/domerrors"
	"caretrail/pkg/requestcontext"
)

// Retention window bounds. Out-of-range requests are validation errors, not
// clamps: silently keeping less history than an admin asked for would be a
// compliance hazard.
const (
	MinRetentionDays = 30
	MaxRetentionDays = 365
)

// RetentionManager deletes records past the retention horizon.
type RetentionManager struct {
	store   Store
	writer  *Writer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRetentionManager constructs the retention manager. The writer audits
// each purge; it may be nil in tests.
func NewRetentionManager(store Store, writer *Writer, logger *slog.Logger, m *metrics.Metrics) *RetentionManager {
	return &RetentionManager{store: store, writer: writer, logger: logger, metrics: m}
}

// Purge deletes every record older than daysToKeep days and returns the
// deleted count. The purge itself is audited with a timestamp strictly after
// the cutoff so the purge record can never delete itself.
func (m *RetentionManager) Purge(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep < MinRetentionDays || daysToKeep > MaxRetentionDays {
		return 0, domerrors.Newf(domerrors.CodeBadRequest, "daysToKeep must be between %d and %d", MinRetentionDays, MaxRetentionDays).
			WithField("daysToKeep", fmt.Sprintf("got %d, want %d..%d", daysToKeep, MinRetentionDays, MaxRetentionDays))
	}

	now := requestcontext.Now(ctx)
	cutoff := now.AddDate(0, 0, -daysToKeep)

	deleted, err := m.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, domerrors.Wrap(domerrors.CodeInternal, "retention purge failed", err)
	}

	if m.metrics != nil {
		m.metrics.RecordsPurged.Add(float64(deleted))
	}
	m.logger.InfoContext(ctx, "retention purge completed",
		"days_to_keep", daysToKeep,
		"deleted", deleted,
	)

	if m.writer != nil {
		m.writer.Record(ctx, Entry{
			ActionType:  ActionLogsPurged,
			Description: fmt.Sprintf("Purged %d audit records older than %d days", deleted, daysToKeep),
			Target:      &Target{Type: TargetAudit},
			Metadata:    PurgeSummary{DaysKept: daysToKeep, Deleted: deleted},
		})
	}

	return deleted, nil
}
