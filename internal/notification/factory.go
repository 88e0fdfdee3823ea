package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"caretrail/internal/audit"
	"caretrail/internal/platform/metrics"
	"caretrail/pkg/requestcontext"
)

// template renders a notification title and message for one action type.
type template struct {
	title   string
	message func(record *audit.ActionRecord) string
}

// templates maps critical action types to their notification copy. Critical
// types missing here fall back to the record description.
var templates = map[string]template{
	audit.ActionUserDeleted: {
		title: "User Account Deleted",
		message: func(r *audit.ActionRecord) string {
			return fmt.Sprintf("%s deleted %s", r.ActorDisplayName, r.TargetLabel())
		},
	},
	audit.ActionPatientRemoved: {
		title: "Patient Record Removed",
		message: func(r *audit.ActionRecord) string {
			return fmt.Sprintf("%s removed %s", r.ActorDisplayName, r.TargetLabel())
		},
	},
	audit.ActionPatientDeleted: {
		title: "Patient Record Deleted",
		message: func(r *audit.ActionRecord) string {
			return fmt.Sprintf("%s permanently deleted %s", r.ActorDisplayName, r.TargetLabel())
		},
	},
	audit.ActionUserCreated: {
		title: "User Account Created",
		message: func(r *audit.ActionRecord) string {
			return fmt.Sprintf("%s created %s", r.ActorDisplayName, r.TargetLabel())
		},
	},
	audit.ActionUserAdded: {
		title: "User Account Created",
		message: func(r *audit.ActionRecord) string {
			return fmt.Sprintf("%s added %s", r.ActorDisplayName, r.TargetLabel())
		},
	},
	audit.ActionFamilyCreated: {
		title: "Family Record Created",
		message: func(r *audit.ActionRecord) string {
			return fmt.Sprintf("%s created %s", r.ActorDisplayName, r.TargetLabel())
		},
	},
	audit.ActionPatientCreated: {
		title: "Patient Registered",
		message: func(r *audit.ActionRecord) string {
			return fmt.Sprintf("%s registered %s", r.ActorDisplayName, r.TargetLabel())
		},
	},
	audit.ActionLoginFailed: {
		title: "Failed Login Attempt",
		message: func(r *audit.ActionRecord) string {
			if lf, ok := r.Metadata.(audit.LoginFailure); ok && lf.Username != "" {
				return fmt.Sprintf("Failed login attempt for %q from %s", lf.Username, r.SourceIP)
			}
			return r.Description
		},
	},
	audit.ActionMultipleFailedLogins: {
		title: "Repeated Failed Logins",
		message: func(r *audit.ActionRecord) string {
			if lf, ok := r.Metadata.(audit.LoginFailure); ok && lf.Attempts > 1 {
				return fmt.Sprintf("%d failed login attempts for %q from %s", lf.Attempts, lf.Username, r.SourceIP)
			}
			return r.Description
		},
	},
	audit.ActionBackupRestored: {
		title: "Backup Restored",
		message: func(r *audit.ActionRecord) string {
			return fmt.Sprintf("%s restored a system backup", r.ActorDisplayName)
		},
	},
}

// Factory builds and persists notifications for critical action records.
// It implements audit.CriticalSink; failures are logged and counted, never
// returned, so ingestion outcome is unaffected.
type Factory struct {
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewFactory creates a notification factory. ttl <= 0 defaults to 24 hours.
func NewFactory(store Store, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Factory {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Factory{store: store, ttl: ttl, logger: logger, metrics: m}
}

// NotifyCritical persists a notification for a classified critical record.
func (f *Factory) NotifyCritical(ctx context.Context, record audit.ActionRecord, class audit.Classification) {
	if !class.Critical {
		return
	}
	f.CreateNotification(ctx, record, &class.Severity)
}

// CreateNotification builds a notification from the record, applying the
// severity override when given, and persists it. Errors are swallowed.
func (f *Factory) CreateNotification(ctx context.Context, record audit.ActionRecord, severityOverride *audit.Severity) {
	severity := audit.Classify(record.ActionType).Severity
	if severityOverride != nil {
		severity = *severityOverride
	}
	if severity == "" {
		severity = audit.SeverityHigh
	}

	title, message := render(&record)
	now := requestcontext.Now(ctx)

	n := Notification{
		ID:               uuid.New(),
		SourceRecordID:   record.ID,
		Severity:         severity,
		Title:            title,
		Message:          message,
		ActorDisplayName: record.ActorDisplayName,
		ActorRole:        record.ActorRole,
		TargetSnapshot:   record.TargetLabel(),
		CreatedAt:        now,
		ExpiresAt:        now.Add(f.ttl),
	}

	if err := f.store.Insert(ctx, &n); err != nil {
		f.logger.Error("failed to create notification",
			"error", err,
			"source_record_id", record.ID,
			"action_type", record.ActionType,
		)
		if f.metrics != nil {
			f.metrics.NotificationFailures.Inc()
		}
		return
	}
	if f.metrics != nil {
		f.metrics.NotificationsCreated.Inc()
	}
}

func render(record *audit.ActionRecord) (title, message string) {
	t, ok := templates[record.ActionType]
	if !ok {
		return "Audit Event", record.Description
	}
	return t.title, t.message(record)
}
