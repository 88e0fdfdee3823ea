package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"caretrail/internal/platform/metrics"
	"caretrail/pkg/requestcontext"
)

// DirectoryLookup resolves an actor's display name by ID when the request
// context doesn't carry one. Implemented by the user-management collaborator.
type DirectoryLookup interface {
	DisplayName(ctx context.Context, actorID int64) (string, error)
}

// CriticalSink receives records the classifier marked critical. Sinks isolate
// their own failures; a sink must never let one escape into the write path.
type CriticalSink interface {
	NotifyCritical(ctx context.Context, record ActionRecord, class Classification)
}

// Entry is one ingestion request. Actor identity normally comes from the
// request context; Actor overrides it for flows that act on another's behalf.
type Entry struct {
	Actor        *requestcontext.ActorInfo
	ActionType   string
	Description  string
	Target       *Target
	Metadata     Metadata
	ErrorMessage string
}

// Writer validates and persists action records. It never returns an error:
// audit logging must not cause a user-visible failure of the action being
// audited, so every failure is logged, counted, and swallowed.
type Writer struct {
	store      Store
	directory  DirectoryLookup
	aggregator *ViewAggregator
	sinks      []CriticalSink
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithDirectory sets the display-name lookup used when the context carries
// only an actor ID.
func WithDirectory(directory DirectoryLookup) WriterOption {
	return func(w *Writer) { w.directory = directory }
}

// WithAggregator enables coalescing of repeated log-view events.
func WithAggregator(aggregator *ViewAggregator) WriterOption {
	return func(w *Writer) { w.aggregator = aggregator }
}

// WithSinks registers critical-event sinks (notification factory, forwarder).
func WithSinks(sinks ...CriticalSink) WriterOption {
	return func(w *Writer) {
		for _, s := range sinks {
			if s != nil {
				w.sinks = append(w.sinks, s)
			}
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) WriterOption {
	return func(w *Writer) { w.metrics = m }
}

// NewWriter constructs the audit writer.
func NewWriter(store Store, logger *slog.Logger, opts ...WriterOption) *Writer {
	w := &Writer{store: store, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record validates, enriches, and persists one action record. The returned
// bool reports whether a row was persisted; the ID identifies it (for
// coalesced view events, the existing row). Failures never propagate.
func (w *Writer) Record(ctx context.Context, entry Entry) (uuid.UUID, bool) {
	now := requestcontext.Now(ctx)

	record := ActionRecord{
		ID:           uuid.New(),
		ActionType:   entry.ActionType,
		Description:  entry.Description,
		Metadata:     entry.Metadata,
		SourceIP:     requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		SessionID:    requestcontext.SessionID(ctx),
		RequestID:    requestcontext.RequestID(ctx),
		ErrorMessage: entry.ErrorMessage,
		Timestamp:    now,
	}
	if span := trace.SpanContextFromContext(ctx); span.HasTraceID() {
		record.TraceID = span.TraceID().String()
	}
	if entry.Target != nil {
		record.TargetType = entry.Target.Type
		record.TargetID = entry.Target.ID
		record.TargetDisplayName = entry.Target.DisplayName
	}

	w.resolveActor(ctx, entry.Actor, &record)

	if err := validate(&record); err != nil {
		w.drop(ctx, record.ActionType, err)
		return uuid.Nil, false
	}

	if w.aggregator != nil && record.ActionType == ActionViewedLogs {
		id, ok := w.aggregator.Record(ctx, &record)
		if !ok {
			return uuid.Nil, false
		}
		if id != record.ID {
			// Folded into an existing row; nothing new to classify.
			return id, true
		}
	} else if err := w.store.Insert(ctx, &record); err != nil {
		if w.metrics != nil {
			w.metrics.WriteFailures.Inc()
		}
		w.logger.ErrorContext(ctx, "audit write failed, swallowing",
			"request_id", record.RequestID,
			"action_type", record.ActionType,
			"error", err,
		)
		return uuid.Nil, false
	}

	if w.metrics != nil {
		w.metrics.RecordsWritten.Inc()
	}

	if class := Classify(record.ActionType); class.Critical {
		for _, sink := range w.sinks {
			sink.NotifyCritical(ctx, record, class)
		}
	}

	return record.ID, true
}

// resolveActor fills actor identity via the fallback chain: explicit display
// name, first+last names, directory lookup, "User {id}", then the system
// actor when no context exists at all.
func (w *Writer) resolveActor(ctx context.Context, override *requestcontext.ActorInfo, record *ActionRecord) {
	actor, ok := requestcontext.Actor(ctx)
	if override != nil {
		actor, ok = *override, true
	}
	if !ok {
		record.ActorID = 0
		record.ActorRole = RoleSystem
		record.ActorDisplayName = "System"
		return
	}

	record.ActorID = actor.ID
	record.ActorRole = Role(actor.Role)

	switch {
	case actor.DisplayName != "":
		record.ActorDisplayName = actor.DisplayName
	case actor.FirstName != "" || actor.LastName != "":
		record.ActorDisplayName = joinName(actor.FirstName, actor.LastName)
	default:
		record.ActorDisplayName = w.lookupDisplayName(ctx, actor.ID)
	}
}

func (w *Writer) lookupDisplayName(ctx context.Context, actorID int64) string {
	if w.directory != nil {
		name, err := w.directory.DisplayName(ctx, actorID)
		if err == nil && name != "" {
			return name
		}
		if err != nil {
			w.logger.WarnContext(ctx, "actor display-name lookup failed",
				"actor_id", actorID,
				"error", err,
			)
		}
	}
	return fmt.Sprintf("User %d", actorID)
}

func (w *Writer) drop(ctx context.Context, actionType string, err error) {
	if w.metrics != nil {
		w.metrics.RecordsDropped.Inc()
	}
	w.logger.WarnContext(ctx, "audit entry dropped by validation",
		"action_type", actionType,
		"error", err,
	)
}

func validate(record *ActionRecord) error {
	switch {
	case record.ActionType == "":
		return fmt.Errorf("actionType is required")
	case record.Description == "":
		return fmt.Errorf("description is required")
	case record.ActorDisplayName == "":
		return fmt.Errorf("actorDisplayName is required")
	case !record.ActorRole.Valid():
		return fmt.Errorf("actorRole %q is not a known role", record.ActorRole)
	case record.ActorID == 0 && record.ActorRole != RoleSystem:
		return fmt.Errorf("actorId is required for non-system actions")
	case record.Timestamp.IsZero():
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
