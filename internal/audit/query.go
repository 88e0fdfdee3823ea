package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"caretrail/pkg/requestcontext"
)

const (
	defaultPageSize = 50
	// ExportCap bounds a CSV export so one request cannot stream the whole
	// table unbounded.
	ExportCap = 10_000
	// loginHistoryLimit caps how far back the self-service login view goes.
	loginHistoryLimit = 100
)

// QueryEngine serves filtered reads, statistics, and CSV export over the
// trail. It holds no state beyond the store port.
type QueryEngine struct {
	store Store
}

// NewQueryEngine constructs the query engine.
func NewQueryEngine(store Store) *QueryEngine {
	return &QueryEngine{store: store}
}

// List returns one page of records matching the filters, newest first.
// Page and limit default to 1 and 50 when unset.
func (e *QueryEngine) List(ctx context.Context, filters Filters, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}

	rows, total, err := e.store.List(ctx, Query{
		Filters: filters,
		Offset:  (page - 1) * limit,
		Limit:   limit,
	})
	if err != nil {
		return Page{}, fmt.Errorf("list action records: %w", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Page{
		Rows:        rows,
		TotalCount:  total,
		TotalPages:  totalPages,
		CurrentPage: page,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}, nil
}

// Get returns a single record by ID.
func (e *QueryEngine) Get(ctx context.Context, id uuid.UUID) (ActionRecord, error) {
	return e.store.FindByID(ctx, id)
}

// DistinctActionTypes lists every action type present in the trail,
// alphabetical.
func (e *QueryEngine) DistinctActionTypes(ctx context.Context) ([]string, error) {
	return e.store.DistinctActionTypes(ctx)
}

// DistinctTargetTypes lists every target type present in the trail,
// alphabetical, nulls excluded.
func (e *QueryEngine) DistinctTargetTypes(ctx context.Context) ([]string, error) {
	return e.store.DistinctTargetTypes(ctx)
}

// Stats aggregates trail activity over the optional inclusive range.
func (e *QueryEngine) Stats(ctx context.Context, from, to *time.Time) (Stats, error) {
	return e.store.Stats(ctx, from, to, requestcontext.Now(ctx))
}

// ExportCSV renders every record matching the filters (pagination ignored,
// capped at ExportCap rows) as CSV. Literal commas inside text fields are
// replaced with semicolons; fields are never quoted, by wire-format contract
// with the existing report tooling.
func (e *QueryEngine) ExportCSV(ctx context.Context, filters Filters) ([]byte, error) {
	rows, _, err := e.store.List(ctx, Query{Filters: filters, Limit: ExportCap})
	if err != nil {
		return nil, fmt.Errorf("export action records: %w", err)
	}

	var b strings.Builder
	b.WriteString("timestamp,actorDisplayName,actorRole,actionType,description,targetType,targetDisplayName,sourceIp\n")
	for i := range rows {
		r := &rows[i]
		fields := []string{
			r.Timestamp.UTC().Format(time.RFC3339),
			csvField(r.ActorDisplayName),
			string(r.ActorRole),
			r.ActionType,
			csvField(r.Description),
			string(r.TargetType),
			csvField(r.TargetDisplayName),
			r.SourceIP,
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// ExportFilename names the download by export date.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("audit_logs_%s.csv", now.UTC().Format("2006-01-02"))
}

func csvField(s string) string {
	return strings.ReplaceAll(s, ",", ";")
}

// LoginEntry is one sign-in event with the user agent parsed into
// device/browser facts for the self-service history view.
type LoginEntry struct {
	Timestamp time.Time `json:"timestamp"`
	SourceIP  string    `json:"sourceIp"`
	Device    string    `json:"device"`
	Browser   string    `json:"browser"`
	OS        string    `json:"os"`
	UserAgent string    `json:"userAgent"`
}

// LoginHistory returns the actor's own sign-in records, newest first.
func (e *QueryEngine) LoginHistory(ctx context.Context, actorID int64) ([]LoginEntry, error) {
	records, err := e.store.ListByActorAction(ctx, actorID, ActionLogin, loginHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list login history: %w", err)
	}

	entries := make([]LoginEntry, 0, len(records))
	for i := range records {
		r := &records[i]
		entries = append(entries, loginEntry(r))
	}
	return entries, nil
}

func loginEntry(r *ActionRecord) LoginEntry {
	entry := LoginEntry{
		Timestamp: r.Timestamp,
		SourceIP:  r.SourceIP,
		Device:    "Unknown",
		Browser:   "Unknown",
		OS:        "Unknown",
		UserAgent: r.UserAgent,
	}
	if r.UserAgent == "" {
		return entry
	}

	ua := useragent.New(r.UserAgent)
	if name, version := ua.Browser(); name != "" {
		entry.Browser = strings.TrimSpace(name + " " + version)
	}
	if os := ua.OS(); os != "" {
		entry.OS = os
	}
	switch {
	case ua.Bot():
		entry.Device = "Bot"
	case ua.Mobile():
		entry.Device = "Mobile"
	default:
		entry.Device = "Desktop"
	}
	return entry
}
