// Package handler exposes the audit trail over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"caretrail/internal/audit"
	"caretrail/internal/platform/middleware"
	"caretrail/internal/transport/http/shared"
	"caretrail/pkg/domerrors"
	"caretrail/pkg/requestcontext"
	"caretrail/pkg/sentinel"
)

// Query defines the read operations the handler depends on.
type Query interface {
	List(ctx context.Context, filters audit.Filters, page, limit int) (audit.Page, error)
	Get(ctx context.Context, id uuid.UUID) (audit.ActionRecord, error)
	Stats(ctx context.Context, from, to *time.Time) (audit.Stats, error)
	DistinctActionTypes(ctx context.Context) ([]string, error)
	DistinctTargetTypes(ctx context.Context) ([]string, error)
	ExportCSV(ctx context.Context, filters audit.Filters) ([]byte, error)
	LoginHistory(ctx context.Context, actorID int64) ([]audit.LoginEntry, error)
}

// Retention defines the purge operation the handler depends on.
type Retention interface {
	Purge(ctx context.Context, daysToKeep int) (int64, error)
}

// Recorder defines the explicit ingestion operation the handler depends on.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) (uuid.UUID, bool)
}

// Handler handles audit trail endpoints.
type Handler struct {
	logger    *slog.Logger
	query     Query
	retention Retention
	recorder  Recorder
}

// New creates a new audit Handler.
func New(query Query, retention Retention, recorder Recorder, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		query:     query,
		retention: retention,
		recorder:  recorder,
	}
}

// Register registers the audit routes with the chi router. Authentication is
// installed by the caller; role guards are per route group.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(h.logger,
			string(audit.RoleAdmin), string(audit.RoleManagement), string(audit.RoleDoctor)))
		r.Get("/logs", h.handleListLogs)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(h.logger,
			string(audit.RoleAdmin), string(audit.RoleManagement)))
		r.Get("/logs/{id}", h.handleGetLog)
		r.Get("/stats", h.handleStats)
		r.Get("/actions", h.handleActionTypes)
		r.Get("/target-types", h.handleTargetTypes)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(h.logger, string(audit.RoleAdmin)))
		r.Get("/export", h.handleExport)
		r.Delete("/logs/cleanup", h.handleCleanup)
	})

	// Any authenticated actor.
	r.Get("/login-history", h.handleLoginHistory)
	r.Post("/log-report", h.handleLogReport)
}

func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filters, err := parseFilters(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	page, err := intQuery(r, "page", 1)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	// Doctors only ever see their own trail, whatever they ask for.
	actor, _ := requestcontext.Actor(ctx)
	if actor.Role == string(audit.RoleDoctor) {
		filters.ActorID = actor.ID
	}

	result, err := h.query.List(ctx, filters, page, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list action records",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, domerrors.New(domerrors.CodeInternal, "failed to list audit logs"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeBadRequest, "invalid record id").
			WithField("id", "must be a UUID"))
		return
	}

	record, err := h.query.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			shared.WriteError(w, domerrors.New(domerrors.CodeNotFound, "audit log not found"))
			return
		}
		h.logger.ErrorContext(ctx, "failed to fetch action record",
			"request_id", middleware.GetRequestID(ctx),
			"record_id", id,
			"error", err.Error(),
		)
		shared.WriteError(w, domerrors.New(domerrors.CodeInternal, "failed to fetch audit log"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	from, err := timeQuery(r, "from")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	to, err := timeQuery(r, "to")
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	stats, err := h.query.Stats(ctx, from, to)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to compute audit stats",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, domerrors.New(domerrors.CodeInternal, "failed to compute statistics"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleActionTypes(w http.ResponseWriter, r *http.Request) {
	h.handleDistinct(w, r, h.query.DistinctActionTypes, "actionTypes")
}

func (h *Handler) handleTargetTypes(w http.ResponseWriter, r *http.Request) {
	h.handleDistinct(w, r, h.query.DistinctTargetTypes, "targetTypes")
}

func (h *Handler) handleDistinct(w http.ResponseWriter, r *http.Request, list func(context.Context) ([]string, error), key string) {
	ctx := r.Context()
	values, err := list(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list distinct values",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, domerrors.New(domerrors.CodeInternal, "failed to list values"))
		return
	}
	if values == nil {
		values = []string{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string][]string{key: values})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filters, err := parseFilters(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	csv, err := h.query.ExportCSV(ctx, filters)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to export action records",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, domerrors.New(domerrors.CodeInternal, "failed to export audit logs"))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+audit.ExportFilename(requestcontext.Now(ctx))+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(csv)
}

type cleanupRequest struct {
	DaysToKeep int `json:"daysToKeep"`
}

type cleanupResponse struct {
	DeletedCount int64 `json:"deletedCount"`
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeBadRequest, "invalid request body").
			WithField("daysToKeep", "must be an integer"))
		return
	}

	deleted, err := h.retention.Purge(ctx, req.DaysToKeep)
	if err != nil {
		if domerrors.Is(err, domerrors.CodeBadRequest) {
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to purge action records",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, domerrors.New(domerrors.CodeInternal, "failed to purge audit logs"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, cleanupResponse{DeletedCount: deleted})
}

func (h *Handler) handleLoginHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requestcontext.Actor(ctx)
	if !ok {
		shared.WriteError(w, domerrors.New(domerrors.CodeUnauthorized, "authentication required"))
		return
	}

	entries, err := h.query.LoginHistory(ctx, actor.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to fetch login history",
			"request_id", middleware.GetRequestID(ctx),
			"actor_id", actor.ID,
			"error", err.Error(),
		)
		shared.WriteError(w, domerrors.New(domerrors.CodeInternal, "failed to fetch login history"))
		return
	}
	if entries == nil {
		entries = []audit.LoginEntry{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string][]audit.LoginEntry{"logins": entries})
}

type logReportRequest struct {
	ReportType  string `json:"reportType"`
	Description string `json:"description"`
}

type logReportResponse struct {
	RecordID string `json:"recordId,omitempty"`
	Recorded bool   `json:"recorded"`
}

func (h *Handler) handleLogReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req logReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.ReportType == "" {
		shared.WriteError(w, domerrors.New(domerrors.CodeBadRequest, "missing report type").
			WithField("reportType", "required"))
		return
	}
	description := req.Description
	if description == "" {
		description = "Generated report: " + req.ReportType
	}

	id, recorded := h.recorder.Record(ctx, audit.Entry{
		ActionType:  audit.ActionReportGenerated,
		Description: description,
		Metadata:    audit.Extra{"reportType": req.ReportType},
	})
	resp := logReportResponse{Recorded: recorded}
	if recorded {
		resp.RecordID = id.String()
	}
	shared.WriteJSON(w, http.StatusAccepted, resp)
}

// parseFilters reads the shared filter query parameters. Malformed values are
// reported per field.
func parseFilters(r *http.Request) (audit.Filters, error) {
	var filters audit.Filters
	q := r.URL.Query()

	if role := q.Get("actorRole"); role != "" {
		if !audit.Role(role).Valid() {
			return audit.Filters{}, domerrors.New(domerrors.CodeBadRequest, "invalid filter").
				WithField("actorRole", "unknown role")
		}
		filters.ActorRole = audit.Role(role)
	}
	filters.ActionType = q.Get("actionType")
	if target := q.Get("targetType"); target != "" {
		if !audit.TargetType(target).Valid() {
			return audit.Filters{}, domerrors.New(domerrors.CodeBadRequest, "invalid filter").
				WithField("targetType", "unknown target type")
		}
		filters.TargetType = audit.TargetType(target)
	}
	filters.Search = q.Get("search")

	from, err := timeQuery(r, "from")
	if err != nil {
		return audit.Filters{}, err
	}
	filters.From = from

	to, err := timeQuery(r, "to")
	if err != nil {
		return audit.Filters{}, err
	}
	filters.To = to

	return filters, nil
}

func timeQuery(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, domerrors.New(domerrors.CodeBadRequest, "invalid filter").
			WithField(key, "must be an RFC 3339 timestamp")
	}
	return &t, nil
}

func intQuery(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domerrors.New(domerrors.CodeBadRequest, "invalid filter").
			WithField(key, "must be a non-negative integer")
	}
	return n, nil
}
