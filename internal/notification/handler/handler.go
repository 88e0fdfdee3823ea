// Package handler exposes the notification lifecycle over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"caretrail/internal/audit"
	"caretrail/internal/notification"
	"caretrail/internal/platform/middleware"
	"caretrail/internal/transport/http/shared"
	"caretrail/pkg/domerrors"
	"caretrail/pkg/sentinel"
)

// Service defines the notification operations the handler depends on.
type Service interface {
	ListActive(ctx context.Context) ([]notification.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	Dismiss(ctx context.Context, id uuid.UUID) error
}

// Handler handles notification endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// New creates a new notification Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register registers the notification routes with the chi router.
// Authentication is installed by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(h.logger,
			string(audit.RoleAdmin), string(audit.RoleManagement)))
		r.Get("/notifications", h.handleList)
		r.Post("/notifications/{id}/read", h.handleMarkRead)
		r.Post("/notifications/{id}/dismiss", h.handleDismiss)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	active, err := h.service.ListActive(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list notifications",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, domerrors.New(domerrors.CodeInternal, "failed to list notifications"))
		return
	}
	if active == nil {
		active = []notification.Notification{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string][]notification.Notification{"notifications": active})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.MarkRead, "failed to mark notification read")
}

func (h *Handler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Dismiss, "failed to dismiss notification")
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) error, failMessage string) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeBadRequest, "invalid notification id").
			WithField("id", "must be a UUID"))
		return
	}

	if err := op(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			shared.WriteError(w, domerrors.New(domerrors.CodeNotFound, "notification not found"))
			return
		}
		h.logger.ErrorContext(ctx, failMessage,
			"request_id", middleware.GetRequestID(ctx),
			"notification_id", id,
			"error", err.Error(),
		)
		shared.WriteError(w, domerrors.New(domerrors.CodeInternal, failMessage))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
