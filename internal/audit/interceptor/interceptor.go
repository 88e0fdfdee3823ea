// Package interceptor derives audit records from completed HTTP requests so
// route handlers outside the audit subsystem need no explicit call sites.
package interceptor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"caretrail/internal/audit"
)

// Rule maps a routing pattern to the audit entry it should produce.
type Rule struct {
	ActionType  string
	Description string

	// Describe overrides Description when set.
	Describe func(r *http.Request, status int) string

	// SuccessOnly skips the write for non-2xx responses. Failed requests
	// still record when false, with the status noted as an error message.
	SuccessOnly bool
}

// Recorder is the ingestion port the interceptor writes through.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) (uuid.UUID, bool)
}

// Interceptor schedules audit writes after the response has been sent.
// Writes are best-effort: they run detached from the request lifecycle and
// never change the response the caller already received.
type Interceptor struct {
	recorder Recorder
	logger   *slog.Logger
	rules    map[string]Rule
}

// New creates an interceptor over the given recorder. Rules are keyed by
// "METHOD pattern", e.g. "POST /patients".
func New(recorder Recorder, logger *slog.Logger, rules map[string]Rule) *Interceptor {
	return &Interceptor{recorder: recorder, logger: logger, rules: rules}
}

// statusRecorder captures the response status for rule evaluation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Middleware wraps a handler subtree. The matched routing pattern is only
// known after the inner handler ran, so rule lookup happens post-response.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		rule, ok := i.rules[r.Method+" "+pattern]
		if !ok {
			return
		}
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		if rule.SuccessOnly && (status < 200 || status >= 300) {
			return
		}

		// Detach from the request context so client disconnects and the
		// handler timeout cannot cancel the write.
		ctx := context.WithoutCancel(r.Context())
		go i.record(ctx, rule, r, status)
	})
}

func (i *Interceptor) record(ctx context.Context, rule Rule, r *http.Request, status int) {
	defer func() {
		if v := recover(); v != nil {
			i.logger.Error("panic in intercepted audit write",
				"action_type", rule.ActionType,
				"panic", fmt.Sprint(v),
			)
		}
	}()

	description := rule.Description
	if rule.Describe != nil {
		description = rule.Describe(r, status)
	}

	entry := audit.Entry{
		ActionType:  rule.ActionType,
		Description: description,
	}
	if status < 200 || status >= 300 {
		entry.ErrorMessage = fmt.Sprintf("request failed with status %d", status)
	}
	i.recorder.Record(ctx, entry)
}
