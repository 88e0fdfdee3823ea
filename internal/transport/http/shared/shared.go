// Package shared holds response helpers common to every HTTP handler.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	"caretrail/pkg/domerrors"
)

// ErrorResponse is the JSON error envelope all handlers emit.
type ErrorResponse struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description"`
	Fields           map[string]string `json:"fields,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error to its HTTP status and JSON envelope.
// Non-domain errors become opaque 500s.
func WriteError(w http.ResponseWriter, err error) {
	var de *domerrors.Error
	if !errors.As(err, &de) {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:            string(domerrors.CodeInternal),
			ErrorDescription: "internal server error",
		})
		return
	}
	WriteJSON(w, domerrors.ToHTTPStatus(de.Code), ErrorResponse{
		Error:            string(de.Code),
		ErrorDescription: de.Message,
		Fields:           de.Fields,
	})
}
