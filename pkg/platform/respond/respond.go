// Package respond centralizes outcome-to-HTTP translation so every handler
// renders the same JSON envelope.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"formhub/pkg/outcome"
)

// statusCodes maps each business outcome to its HTTP status. Statuses in the
// success family all render 200; the payload's status field carries the
// distinction.
var statusCodes = map[outcome.Status]int{
	outcome.Available:              http.StatusOK,
	outcome.PendingApproval:        http.StatusOK,
	outcome.Completed:              http.StatusOK,
	outcome.Approved:               http.StatusOK,
	outcome.Declined:               http.StatusOK,
	outcome.Unauthorized:           http.StatusUnauthorized,
	outcome.NotAuthorized:          http.StatusForbidden,
	outcome.NotFound:               http.StatusNotFound,
	outcome.NotAvailable:           http.StatusNotFound,
	outcome.NotAcceptable:          http.StatusNotAcceptable,
	outcome.RequiresParentApproval: http.StatusPreconditionRequired,
}

// HTTPStatus returns the HTTP status for a business outcome.
func HTTPStatus(status outcome.Status) int {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return http.StatusBadRequest
}

// WriteResult renders a service result as JSON with the mapped status code.
func WriteResult[T any](w http.ResponseWriter, result outcome.Result[T]) {
	WriteJSON(w, HTTPStatus(result.Status), result)
}

// WriteJSON renders any payload as JSON.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteInternalError renders the opaque 500 envelope. The cause is logged,
// never leaked.
func WriteInternalError(w http.ResponseWriter, logger *slog.Logger, err error, requestID string) {
	logger.Error("request failed", "error", err, "request_id", requestID)
	WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
}

// WriteBadRequest renders a 400 envelope for malformed input.
func WriteBadRequest(w http.ResponseWriter, description string) {
	WriteJSON(w, http.StatusBadRequest, map[string]string{
		"error":             "bad_request",
		"error_description": description,
	})
}

// DecodeJSON decodes a request body into T, rejecting unknown fields. On
// failure it writes the 400 envelope and returns false.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return req, false
	}
	return req, true
}
