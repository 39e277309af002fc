package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"spendcast/internal/core"
	"spendcast/internal/log"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: w.Header().Get("X-Request-ID")})
}

// badRequest marks client input errors that carry no sentinel of their own.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func invalidInput(err error) error { return badRequest{err: err} }

// statusFor maps domain and context errors onto HTTP status codes.
func statusFor(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidRange), errors.Is(err, core.ErrNoTransactions):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrOutOfRange):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrTransientFetch), core.IsRetryable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes it with the mapped status. Server errors
// hide their detail from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := log.FromContext(r.Context())
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", log.FieldError, err, log.FieldStatusCode, status)
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	} else {
		logger.DebugContext(r.Context(), "request rejected", log.FieldError, err, log.FieldStatusCode, status)
	}
	writeErrorMessage(w, status, msg)
}
