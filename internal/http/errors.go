// Package httpapi exposes the marketplace over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/marketplace"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/queue"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/token"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, jsonError{Error: message, Details: details})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message, details string) {
	writeJSON(w, status, jsonError{Error: message, Details: details, RequestID: RequestIDFromContext(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// classify maps an operation error to a status and a stable error name.
func classify(err error) (int, string, string) {
	if e, ok := marketplace.AsError(err); ok {
		return statusFor(e), string(e.Code), e.Message
	}
	switch {
	case errors.Is(err, queue.ErrShuttingDown):
		return http.StatusServiceUnavailable, "shutting_down", ""
	case errors.Is(err, queue.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable", err.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "timeout", err.Error()
	case errors.Is(err, token.ErrInsufficientBalance), errors.Is(err, token.ErrInsufficientAllowance):
		return http.StatusPaymentRequired, "insufficient_funds", err.Error()
	case errors.Is(err, token.ErrZeroAddress), errors.Is(err, token.ErrNegativeAmount):
		return http.StatusBadRequest, "validation_error", err.Error()
	}
	return http.StatusInternalServerError, "internal_error", err.Error()
}

func statusFor(e *marketplace.Error) int {
	switch e.Kind() {
	case marketplace.KindValidation:
		return http.StatusBadRequest
	case marketplace.KindNotFound:
		return http.StatusNotFound
	case marketplace.KindConflict:
		return http.StatusConflict
	case marketplace.KindAuthorization:
		return http.StatusForbidden
	case marketplace.KindPurchase:
		switch e.Code {
		case marketplace.CodeInsufficientBalance, marketplace.CodeNotApproved, marketplace.CodeTransferFailed:
			return http.StatusPaymentRequired
		}
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, name, details := classify(err)
	writeError(w, r, status, name, details)
}
