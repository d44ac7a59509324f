package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/isinprofit/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// writeServiceError maps domain errors to HTTP responses. Unmapped errors
// are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrExecutionNotFound):
		WriteError(w, http.StatusNotFound, "execution_not_found", err.Error())
	case errors.Is(err, domain.ErrExecutionExists):
		WriteError(w, http.StatusConflict, "execution_already_exists", err.Error())
	case errors.Is(err, domain.ErrNoSellExecutions):
		WriteError(w, http.StatusNotFound, "no_sell_executions", err.Error())
	case errors.Is(err, domain.ErrNotASell):
		WriteError(w, http.StatusBadRequest, "not_a_sell", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", slog.String("error", err.Error()))
		WriteError(w, http.StatusGatewayTimeout, "timeout", "The computation did not finish in time")
	default:
		logger.Error("request failed", slog.String("error", err.Error()))
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// number renders a decimal as an exact JSON number literal.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// numbers renders a map of decimals as JSON numbers, naming keys with key.
func numbers[K comparable](m map[K]decimal.Decimal, key func(K) string) map[string]json.Number {
	out := make(map[string]json.Number, len(m))
	for k, v := range m {
		out[key(k)] = number(v)
	}
	return out
}
