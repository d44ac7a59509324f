package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrExecutionNotFound = errors.New("execution_not_found")
	ErrExecutionExists   = errors.New("execution_already_exists")
	ErrNoSellExecutions  = errors.New("no_sell_executions")
	ErrNotASell          = errors.New("not_a_sell_execution")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
