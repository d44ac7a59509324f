package store

import (
	"context"

	"github.com/efreitasn/isinprofit/internal/domain"
)

// Reader is the read contract the lot matcher depends on.
//
// FetchExecutions returns the executions recorded for exactly isin, side
// and date, ordered ascending by exec time with ties in insertion order.
// It returns an empty, non-nil slice when nothing matches.
type Reader interface {
	FetchExecutions(ctx context.Context, isin string, side domain.Side, date domain.Date) ([]domain.Execution, error)
}

// DateSeeker is implemented by readers that can locate the nearest date
// carrying executions without stepping one day at a time.
type DateSeeker interface {
	// PrevTradeDate returns the latest date <= onOrBefore with at least one
	// execution for isin and side.
	PrevTradeDate(ctx context.Context, isin string, side domain.Side, onOrBefore domain.Date) (domain.Date, bool, error)
	// NextTradeDate returns the earliest date >= onOrAfter with at least one
	// execution for isin and side.
	NextTradeDate(ctx context.Context, isin string, side domain.Side, onOrAfter domain.Date) (domain.Date, bool, error)
}

// Ledger is the full append-only trade ledger.
type Ledger interface {
	Reader
	DateSeeker

	// ListExecutions returns every execution of side on date across all
	// ISINs, ordered by exec time.
	ListExecutions(ctx context.Context, side domain.Side, date domain.Date) ([]domain.Execution, error)
	// Get returns domain.ErrExecutionNotFound when id is unknown.
	Get(ctx context.Context, id string) (domain.Execution, error)
	// Append validates and stores e, assigning an ID when e.ID is empty.
	// It returns domain.ErrExecutionExists for a duplicate ID.
	Append(ctx context.Context, e domain.Execution) (domain.Execution, error)
}
