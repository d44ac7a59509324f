package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether an execution bought or sold units.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Execution is a single recorded trade fill in the ledger.
// Executions are immutable once stored.
type Execution struct {
	ID        string
	ISIN      string
	Side      Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	TradeDate Date
	ExecTime  time.Time
}

// ValidateExecution checks the invariants every stored or matched
// execution must satisfy. It returns a *ValidationError describing the
// first violation found.
func ValidateExecution(e Execution) error {
	switch {
	case e.ISIN == "":
		return &ValidationError{Message: "isin is required"}
	case !e.Side.Valid():
		return &ValidationError{Message: "side must be 'buy' or 'sell'"}
	case !e.Quantity.IsPositive():
		return &ValidationError{Message: "quantity must be > 0"}
	case e.Price.IsNegative():
		return &ValidationError{Message: "price must be >= 0"}
	case e.TradeDate.IsZero():
		return &ValidationError{Message: "trade_date is required"}
	case e.ExecTime.IsZero():
		return &ValidationError{Message: "exec_time is required"}
	}
	return nil
}
