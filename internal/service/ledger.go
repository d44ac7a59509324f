package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/isinprofit/internal/domain"
	"github.com/efreitasn/isinprofit/internal/ingest"
	"github.com/efreitasn/isinprofit/internal/store"
)

var executionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// RecordExecutionRequest represents the input for recording an execution.
type RecordExecutionRequest struct {
	ID        string // optional, generated when empty
	ISIN      string
	Side      string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	TradeDate domain.Date // defaults to the date of ExecTime
	ExecTime  time.Time
}

// ImportResult summarizes a CSV import.
type ImportResult struct {
	Imported int
}

// LedgerService records executions and answers ledger queries.
type LedgerService struct {
	ledger store.Ledger
	logger *slog.Logger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(ledger store.Ledger, logger *slog.Logger) *LedgerService {
	return &LedgerService{ledger: ledger, logger: logger}
}

// Record validates the request and appends it to the ledger.
func (s *LedgerService) Record(ctx context.Context, req RecordExecutionRequest) (domain.Execution, error) {
	if req.ID != "" && !executionIDRegex.MatchString(req.ID) {
		return domain.Execution{}, &domain.ValidationError{
			Message: "id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}

	side := domain.Side(strings.ToLower(req.Side))
	if !side.Valid() {
		return domain.Execution{}, &domain.ValidationError{
			Message: "side must be buy or sell",
		}
	}

	if req.ExecTime.IsZero() {
		return domain.Execution{}, &domain.ValidationError{Message: "exec_time is required"}
	}
	tradeDate := req.TradeDate
	if tradeDate.IsZero() {
		tradeDate = domain.DateOf(req.ExecTime)
	}

	e := domain.Execution{
		ID:        req.ID,
		ISIN:      strings.TrimSpace(req.ISIN),
		Side:      side,
		Quantity:  req.Quantity,
		Price:     req.Price,
		TradeDate: tradeDate,
		ExecTime:  req.ExecTime,
	}
	stored, err := s.ledger.Append(ctx, e)
	if err != nil {
		return domain.Execution{}, err
	}

	s.logger.Info("execution recorded",
		slog.String("id", stored.ID),
		slog.String("isin", stored.ISIN),
		slog.String("side", string(stored.Side)),
		slog.String("trade_date", stored.TradeDate.String()),
	)
	return stored, nil
}

// Import parses a ledger sheet and appends every row. Clock-only exec
// times are read in loc. Parsing is all-or-nothing; appending stops at the
// first rejected row and reports how many rows were stored before it.
func (s *LedgerService) Import(ctx context.Context, r io.Reader, loc *time.Location) (ImportResult, error) {
	execs, err := ingest.ParseCSV(r, loc)
	if err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	for i, e := range execs {
		if _, err := s.ledger.Append(ctx, e); err != nil {
			return res, fmt.Errorf("row %d: %w", i+1, err)
		}
		res.Imported++
	}

	s.logger.Info("ledger imported", slog.Int("imported", res.Imported))
	return res, nil
}

// Get returns a single execution by ID.
func (s *LedgerService) Get(ctx context.Context, id string) (domain.Execution, error) {
	return s.ledger.Get(ctx, id)
}

// List returns the executions of side on date, for one ISIN or for all of
// them when isin is empty.
func (s *LedgerService) List(ctx context.Context, isin string, side domain.Side, date domain.Date) ([]domain.Execution, error) {
	if !side.Valid() {
		return nil, &domain.ValidationError{Message: "side must be buy or sell"}
	}
	if date.IsZero() {
		return nil, &domain.ValidationError{Message: "date is required"}
	}
	if isin == "" {
		return s.ledger.ListExecutions(ctx, side, date)
	}
	return s.ledger.FetchExecutions(ctx, isin, side, date)
}
