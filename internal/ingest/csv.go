// Package ingest reads trade ledger exports into executions.
package ingest

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/efreitasn/isinprofit/internal/domain"
)

// sheetRow is one row of a ledger export. Column names follow the broker
// trade sheet; "Trade ID" is optional.
type sheetRow struct {
	TradeID   string `csv:"Trade ID"`
	ISIN      string `csv:"ISIN"`
	TradeType string `csv:"Trade Type"`
	Quantity  string `csv:"Quantity"`
	Price     string `csv:"Price"`
	TradeDate string `csv:"Trade Date"`
	ExecTime  string `csv:"Order Execution Time"`
}

// Layouts accepted for the execution time column. Clock-only values are
// placed on the row's trade date.
var (
	dateTimeLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
	}
	clockLayouts = []string{
		"15:04:05",
		"15:04",
	}
)

// ParseCSV decodes a ledger export. Timestamps without a zone are read in
// loc. Every row is validated; the first invalid row aborts the parse with
// an error naming its line.
func ParseCSV(r io.Reader, loc *time.Location) ([]domain.Execution, error) {
	var rows []*sheetRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}

	execs := make([]domain.Execution, 0, len(rows))
	for i, row := range rows {
		line := i + 2 // header is line 1
		e, err := row.execution(loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := domain.ValidateExecution(e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		execs = append(execs, e)
	}
	return execs, nil
}

func (row *sheetRow) execution(loc *time.Location) (domain.Execution, error) {
	quantity, err := domain.ParseAmount(row.Quantity)
	if err != nil {
		return domain.Execution{}, &domain.ValidationError{Message: "quantity: " + err.Error()}
	}
	price, err := domain.ParseAmount(row.Price)
	if err != nil {
		return domain.Execution{}, &domain.ValidationError{Message: "price: " + err.Error()}
	}
	tradeDate, err := domain.ParseDate(strings.TrimSpace(row.TradeDate))
	if err != nil {
		return domain.Execution{}, &domain.ValidationError{Message: "trade date: " + err.Error()}
	}
	execTime, err := parseExecTime(strings.TrimSpace(row.ExecTime), tradeDate, loc)
	if err != nil {
		return domain.Execution{}, &domain.ValidationError{Message: "execution time: " + err.Error()}
	}

	return domain.Execution{
		ID:        strings.TrimSpace(row.TradeID),
		ISIN:      strings.TrimSpace(row.ISIN),
		Side:      domain.Side(strings.ToLower(strings.TrimSpace(row.TradeType))),
		Quantity:  quantity,
		Price:     price,
		TradeDate: tradeDate,
		ExecTime:  execTime,
	}, nil
}

func parseExecTime(s string, on domain.Date, loc *time.Location) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range clockLayouts {
		if clock, err := time.Parse(layout, s); err == nil {
			return on.At(clock, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
