package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/efreitasn/isinprofit/internal/domain"
	"github.com/efreitasn/isinprofit/internal/engine"
	"github.com/efreitasn/isinprofit/internal/store"
	"github.com/efreitasn/isinprofit/internal/tracing"
)

// DailyProfit is the realized profit of every sell executed on one date.
type DailyProfit struct {
	Date            domain.Date
	ByISIN          map[string]decimal.Decimal
	UnmatchedByISIN map[string]decimal.Decimal // only ISINs with a shortfall
	Total           decimal.Decimal
	SellCount       int
	Skipped         int // invalid sells left out of the computation
}

// RangeProfit aggregates DailyProfit over an inclusive date range. Dates
// without sells are absent from ByDate and Days.
type RangeProfit struct {
	From      domain.Date
	To        domain.Date
	ByDate    map[domain.Date]decimal.Decimal
	Days      []*DailyProfit // ascending by date
	Total     decimal.Decimal
	SellCount int
}

// ProfitOptions tunes batch computation.
type ProfitOptions struct {
	Workers      int           // concurrent matches, at least 1
	MatchTimeout time.Duration // per-match deadline, 0 for none
	MaxRangeDays int           // longest accepted range, in days
}

// ProfitService computes realized profit for sell executions in the ledger.
type ProfitService struct {
	ledger  store.Ledger
	matcher *engine.LotMatcher
	opts    ProfitOptions
	logger  *slog.Logger
}

// NewProfitService creates a new ProfitService with the given dependencies.
func NewProfitService(ledger store.Ledger, matcher *engine.LotMatcher, opts ProfitOptions, logger *slog.Logger) *ProfitService {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &ProfitService{
		ledger:  ledger,
		matcher: matcher,
		opts:    opts,
		logger:  logger,
	}
}

// MatchExecution returns the lot breakdown for a single sell execution.
func (s *ProfitService) MatchExecution(ctx context.Context, id string) (*engine.MatchResult, error) {
	sell, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sell.Side != domain.SideSell {
		return nil, domain.ErrNotASell
	}
	if err := domain.ValidateExecution(sell); err != nil {
		return nil, err
	}
	return s.match(ctx, sell)
}

// ProfitForDate matches every sell executed on date and sums the profit
// per ISIN. It returns domain.ErrNoSellExecutions when there is nothing to
// compute.
func (s *ProfitService) ProfitForDate(ctx context.Context, date domain.Date) (*DailyProfit, error) {
	if date.IsZero() {
		return nil, &domain.ValidationError{Message: "date is required"}
	}

	ctx, span := tracing.StartSpan(ctx, "profit.date", attribute.String("date", date.String()))
	defer span.End()

	sells, err := s.ledger.ListExecutions(ctx, domain.SideSell, date)
	if err != nil {
		return nil, fmt.Errorf("list sells on %s: %w", date, err)
	}
	valid, skipped := s.validSells(sells)
	if len(valid) == 0 {
		return nil, domain.ErrNoSellExecutions
	}

	results, err := s.matchAll(ctx, valid)
	if err != nil {
		return nil, err
	}

	day := newDailyProfit(date)
	day.Skipped = skipped
	for _, res := range results {
		day.add(res)
	}
	span.SetAttributes(attribute.Int("sell_count", day.SellCount))
	return day, nil
}

// ProfitForRange computes ProfitForDate for every date in [from, to] and
// totals them. It returns domain.ErrNoSellExecutions when no date in the
// range has sells.
func (s *ProfitService) ProfitForRange(ctx context.Context, from, to domain.Date) (*RangeProfit, error) {
	if from.IsZero() || to.IsZero() {
		return nil, &domain.ValidationError{Message: "from and to are required"}
	}
	if to.Before(from) {
		return nil, &domain.ValidationError{Message: "from must not be after to"}
	}
	if s.opts.MaxRangeDays > 0 && from.DaysUntil(to)+1 > s.opts.MaxRangeDays {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("range must span at most %d days", s.opts.MaxRangeDays),
		}
	}

	ctx, span := tracing.StartSpan(ctx, "profit.range",
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	)
	defer span.End()

	var sells []domain.Execution
	skippedByDate := make(map[domain.Date]int)
	for d := from; !d.After(to); d = d.AddDays(1) {
		daySells, err := s.ledger.ListExecutions(ctx, domain.SideSell, d)
		if err != nil {
			return nil, fmt.Errorf("list sells on %s: %w", d, err)
		}
		valid, skipped := s.validSells(daySells)
		sells = append(sells, valid...)
		if skipped > 0 {
			skippedByDate[d] = skipped
		}
	}
	if len(sells) == 0 {
		return nil, domain.ErrNoSellExecutions
	}

	results, err := s.matchAll(ctx, sells)
	if err != nil {
		return nil, err
	}

	days := make(map[domain.Date]*DailyProfit)
	for _, res := range results {
		day, ok := days[res.TradeDate]
		if !ok {
			day = newDailyProfit(res.TradeDate)
			day.Skipped = skippedByDate[res.TradeDate]
			days[res.TradeDate] = day
		}
		day.add(res)
	}

	out := &RangeProfit{
		From:   from,
		To:     to,
		ByDate: make(map[domain.Date]decimal.Decimal, len(days)),
		Days:   make([]*DailyProfit, 0, len(days)),
		Total:  decimal.Zero,
	}
	for d, day := range days {
		out.ByDate[d] = day.Total
		out.Days = append(out.Days, day)
		out.Total = out.Total.Add(day.Total)
		out.SellCount += day.SellCount
	}
	sort.Slice(out.Days, func(i, j int) bool {
		return out.Days[i].Date.Before(out.Days[j].Date)
	})
	span.SetAttributes(attribute.Int("sell_count", out.SellCount))
	return out, nil
}

// validSells drops executions that would violate the matcher's input
// contract.
func (s *ProfitService) validSells(sells []domain.Execution) ([]domain.Execution, int) {
	valid := make([]domain.Execution, 0, len(sells))
	for _, sell := range sells {
		if err := domain.ValidateExecution(sell); err != nil {
			s.logger.Warn("skipping invalid sell execution",
				slog.String("sell_id", sell.ID),
				slog.String("isin", sell.ISIN),
				slog.String("error", err.Error()),
			)
			continue
		}
		valid = append(valid, sell)
	}
	return valid, len(sells) - len(valid)
}

// matchAll runs independent matches with at most Workers in flight.
// Results keep the order of sells. The first failure cancels the rest.
func (s *ProfitService) matchAll(ctx context.Context, sells []domain.Execution) ([]*engine.MatchResult, error) {
	results := make([]*engine.MatchResult, len(sells))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i := range sells {
		i := i
		g.Go(func() error {
			res, err := s.match(gctx, sells[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *ProfitService) match(ctx context.Context, sell domain.Execution) (*engine.MatchResult, error) {
	if s.opts.MatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.MatchTimeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, "profit.match",
		attribute.String("isin", sell.ISIN),
		attribute.String("sell_id", sell.ID),
	)
	defer span.End()

	res, err := s.matcher.Match(ctx, sell)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("sell %s: match timed out: %w", sell.ID, err)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("profit", res.Profit.String()),
		attribute.Int("lots", len(res.Lots)),
	)
	if res.Exhausted() {
		s.logger.Warn("sell quantity left unmatched",
			slog.String("sell_id", sell.ID),
			slog.String("isin", sell.ISIN),
			slog.String("trade_date", sell.TradeDate.String()),
			slog.String("unmatched", res.Unmatched.String()),
			slog.String("quantity", sell.Quantity.String()),
		)
	}
	return res, nil
}

func newDailyProfit(date domain.Date) *DailyProfit {
	return &DailyProfit{
		Date:            date,
		ByISIN:          make(map[string]decimal.Decimal),
		UnmatchedByISIN: make(map[string]decimal.Decimal),
		Total:           decimal.Zero,
	}
}

func (d *DailyProfit) add(res *engine.MatchResult) {
	d.ByISIN[res.ISIN] = d.ByISIN[res.ISIN].Add(res.Profit)
	if res.Exhausted() {
		d.UnmatchedByISIN[res.ISIN] = d.UnmatchedByISIN[res.ISIN].Add(res.Unmatched)
	}
	d.Total = d.Total.Add(res.Profit)
	d.SellCount++
}
