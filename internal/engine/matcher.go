package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/isinprofit/internal/domain"
	"github.com/efreitasn/isinprofit/internal/store"
)

// Phase names the pass that matched a lot.
type Phase string

const (
	// PhaseBackward covers buys strictly before the sell, walking back
	// from the sell date.
	PhaseBackward Phase = "backward"
	// PhaseSameDay covers buys later on the sell date itself, taken when
	// the sell date had too few earlier buys.
	PhaseSameDay Phase = "same_day"
	// PhaseForward covers buys after the sell, walking forward from the
	// sell date once the backward scan is exhausted.
	PhaseForward Phase = "forward"
)

// LotMatch is one buy execution (or part of one) offsetting a sell.
type LotMatch struct {
	BuyID     string
	TradeDate domain.Date
	ExecTime  time.Time
	Quantity  decimal.Decimal
	BuyPrice  decimal.Decimal
	Profit    decimal.Decimal
	Phase     Phase
}

// MatchResult is the realized profit of a single sell execution.
type MatchResult struct {
	SellID    string
	ISIN      string
	TradeDate domain.Date
	Profit    decimal.Decimal
	Matched   decimal.Decimal
	Unmatched decimal.Decimal
	Lots      []LotMatch
	Window    SearchWindow
}

// Exhausted reports whether the search window ran out before the whole
// sell quantity was offset. The unmatched part contributes no profit.
func (r *MatchResult) Exhausted() bool {
	return r.Unmatched.IsPositive()
}

// LotMatcher selects the buy executions that offset a sell execution and
// computes the resulting profit. It holds no state between calls and is
// safe for concurrent use as long as its reader is.
type LotMatcher struct {
	reader store.Reader
	floor  domain.Date
	now    func() time.Time
}

// NewLotMatcher creates a LotMatcher reading buys from reader. Backward
// scans stop at floor; forward scans stop at the current date as given
// by now.
func NewLotMatcher(reader store.Reader, floor domain.Date, now func() time.Time) *LotMatcher {
	if now == nil {
		now = time.Now
	}
	return &LotMatcher{reader: reader, floor: floor, now: now}
}

// Window returns the search window a match started now would use.
func (m *LotMatcher) Window() SearchWindow {
	return SearchWindow{Floor: m.floor, Ceiling: domain.DateOf(m.now())}
}

// Match computes the realized profit of sell. The sell must already be
// validated; Match returns an error only when the reader fails or ctx is
// done.
//
// Buys are consumed in two phases. The backward phase walks from the sell
// date down to the floor. On the sell date it first takes buys strictly
// earlier than the sell, then, if quantity remains, buys strictly later
// on the same date. On earlier dates every buy qualifies. The forward
// phase runs only if quantity still remains and walks from the sell date
// up to today, taking buys strictly later than the sell. Within a date
// buys are always taken in ascending exec time. A buy at exactly the
// sell's exec time is never taken, and no buy is taken twice.
func (m *LotMatcher) Match(ctx context.Context, sell domain.Execution) (*MatchResult, error) {
	window := m.Window()
	run := newMatchRun(sell, window)

	back := newDayPager(m.reader, sell.ISIN, sell.TradeDate, backward, window)
	for run.open() {
		page, ok, err := back.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("match %s: backward scan: %w", sell.ID, err)
		}
		if !ok {
			break
		}

		sellDate := page.Date == sell.TradeDate
		for i, buy := range page.Buys {
			if !run.open() {
				break
			}
			if sellDate && !buy.ExecTime.Before(sell.ExecTime) {
				continue
			}
			run.take(buy, page.Date, i, PhaseBackward)
		}

		if sellDate {
			for i, buy := range page.Buys {
				if !run.open() {
					break
				}
				if buy.ExecTime.After(sell.ExecTime) {
					run.take(buy, page.Date, i, PhaseSameDay)
				}
			}
		}
	}

	if run.open() {
		fwd := newDayPager(m.reader, sell.ISIN, sell.TradeDate, forward, window)
		for run.open() {
			page, ok, err := fwd.Next(ctx)
			if err != nil {
				return nil, fmt.Errorf("match %s: forward scan: %w", sell.ID, err)
			}
			if !ok {
				break
			}
			for i, buy := range page.Buys {
				if !run.open() {
					break
				}
				if buy.ExecTime.After(sell.ExecTime) {
					run.take(buy, page.Date, i, PhaseForward)
				}
			}
		}
	}

	return run.result(), nil
}

// lotKey identifies a buy within one match. Readers that do not assign
// IDs are keyed by date and position in the day's page.
type lotKey struct {
	id  string
	on  domain.Date
	pos int
}

func keyOf(buy domain.Execution, on domain.Date, pos int) lotKey {
	if buy.ID != "" {
		return lotKey{id: buy.ID}
	}
	return lotKey{on: on, pos: pos}
}

// matchRun is the sequential state of one Match call.
type matchRun struct {
	sell      domain.Execution
	window    SearchWindow
	remaining decimal.Decimal
	profit    decimal.Decimal
	consumed  map[lotKey]decimal.Decimal
	lots      []LotMatch
}

func newMatchRun(sell domain.Execution, window SearchWindow) *matchRun {
	return &matchRun{
		sell:      sell,
		window:    window,
		remaining: sell.Quantity,
		profit:    decimal.Zero,
		consumed:  make(map[lotKey]decimal.Decimal),
	}
}

func (r *matchRun) open() bool {
	return r.remaining.IsPositive()
}

// take offsets as much of the remaining sell quantity as buy still has.
func (r *matchRun) take(buy domain.Execution, on domain.Date, pos int, phase Phase) {
	key := keyOf(buy, on, pos)
	available := buy.Quantity.Sub(r.consumed[key])
	if !available.IsPositive() {
		return
	}
	qty := decimal.Min(r.remaining, available)
	profit := r.sell.Price.Sub(buy.Price).Mul(qty)

	r.profit = r.profit.Add(profit)
	r.remaining = r.remaining.Sub(qty)
	r.consumed[key] = r.consumed[key].Add(qty)
	r.lots = append(r.lots, LotMatch{
		BuyID:     buy.ID,
		TradeDate: on,
		ExecTime:  buy.ExecTime,
		Quantity:  qty,
		BuyPrice:  buy.Price,
		Profit:    profit,
		Phase:     phase,
	})
}

func (r *matchRun) result() *MatchResult {
	lots := r.lots
	if lots == nil {
		lots = []LotMatch{}
	}
	return &MatchResult{
		SellID:    r.sell.ID,
		ISIN:      r.sell.ISIN,
		TradeDate: r.sell.TradeDate,
		Profit:    r.profit,
		Matched:   r.sell.Quantity.Sub(r.remaining),
		Unmatched: r.remaining,
		Lots:      lots,
		Window:    r.window,
	}
}
