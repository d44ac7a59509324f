package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/isinprofit/internal/domain"
)

// newLedgerFunc builds an empty ledger for a contract test.
type newLedgerFunc func(t *testing.T) Ledger

func newTestExecution(id, isin string, side domain.Side, date string, clock string) domain.Execution {
	d := domain.MustParseDate(date)
	at, err := time.Parse("15:04", clock)
	if err != nil {
		panic(err)
	}
	return domain.Execution{
		ID:        id,
		ISIN:      isin,
		Side:      side,
		Quantity:  decimal.NewFromInt(10),
		Price:     decimal.RequireFromString("100.5"),
		TradeDate: d,
		ExecTime:  d.At(at, time.UTC),
	}
}

func mustAppend(t *testing.T, l Ledger, e domain.Execution) domain.Execution {
	t.Helper()
	stored, err := l.Append(context.Background(), e)
	if err != nil {
		t.Fatalf("append %s: %v", e.ID, err)
	}
	return stored
}

func ids(execs []domain.Execution) []string {
	out := make([]string, len(execs))
	for i, e := range execs {
		out[i] = e.ID
	}
	return out
}

func equalIDs(got []domain.Execution, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i].ID != want[i] {
			return false
		}
	}
	return true
}

// testLedgerContract runs the behaviour every Ledger implementation must share.
func testLedgerContract(t *testing.T, newLedger newLedgerFunc) {
	ctx := context.Background()

	t.Run("FetchOrdersByExecTime", func(t *testing.T) {
		l := newLedger(t)
		mustAppend(t, l, newTestExecution("late", "X", domain.SideBuy, "2024-06-03", "15:00"))
		mustAppend(t, l, newTestExecution("early", "X", domain.SideBuy, "2024-06-03", "09:00"))
		mustAppend(t, l, newTestExecution("mid", "X", domain.SideBuy, "2024-06-03", "11:30"))

		got, err := l.FetchExecutions(ctx, "X", domain.SideBuy, domain.MustParseDate("2024-06-03"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !equalIDs(got, "early", "mid", "late") {
			t.Fatalf("order = %v, want [early mid late]", ids(got))
		}
	})

	t.Run("FetchTiesKeepInsertionOrder", func(t *testing.T) {
		l := newLedger(t)
		mustAppend(t, l, newTestExecution("first", "X", domain.SideBuy, "2024-06-03", "10:00"))
		mustAppend(t, l, newTestExecution("second", "X", domain.SideBuy, "2024-06-03", "10:00"))

		got, _ := l.FetchExecutions(ctx, "X", domain.SideBuy, domain.MustParseDate("2024-06-03"))
		if !equalIDs(got, "first", "second") {
			t.Fatalf("order = %v, want [first second]", ids(got))
		}
	})

	t.Run("FetchIsScoped", func(t *testing.T) {
		l := newLedger(t)
		mustAppend(t, l, newTestExecution("match", "X", domain.SideBuy, "2024-06-03", "10:00"))
		mustAppend(t, l, newTestExecution("other-isin", "Y", domain.SideBuy, "2024-06-03", "10:00"))
		mustAppend(t, l, newTestExecution("other-side", "X", domain.SideSell, "2024-06-03", "10:00"))
		mustAppend(t, l, newTestExecution("other-day", "X", domain.SideBuy, "2024-06-04", "10:00"))
		mustAppend(t, l, newTestExecution("day-before", "X", domain.SideBuy, "2024-06-02", "23:59"))

		got, _ := l.FetchExecutions(ctx, "X", domain.SideBuy, domain.MustParseDate("2024-06-03"))
		if !equalIDs(got, "match") {
			t.Fatalf("got %v, want [match]", ids(got))
		}
	})

	t.Run("FetchEmptyIsNotNil", func(t *testing.T) {
		l := newLedger(t)
		got, err := l.FetchExecutions(ctx, "NONE", domain.SideBuy, domain.MustParseDate("2024-06-03"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", got)
		}
	})

	t.Run("RoundTripsValues", func(t *testing.T) {
		l := newLedger(t)
		in := newTestExecution("e1", "US0378331005", domain.SideSell, "2024-06-03", "10:15")
		in.Quantity = decimal.RequireFromString("2.125")
		in.Price = decimal.RequireFromString("101.37")
		mustAppend(t, l, in)

		got, err := l.Get(ctx, "e1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ISIN != in.ISIN || got.Side != in.Side || got.TradeDate != in.TradeDate {
			t.Fatalf("got %+v, want %+v", got, in)
		}
		if !got.Quantity.Equal(in.Quantity) || !got.Price.Equal(in.Price) {
			t.Fatalf("amounts = %s @ %s, want %s @ %s", got.Quantity, got.Price, in.Quantity, in.Price)
		}
		if !got.ExecTime.Equal(in.ExecTime) {
			t.Fatalf("exec time = %v, want %v", got.ExecTime, in.ExecTime)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		l := newLedger(t)
		if _, err := l.Get(ctx, "nope"); !errors.Is(err, domain.ErrExecutionNotFound) {
			t.Fatalf("expected ErrExecutionNotFound, got %v", err)
		}
	})

	t.Run("AppendAssignsID", func(t *testing.T) {
		l := newLedger(t)
		e := newTestExecution("", "X", domain.SideBuy, "2024-06-03", "10:00")
		stored := mustAppend(t, l, e)
		if stored.ID == "" {
			t.Fatal("expected an ID to be assigned")
		}
		if _, err := l.Get(ctx, stored.ID); err != nil {
			t.Fatalf("Get(%s): %v", stored.ID, err)
		}
	})

	t.Run("AppendRejectsDuplicateID", func(t *testing.T) {
		l := newLedger(t)
		mustAppend(t, l, newTestExecution("dup", "X", domain.SideBuy, "2024-06-03", "10:00"))
		_, err := l.Append(ctx, newTestExecution("dup", "X", domain.SideBuy, "2024-06-04", "10:00"))
		if !errors.Is(err, domain.ErrExecutionExists) {
			t.Fatalf("expected ErrExecutionExists, got %v", err)
		}
	})

	t.Run("AppendValidates", func(t *testing.T) {
		l := newLedger(t)
		e := newTestExecution("bad", "X", domain.SideBuy, "2024-06-03", "10:00")
		e.Quantity = decimal.Zero
		_, err := l.Append(ctx, e)
		var validationErr *domain.ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("ListAcrossISINs", func(t *testing.T) {
		l := newLedger(t)
		mustAppend(t, l, newTestExecution("y", "Y", domain.SideSell, "2024-06-03", "12:00"))
		mustAppend(t, l, newTestExecution("x", "X", domain.SideSell, "2024-06-03", "09:00"))
		mustAppend(t, l, newTestExecution("buy", "X", domain.SideBuy, "2024-06-03", "08:00"))
		mustAppend(t, l, newTestExecution("next-day", "X", domain.SideSell, "2024-06-04", "08:00"))

		got, err := l.ListExecutions(ctx, domain.SideSell, domain.MustParseDate("2024-06-03"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !equalIDs(got, "x", "y") {
			t.Fatalf("got %v, want [x y]", ids(got))
		}
	})

	t.Run("SeekTradeDates", func(t *testing.T) {
		l := newLedger(t)
		mustAppend(t, l, newTestExecution("a", "X", domain.SideBuy, "2024-01-10", "10:00"))
		mustAppend(t, l, newTestExecution("b", "X", domain.SideBuy, "2024-03-05", "10:00"))
		mustAppend(t, l, newTestExecution("c", "X", domain.SideSell, "2024-02-01", "10:00"))

		prev, ok, err := l.PrevTradeDate(ctx, "X", domain.SideBuy, domain.MustParseDate("2024-03-04"))
		if err != nil || !ok || prev != domain.MustParseDate("2024-01-10") {
			t.Fatalf("PrevTradeDate = %s, %v, %v; want 2024-01-10", prev, ok, err)
		}
		prev, ok, _ = l.PrevTradeDate(ctx, "X", domain.SideBuy, domain.MustParseDate("2024-03-05"))
		if !ok || prev != domain.MustParseDate("2024-03-05") {
			t.Fatalf("PrevTradeDate inclusive = %s, %v; want 2024-03-05", prev, ok)
		}
		if _, ok, _ := l.PrevTradeDate(ctx, "X", domain.SideBuy, domain.MustParseDate("2024-01-09")); ok {
			t.Fatal("PrevTradeDate before first buy should find nothing")
		}

		next, ok, err := l.NextTradeDate(ctx, "X", domain.SideBuy, domain.MustParseDate("2024-01-11"))
		if err != nil || !ok || next != domain.MustParseDate("2024-03-05") {
			t.Fatalf("NextTradeDate = %s, %v, %v; want 2024-03-05", next, ok, err)
		}
		if _, ok, _ := l.NextTradeDate(ctx, "X", domain.SideBuy, domain.MustParseDate("2024-03-06")); ok {
			t.Fatal("NextTradeDate after last buy should find nothing")
		}
		if _, ok, _ := l.NextTradeDate(ctx, "UNKNOWN", domain.SideBuy, domain.MustParseDate("2000-01-01")); ok {
			t.Fatal("unknown ISIN should find nothing")
		}
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		l := newLedger(t)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				e := newTestExecution(fmt.Sprintf("e-%d", i), "X", domain.SideBuy, "2024-06-03", "10:00")
				if _, err := l.Append(ctx, e); err != nil {
					t.Errorf("append: %v", err)
				}
			}(i)
			go func() {
				defer wg.Done()
				if _, err := l.FetchExecutions(ctx, "X", domain.SideBuy, domain.MustParseDate("2024-06-03")); err != nil {
					t.Errorf("fetch: %v", err)
				}
			}()
		}
		wg.Wait()

		got, _ := l.FetchExecutions(ctx, "X", domain.SideBuy, domain.MustParseDate("2024-06-03"))
		if len(got) != 50 {
			t.Fatalf("expected 50 executions, got %d", len(got))
		}
	})
}
