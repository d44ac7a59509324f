package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/efreitasn/isinprofit/internal/domain"
)

// ledgerEntry is a single execution positioned in a B-tree.
type ledgerEntry struct {
	Date domain.Date
	At   time.Time
	Seq  uint64
	Exec domain.Execution
}

// entryLess orders entries by trade date, then exec time, then insertion
// sequence. Real entries have Seq >= 1, so a pivot with Seq 0 and a zero
// time sorts before every entry on its date.
func entryLess(a, b ledgerEntry) bool {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c < 0
	}
	if !a.At.Equal(b.At) {
		return a.At.Before(b.At)
	}
	return a.Seq < b.Seq
}

func datePivot(d domain.Date) ledgerEntry {
	return ledgerEntry{Date: d}
}

type seriesKey struct {
	isin string
	side domain.Side
}

// MemoryLedger is a thread-safe in-memory ledger. Each (isin, side) series
// and each side across all ISINs is kept in its own B-tree so per-date
// reads are range scans.
type MemoryLedger struct {
	mu     sync.RWMutex
	series map[seriesKey]*btree.BTreeG[ledgerEntry]
	bySide map[domain.Side]*btree.BTreeG[ledgerEntry]
	byID   map[string]domain.Execution
	seq    uint64
}

const treeDegree = 32

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		series: make(map[seriesKey]*btree.BTreeG[ledgerEntry]),
		bySide: map[domain.Side]*btree.BTreeG[ledgerEntry]{
			domain.SideBuy:  btree.NewG[ledgerEntry](treeDegree, entryLess),
			domain.SideSell: btree.NewG[ledgerEntry](treeDegree, entryLess),
		},
		byID: make(map[string]domain.Execution),
	}
}

// Append validates e and adds it to the ledger.
func (l *MemoryLedger) Append(_ context.Context, e domain.Execution) (domain.Execution, error) {
	if err := domain.ValidateExecution(e); err != nil {
		return domain.Execution{}, err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[e.ID]; exists {
		return domain.Execution{}, domain.ErrExecutionExists
	}

	l.seq++
	entry := ledgerEntry{Date: e.TradeDate, At: e.ExecTime, Seq: l.seq, Exec: e}

	key := seriesKey{isin: e.ISIN, side: e.Side}
	tree, ok := l.series[key]
	if !ok {
		tree = btree.NewG[ledgerEntry](treeDegree, entryLess)
		l.series[key] = tree
	}
	tree.ReplaceOrInsert(entry)
	l.bySide[e.Side].ReplaceOrInsert(entry)
	l.byID[e.ID] = e
	return e, nil
}

// Get retrieves an execution by ID.
func (l *MemoryLedger) Get(_ context.Context, id string) (domain.Execution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.byID[id]
	if !ok {
		return domain.Execution{}, domain.ErrExecutionNotFound
	}
	return e, nil
}

// FetchExecutions implements Reader.
func (l *MemoryLedger) FetchExecutions(_ context.Context, isin string, side domain.Side, date domain.Date) ([]domain.Execution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return onDate(l.series[seriesKey{isin: isin, side: side}], date), nil
}

// ListExecutions returns all executions of side on date across ISINs.
func (l *MemoryLedger) ListExecutions(_ context.Context, side domain.Side, date domain.Date) ([]domain.Execution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return onDate(l.bySide[side], date), nil
}

// PrevTradeDate implements DateSeeker.
func (l *MemoryLedger) PrevTradeDate(_ context.Context, isin string, side domain.Side, onOrBefore domain.Date) (domain.Date, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tree := l.series[seriesKey{isin: isin, side: side}]
	if tree == nil {
		return domain.Date{}, false, nil
	}
	var found domain.Date
	var ok bool
	tree.DescendLessOrEqual(datePivot(onOrBefore.AddDays(1)), func(e ledgerEntry) bool {
		if e.Date.After(onOrBefore) {
			return true
		}
		found, ok = e.Date, true
		return false
	})
	return found, ok, nil
}

// NextTradeDate implements DateSeeker.
func (l *MemoryLedger) NextTradeDate(_ context.Context, isin string, side domain.Side, onOrAfter domain.Date) (domain.Date, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tree := l.series[seriesKey{isin: isin, side: side}]
	if tree == nil {
		return domain.Date{}, false, nil
	}
	var found domain.Date
	var ok bool
	tree.AscendGreaterOrEqual(datePivot(onOrAfter), func(e ledgerEntry) bool {
		found, ok = e.Date, true
		return false
	})
	return found, ok, nil
}

// onDate collects the entries of tree dated d. Callers hold the read lock.
func onDate(tree *btree.BTreeG[ledgerEntry], d domain.Date) []domain.Execution {
	result := []domain.Execution{}
	if tree == nil {
		return result
	}
	tree.AscendRange(datePivot(d), datePivot(d.AddDays(1)), func(e ledgerEntry) bool {
		result = append(result, e.Exec)
		return true
	})
	return result
}
