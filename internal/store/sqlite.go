package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/efreitasn/isinprofit/internal/domain"
)

// SQLLedger is a ledger persisted in SQLite. Quantities and prices are
// stored as decimal text, exec times as Unix nanoseconds so ordering is
// numeric.
type SQLLedger struct {
	db *sql.DB
}

// OpenSQLLedger opens (or creates) the SQLite database at path and ensures
// the executions table exists. Use ":memory:" for a throwaway ledger.
func OpenSQLLedger(path string) (*SQLLedger, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	l, err := NewSQLLedger(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// NewSQLLedger wraps an existing database handle.
func NewSQLLedger(db *sql.DB) (*SQLLedger, error) {
	l := &SQLLedger{db: db}
	if err := l.ensureSchema(); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return l, nil
}

// Close releases the underlying database.
func (l *SQLLedger) Close() error {
	return l.db.Close()
}

func (l *SQLLedger) ensureSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT    NOT NULL UNIQUE,
			isin       TEXT    NOT NULL,
			side       TEXT    NOT NULL CHECK (side IN ('buy', 'sell')),
			quantity   TEXT    NOT NULL,
			price      TEXT    NOT NULL,
			trade_date TEXT    NOT NULL,
			exec_time  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_series
			ON executions (isin, side, trade_date, exec_time, seq);
		CREATE INDEX IF NOT EXISTS idx_executions_side_date
			ON executions (side, trade_date, exec_time, seq);
	`)
	return err
}

const selectColumns = `SELECT id, isin, side, quantity, price, trade_date, exec_time FROM executions`

// Append validates e and inserts it.
func (l *SQLLedger) Append(ctx context.Context, e domain.Execution) (domain.Execution, error) {
	if err := domain.ValidateExecution(e); err != nil {
		return domain.Execution{}, err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO executions (id, isin, side, quantity, price, trade_date, exec_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.ISIN,
		string(e.Side),
		e.Quantity.String(),
		e.Price.String(),
		e.TradeDate.String(),
		e.ExecTime.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Execution{}, domain.ErrExecutionExists
		}
		return domain.Execution{}, fmt.Errorf("insert execution: %w", err)
	}
	return e, nil
}

// isUniqueViolation reports whether err is a duplicate key. Other
// constraint failures (NOT NULL, CHECK) are not.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// Get retrieves an execution by ID.
func (l *SQLLedger) Get(ctx context.Context, id string) (domain.Execution, error) {
	rows, err := l.db.QueryContext(ctx, selectColumns+` WHERE id = ?`, id)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("query execution %s: %w", id, err)
	}
	execs, err := scanExecutions(rows)
	if err != nil {
		return domain.Execution{}, err
	}
	if len(execs) == 0 {
		return domain.Execution{}, domain.ErrExecutionNotFound
	}
	return execs[0], nil
}

// FetchExecutions implements Reader.
func (l *SQLLedger) FetchExecutions(ctx context.Context, isin string, side domain.Side, date domain.Date) ([]domain.Execution, error) {
	rows, err := l.db.QueryContext(ctx, selectColumns+`
		WHERE isin = ? AND side = ? AND trade_date = ?
		ORDER BY exec_time, seq`,
		isin, string(side), date.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s executions on %s: %w", isin, side, date, err)
	}
	return scanExecutions(rows)
}

// ListExecutions returns all executions of side on date across ISINs.
func (l *SQLLedger) ListExecutions(ctx context.Context, side domain.Side, date domain.Date) ([]domain.Execution, error) {
	rows, err := l.db.QueryContext(ctx, selectColumns+`
		WHERE side = ? AND trade_date = ?
		ORDER BY exec_time, seq`,
		string(side), date.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s executions on %s: %w", side, date, err)
	}
	return scanExecutions(rows)
}

// PrevTradeDate implements DateSeeker.
func (l *SQLLedger) PrevTradeDate(ctx context.Context, isin string, side domain.Side, onOrBefore domain.Date) (domain.Date, bool, error) {
	return l.seekDate(ctx, `SELECT MAX(trade_date) FROM executions
		WHERE isin = ? AND side = ? AND trade_date <= ?`, isin, side, onOrBefore)
}

// NextTradeDate implements DateSeeker.
func (l *SQLLedger) NextTradeDate(ctx context.Context, isin string, side domain.Side, onOrAfter domain.Date) (domain.Date, bool, error) {
	return l.seekDate(ctx, `SELECT MIN(trade_date) FROM executions
		WHERE isin = ? AND side = ? AND trade_date >= ?`, isin, side, onOrAfter)
}

func (l *SQLLedger) seekDate(ctx context.Context, query, isin string, side domain.Side, from domain.Date) (domain.Date, bool, error) {
	var found sql.NullString
	if err := l.db.QueryRowContext(ctx, query, isin, string(side), from.String()).Scan(&found); err != nil {
		return domain.Date{}, false, fmt.Errorf("seek trade date for %s %s: %w", isin, side, err)
	}
	if !found.Valid {
		return domain.Date{}, false, nil
	}
	d, err := domain.ParseDate(found.String)
	if err != nil {
		return domain.Date{}, false, err
	}
	return d, true, nil
}

func scanExecutions(rows *sql.Rows) ([]domain.Execution, error) {
	defer rows.Close()

	execs := []domain.Execution{}
	for rows.Next() {
		var (
			e         domain.Execution
			side      string
			tradeDate string
			execNanos int64
			quantity  decimal.Decimal
			price     decimal.Decimal
		)
		if err := rows.Scan(&e.ID, &e.ISIN, &side, &quantity, &price, &tradeDate, &execNanos); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		d, err := domain.ParseDate(tradeDate)
		if err != nil {
			return nil, fmt.Errorf("execution %s: %w", e.ID, err)
		}
		e.Side = domain.Side(side)
		e.Quantity = quantity
		e.Price = price
		e.TradeDate = d
		e.ExecTime = time.Unix(0, execNanos).UTC()
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return execs, nil
}
