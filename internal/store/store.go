// Package store persists daily bars in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/Zereker/quotesock/internal/ingest"
)

const (
	// DriverSQLite selects modernc.org/sqlite.
	DriverSQLite   = "sqlite"
	// DriverPostgres selects lib/pq.
	DriverPostgres = "postgres"
)

// ErrNotFound is returned by GetDaily when no row matches.
var ErrNotFound = errors.New("daily bar not found")

var dailyColumns = []string{
	"ts_code", "trade_date", "open", "high", "low", "close",
	"pre_close", "change", "pct_chg", "vol", "amount", "updated_at",
}

const schema = `
CREATE TABLE IF NOT EXISTS equity_daily (
	ts_code    TEXT NOT NULL,
	trade_date TEXT NOT NULL,
	open       NUMERIC,
	high       NUMERIC,
	low        NUMERIC,
	close      NUMERIC,
	pre_close  NUMERIC,
	change     NUMERIC,
	pct_chg    NUMERIC,
	vol        NUMERIC,
	amount     NUMERIC,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (ts_code, trade_date)
)`

// Store reads and writes the equity_daily table.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to driver/dsn and creates the schema. For sqlite, dsn is a
// file path whose directory is created on demand.
func Open(driver, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)

	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "data/quotes.db"
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, errors.Wrap(err, "create db dir")
		}
		if db, err = sql.Open(DriverSQLite, dsn); err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=3000;"} {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, errors.Wrapf(err, "exec %s", pragma)
			}
		}
	case DriverPostgres:
		if db, err = sql.Open(DriverPostgres, dsn); err != nil {
			return nil, errors.Wrap(err, "open postgres")
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "ping postgres")
		}
	default:
		return nil, errors.Errorf("unsupported store driver %q", driver)
	}

	s := &Store{db: db, driver: driver, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, "create equity_daily")
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// placeholder returns the n-th (1-based) bind parameter for the driver.
func (s *Store) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *Store) upsertQuery() string {
	marks := make([]string, len(dailyColumns))
	for i := range dailyColumns {
		marks[i] = s.placeholder(i + 1)
	}

	var updates []string
	for _, c := range dailyColumns[2:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	return fmt.Sprintf(
		"INSERT INTO equity_daily (%s) VALUES (%s) ON CONFLICT (ts_code, trade_date) DO UPDATE SET %s",
		strings.Join(dailyColumns, ", "),
		strings.Join(marks, ", "),
		strings.Join(updates, ", "),
	)
}

// UpsertDaily writes bars in one transaction. Rows sharing a key with an
// existing row replace it.
func (s *Store) UpsertDaily(ctx context.Context, bars []ingest.DailyBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.upsertQuery())
	if err != nil {
		return 0, errors.Wrap(err, "prepare upsert")
	}
	defer stmt.Close()

	updatedAt := s.now().UTC().Format(time.RFC3339)
	for _, b := range bars {
		if b.TSCode == "" || b.TradeDate == "" {
			return 0, errors.Errorf("daily bar lacks key: %+v", b)
		}
		if _, err := stmt.ExecContext(ctx,
			b.TSCode, b.TradeDate,
			b.Open, b.High, b.Low, b.Close,
			b.PreClose, b.Change, b.PctChg, b.Vol, b.Amount,
			updatedAt,
		); err != nil {
			return 0, errors.Wrapf(err, "upsert %s %s", b.TSCode, b.TradeDate)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit upsert")
	}
	return len(bars), nil
}

// CountDaily returns the number of rows stored for tradeDate.
func (s *Store) CountDaily(ctx context.Context, tradeDate string) (int, error) {
	var n int
	query := "SELECT COUNT(*) FROM equity_daily WHERE trade_date = " + s.placeholder(1)
	if err := s.db.QueryRowContext(ctx, query, tradeDate).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count equity_daily")
	}
	return n, nil
}

// GetDaily returns one stored bar, or ErrNotFound.
func (s *Store) GetDaily(ctx context.Context, tsCode, tradeDate string) (ingest.DailyBar, error) {
	query := fmt.Sprintf(
		"SELECT open, high, low, close, pre_close, change, pct_chg, vol, amount FROM equity_daily WHERE ts_code = %s AND trade_date = %s",
		s.placeholder(1), s.placeholder(2),
	)

	b := ingest.DailyBar{TSCode: tsCode, TradeDate: tradeDate}
	err := s.db.QueryRowContext(ctx, query, tsCode, tradeDate).Scan(
		&b.Open, &b.High, &b.Low, &b.Close,
		&b.PreClose, &b.Change, &b.PctChg, &b.Vol, &b.Amount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.DailyBar{}, ErrNotFound
	}
	if err != nil {
		return ingest.DailyBar{}, errors.Wrap(err, "get equity_daily")
	}
	return b, nil
}

var _ ingest.Sink = (*Store)(nil)
