package execution

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"crossover-sim/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists trade fills to SQLite for analysis and audit.
type Journal struct {
	mu  sync.Mutex
	db  *sql.DB
	log *slog.Logger
}

// NewJournal opens (or creates) a SQLite journal database. A nil log uses
// slog.Default.
func NewJournal(dbPath string, log *slog.Logger) (*Journal, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS journal_trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		order_id    TEXT NOT NULL,
		strategy    TEXT NOT NULL,
		side        TEXT NOT NULL,
		day         INTEGER NOT NULL,
		price       REAL NOT NULL,
		quantity    REAL NOT NULL,
		value       REAL NOT NULL,
		reason      TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_journal_trades_run ON journal_trades(run_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	log = log.With("component", "journal")
	log.Info("opened trade journal", "path", dbPath)
	return &Journal{db: db, log: log}, nil
}

// RecordFills persists a run's fills in one transaction.
func (j *Journal) RecordFills(runID string, fills []Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO journal_trades (run_id, seq, order_id, strategy, side, day, price, quantity, value, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("journal prepare: %w", err)
	}
	defer stmt.Close()

	for i, f := range fills {
		if _, err := stmt.Exec(
			runID, i, f.OrderID, f.Signal.StrategyName, string(f.Trade.Side),
			model.DayNumber(f.Trade.Date), f.Trade.Price, f.Trade.Quantity, f.Trade.Value,
			f.Signal.Reason,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("journal insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	j.log.Debug("recorded fills", "run_id", runID, "fills", len(fills))
	return nil
}

// TradeRecord represents a row from the journal.
type TradeRecord struct {
	ID       int64   `json:"id"`
	RunID    string  `json:"run_id"`
	OrderID  string  `json:"order_id"`
	Strategy string  `json:"strategy"`
	Side     string  `json:"side"`
	Day      int64   `json:"day"`
	Date     string  `json:"date"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Value    float64 `json:"value"`
	Reason   string  `json:"reason"`
}

// Trade converts the record back into a model trade.
func (r TradeRecord) Trade() model.Trade {
	return model.Trade{
		Side:     model.Side(r.Side),
		Date:     model.DateFromDayNumber(r.Day),
		Price:    r.Price,
		Quantity: r.Quantity,
		Value:    r.Value,
	}
}

// Trades returns a run's trades in execution order.
func (j *Journal) Trades(runID string) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, run_id, order_id, strategy, side, day, price, quantity, value, COALESCE(reason, '')
		 FROM journal_trades WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.RunID, &t.OrderID, &t.Strategy, &t.Side,
			&t.Day, &t.Price, &t.Quantity, &t.Value, &t.Reason); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		t.Date = model.DateFromDayNumber(t.Day).Format(model.DateLayout)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
