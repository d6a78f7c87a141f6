package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crossover-sim/internal/model"
	"crossover-sim/internal/portfolio"

	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when no run with the requested ID is stored.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is a stored run without its series and ledger.
type RunRecord struct {
	RunID     string            `json:"run_id"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
	Params    model.SimParams   `json:"params"`
	Summary   portfolio.Summary `json:"summary"`
}

// Reader provides read-only access to stored runs.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	return &Reader{db: db}, nil
}

// ListRuns returns up to limit runs, newest first.
func (r *Reader) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, started_at, duration_us, params, summary
		FROM runs
		ORDER BY started_at DESC, run_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// GetRun loads a single run by ID.
func (r *Reader) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, duration_us, params, summary
		FROM runs WHERE run_id = ?
	`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var (
		rec                 RunRecord
		startedMs, durUs    int64
		paramsJSON, sumJSON string
	)
	if err := s.Scan(&rec.RunID, &startedMs, &durUs, &paramsJSON, &sumJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("sqlite scan run: %w", err)
	}
	rec.StartedAt = time.UnixMilli(startedMs).UTC()
	rec.Duration = time.Duration(durUs) * time.Microsecond
	if err := json.Unmarshal([]byte(paramsJSON), &rec.Params); err != nil {
		return rec, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal([]byte(sumJSON), &rec.Summary); err != nil {
		return rec, fmt.Errorf("unmarshal summary: %w", err)
	}
	return rec, nil
}

// Ledger returns a run's daily ledger in date order.
func (r *Reader) Ledger(ctx context.Context, runID string) ([]model.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day, price, ema_short, sma_medium, sma_long, cash, quantity, value
		FROM ledger WHERE run_id = ?
		ORDER BY day ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query ledger: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var day int64
		if err := rows.Scan(&day, &e.Price, &e.EMAShort, &e.SMAMedium, &e.SMALong, &e.Cash, &e.Quantity, &e.Value); err != nil {
			return nil, fmt.Errorf("sqlite scan ledger: %w", err)
		}
		e.Date = model.DateFromDayNumber(day)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Series returns a run's generated price rows in date order.
func (r *Reader) Series(ctx context.Context, runID string) ([]model.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day, open, high, low, close, volume
		FROM price_series WHERE run_id = ?
		ORDER BY day ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query price_series: %w", err)
	}
	defer rows.Close()

	var out []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var day int64
		if err := rows.Scan(&day, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan price_series: %w", err)
		}
		p.Date = model.DateFromDayNumber(day)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
