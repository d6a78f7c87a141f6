package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"crossover-sim/internal/model"
	"crossover-sim/internal/pipeline"

	_ "github.com/mattn/go-sqlite3"
)

const defaultQueueFlushDelay = 200 * time.Millisecond

// WriterConfig configures the SQLite run store.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/runs.db"
	Logger *slog.Logger
}

// Writer persists completed runs: parameters and summary, the generated
// price series and the daily ledger. It is a single-connection writer.
type Writer struct {
	db  *sql.DB
	log *slog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "sqlite")
	log.Info("opened run store", "path", cfg.DBPath)
	return &Writer{db: db, log: log}, nil
}

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id       TEXT    PRIMARY KEY,
			started_at   INTEGER NOT NULL,
			duration_us  INTEGER NOT NULL,
			params       TEXT    NOT NULL,
			summary      TEXT    NOT NULL,
			final_value  REAL    NOT NULL,
			roi          REAL    NOT NULL,
			max_drawdown REAL    NOT NULL,
			trade_count  INTEGER NOT NULL,
			win_rate     REAL    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS price_series (
			run_id TEXT    NOT NULL,
			day    INTEGER NOT NULL, -- days since 1970-01-01
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL    NOT NULL,
			PRIMARY KEY (run_id, day)
		);

		CREATE TABLE IF NOT EXISTS ledger (
			run_id     TEXT    NOT NULL,
			day        INTEGER NOT NULL,
			price      REAL NOT NULL,
			ema_short  REAL NOT NULL,
			sma_medium REAL NOT NULL,
			sma_long   REAL NOT NULL,
			cash       REAL NOT NULL,
			quantity   REAL NOT NULL,
			value      REAL NOT NULL,
			PRIMARY KEY (run_id, day)
		);
	`)
	return err
}

// SaveOutcome stores a completed run in a single transaction.
// Saving the same run ID twice replaces the earlier rows.
func (w *Writer) SaveOutcome(ctx context.Context, out *pipeline.Outcome) error {
	params, err := json.Marshal(out.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	summary, err := json.Marshal(out.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s := out.Summary
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (run_id, started_at, duration_us, params, summary, final_value, roi, max_drawdown, trade_count, win_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, out.RunID, out.StartedAt.UnixMilli(), out.Duration.Microseconds(), string(params), string(summary),
		s.FinalValue, s.ROI, s.MaxDrawdown, s.TradeCount, s.WinRate); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err := insertSeries(ctx, tx, out.RunID, out.Series.Points()); err != nil {
		return err
	}
	if out.Result != nil {
		if err := insertLedger(ctx, tx, out.RunID, out.Result.Ledger); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertSeries(ctx context.Context, tx *sql.Tx, runID string, points []model.PricePoint) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM price_series WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear price_series: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_series (run_id, day, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, runID, model.DayNumber(p.Date), p.Open, p.High, p.Low, p.Close, p.Volume); err != nil {
			return fmt.Errorf("insert price_series: %w", err)
		}
	}
	return nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, runID string, ledger []model.LedgerEntry) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger (run_id, day, price, ema_short, sma_medium, sma_long, cash, quantity, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range ledger {
		if _, err := stmt.ExecContext(ctx, runID, model.DayNumber(e.Date), e.Price,
			e.EMAShort, e.SMAMedium, e.SMALong, e.Cash, e.Quantity, e.Value); err != nil {
			return fmt.Errorf("insert ledger: %w", err)
		}
	}
	return nil
}

// Run drains outcomes from ch and saves each one.
// Blocks until ctx is cancelled or ch is closed; queued outcomes are
// saved before returning.
func (w *Writer) Run(ctx context.Context, ch <-chan *pipeline.Outcome) {
	save := func(out *pipeline.Outcome) {
		start := time.Now()
		// Use a fresh context so a shutdown does not abort an in-flight commit.
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.SaveOutcome(sctx, out); err != nil {
			w.log.Error("save run failed", "run_id", out.RunID, "error", err)
			return
		}
		w.log.Debug("saved run", "run_id", out.RunID, "elapsed", time.Since(start))
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case out, ok := <-ch:
					if !ok {
						return
					}
					save(out)
				case <-time.After(defaultQueueFlushDelay):
					return
				}
			}
		case out, ok := <-ch:
			if !ok {
				return
			}
			save(out)
		}
	}
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
