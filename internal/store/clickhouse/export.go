package clickhouse

import (
	"context"
	"fmt"
	"math"
	"time"

	"crossover-sim/internal/model"
	"crossover-sim/internal/pipeline"
)

// Exporter bulk-inserts completed runs.
type Exporter struct {
	conn *Conn
}

// NewExporter creates an Exporter on conn.
func NewExporter(conn *Conn) *Exporter {
	return &Exporter{conn: conn}
}

// ExportOutcome writes the run row, the price series and the ledger.
// Tables are ReplacingMergeTree, so exporting a run twice converges to one
// copy after merges.
func (e *Exporter) ExportOutcome(ctx context.Context, out *pipeline.Outcome) error {
	if err := e.insertRun(ctx, out); err != nil {
		return err
	}
	if err := e.insertSeries(ctx, out.RunID, out.Series.Points()); err != nil {
		return err
	}
	if out.Result == nil {
		return nil
	}
	return e.insertLedger(ctx, out.RunID, out.Result.Ledger)
}

func (e *Exporter) insertRun(ctx context.Context, out *pipeline.Outcome) error {
	batch, err := e.conn.PrepareBatch(ctx, `
		INSERT INTO sim_runs (
			run_id, started_at, seed, days, start_price, mu, sigma, fee_rate, volume_threshold,
			initial_capital, final_value, roi, max_drawdown, trade_count, win_rate
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	p, s := out.Params, out.Summary
	if err := batch.Append(
		out.RunID, out.StartedAt, uint32(p.Seed), uint32(p.Days), p.StartPrice, p.Mu, p.Sigma,
		p.FeeRate, p.VolumeThreshold, p.InitialCapital, s.FinalValue, s.ROI, s.MaxDrawdown,
		uint32(s.TradeCount), s.WinRate,
	); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (e *Exporter) insertSeries(ctx context.Context, runID string, points []model.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	batch, err := e.conn.PrepareBatch(ctx, `
		INSERT INTO sim_price_series (run_id, day, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, pt := range points {
		row, err := seriesRow(runID, pt)
		if err != nil {
			return err
		}
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (e *Exporter) insertLedger(ctx context.Context, runID string, ledger []model.LedgerEntry) error {
	if len(ledger) == 0 {
		return nil
	}
	batch, err := e.conn.PrepareBatch(ctx, `
		INSERT INTO sim_ledger (run_id, day, price, ema_short, sma_medium, sma_long, cash, quantity, value)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, l := range ledger {
		row, err := ledgerRow(runID, l)
		if err != nil {
			return err
		}
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// dayColumn maps a date onto the Int32 day column.
func dayColumn(t time.Time) (int32, error) {
	n := model.DayNumber(t)
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("date %s outside the day column range", t.Format(model.DateLayout))
	}
	return int32(n), nil
}

func seriesRow(runID string, pt model.PricePoint) ([]any, error) {
	day, err := dayColumn(pt.Date)
	if err != nil {
		return nil, err
	}
	return []any{runID, day, pt.Open, pt.High, pt.Low, pt.Close, pt.Volume}, nil
}

func ledgerRow(runID string, l model.LedgerEntry) ([]any, error) {
	day, err := dayColumn(l.Date)
	if err != nil {
		return nil, err
	}
	return []any{runID, day, l.Price, l.EMAShort, l.SMAMedium, l.SMALong, l.Cash, l.Quantity, l.Value}, nil
}

// CountRuns returns the number of distinct exported runs.
func (e *Exporter) CountRuns(ctx context.Context) (uint64, error) {
	var n uint64
	if err := e.conn.QueryRow(ctx, `SELECT uniqExact(run_id) FROM sim_runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}
