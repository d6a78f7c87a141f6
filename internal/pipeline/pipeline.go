// Package pipeline runs one simulation end to end:
// generate → indicators → simulate → summarize.
//
// Each stage hands a read-only value to the next, so independent runs share
// no state and may execute concurrently.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"crossover-sim/internal/backtest"
	"crossover-sim/internal/indicator"
	"crossover-sim/internal/logger"
	"crossover-sim/internal/marketdata/gbm"
	"crossover-sim/internal/metrics"
	"crossover-sim/internal/model"
	"crossover-sim/internal/portfolio"
	"crossover-sim/internal/strategy"

	"github.com/google/uuid"
)

// Stage names used in logs and metrics.
const (
	StageGenerate  = "generate"
	StageIndicator = "indicators"
	StageSimulate  = "simulate"
	StageSummarize = "summarize"
)

// Outcome is everything a completed run produced.
type Outcome struct {
	RunID     string            `json:"run_id"`
	Params    model.SimParams   `json:"params"`
	Series    model.Series      `json:"-"`
	Frame     model.Frame       `json:"-"`
	Dropped   int               `json:"warmup_dropped"`
	Result    *backtest.Result  `json:"result"`
	Summary   portfolio.Summary `json:"summary"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// Options configures a run. The zero value is usable.
type Options struct {
	RunID   string // generated when empty
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Periods *indicator.Periods // defaults to indicator.DefaultPeriods
	Hooks   backtest.Hooks
}

// Run executes the full pipeline for cfg.
// The run ID is attached to ctx-derived log records.
func Run(ctx context.Context, cfg model.SimConfig, opts Options) (*Outcome, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logger.WithRunID(ctx, runID)

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = logger.ForRun(ctx, log)

	periods := indicator.DefaultPeriods()
	if opts.Periods != nil {
		periods = *opts.Periods
	}

	out := &Outcome{RunID: runID, Params: cfg.Params(), StartedAt: time.Now()}
	m := opts.Metrics
	fail := func(stage string, err error) (*Outcome, error) {
		if m != nil {
			m.RunFailures.WithLabelValues(stage).Inc()
		}
		log.Error("run failed", "stage", stage, "error", err)
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	observe := func(stage string, start time.Time) {
		if m != nil {
			m.ObserveStage(stage, time.Since(start))
		}
	}

	log.Info("generating synthetic price data",
		"days", cfg.Days(), "start_price", cfg.StartPrice(), "seed", cfg.Seed(),
		"end_date", cfg.EndDate().Format(model.DateLayout))
	t0 := time.Now()
	series, err := gbm.Generate(cfg)
	if err != nil {
		return fail(StageGenerate, err)
	}
	observe(StageGenerate, t0)
	out.Series = series

	engine := indicator.NewEngine(periods)
	log.Info("calculating technical indicators", "indicators", engine.Names())
	t0 = time.Now()
	frame, dropped, err := engine.Build(series)
	if err != nil {
		return fail(StageIndicator, err)
	}
	observe(StageIndicator, t0)
	out.Frame = frame
	out.Dropped = dropped
	log.Info("dropped warm-up rows", "dropped", dropped, "remaining", frame.Len())

	log.Info("running trading simulation", "window", backtest.WindowDays)
	t0 = time.Now()
	hooks := opts.Hooks
	if m != nil {
		onTrade := hooks.OnTrade
		hooks.OnTrade = func(tr model.Trade) {
			m.TradesTotal.WithLabelValues(string(tr.Side)).Inc()
			if onTrade != nil {
				onTrade(tr)
			}
		}
	}
	sim := backtest.New(
		backtest.ConfigFrom(cfg),
		strategy.NewCrossover(cfg.VolumeThreshold(), log),
		backtest.WithLogger(log),
		backtest.WithHooks(hooks),
	)
	res, err := sim.Run(frame)
	if err != nil {
		return fail(StageSimulate, err)
	}
	observe(StageSimulate, t0)
	out.Result = res

	t0 = time.Now()
	out.Summary = portfolio.Summarize(cfg.InitialCapital(), res.FinalValue, res.Ledger, res.Trades)
	observe(StageSummarize, t0)
	out.Duration = time.Since(out.StartedAt)

	if m != nil {
		m.RunsTotal.Inc()
		m.SimulatedDays.Add(float64(len(res.Ledger)))
		m.WarmupDropped.Set(float64(dropped))
		m.FinalValue.Set(out.Summary.FinalValue)
		m.ROI.Set(out.Summary.ROI)
		m.MaxDrawdown.Set(out.Summary.MaxDrawdown)
		m.WinRate.Set(out.Summary.WinRate)
		m.RunDuration.Observe(out.Duration.Seconds())
	}

	log.Info("run complete",
		"final_value", out.Summary.FinalValue,
		"net_profit", out.Summary.NetProfit,
		"roi_pct", out.Summary.ROIPct(),
		"max_drawdown_pct", out.Summary.MaxDrawdownPct(),
		"trades", out.Summary.TradeCount,
		"win_rate_pct", out.Summary.WinRatePct(),
		"duration", out.Duration.String(),
	)
	return out, nil
}
