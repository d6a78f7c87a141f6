// Package backtest runs a strategy day by day over the trailing window of an
// indicator frame and produces the trade log, daily ledger and final value.
package backtest

import (
	"errors"
	"fmt"
	"log/slog"

	"crossover-sim/internal/execution"
	"crossover-sim/internal/model"
	"crossover-sim/internal/portfolio"
	"crossover-sim/internal/strategy"
)

// WindowDays is the number of trailing frame rows that are traded.
const WindowDays = 60

// ErrInsufficientData is returned when the frame is shorter than the window.
var ErrInsufficientData = errors.New("insufficient data for simulation window")

// Hooks receive simulation events as they happen. Nil hooks are skipped.
type Hooks struct {
	OnTrade func(model.Trade)
	OnDay   func(model.LedgerEntry, strategy.Signal)
}

// Config configures a Simulator.
type Config struct {
	InitialCapital float64
	FeeRate        float64
	Window         int // defaults to WindowDays
}

// ConfigFrom maps a validated simulation config.
func ConfigFrom(cfg model.SimConfig) Config {
	return Config{
		InitialCapital: cfg.InitialCapital(),
		FeeRate:        cfg.FeeRate(),
		Window:         WindowDays,
	}
}

// Result is the simulator output.
type Result struct {
	FinalValue float64             `json:"final_value"`
	Trades     []model.Trade       `json:"trades"`
	Ledger     []model.LedgerEntry `json:"ledger"`
	Fills      []execution.Fill    `json:"-"`
}

// Simulator drives a strategy over a frame.
type Simulator struct {
	cfg      Config
	strategy strategy.Strategy
	hooks    Hooks
	log      *slog.Logger
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithLogger sets the logger used for the per-day table.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

// WithHooks registers event hooks.
func WithHooks(h Hooks) Option {
	return func(s *Simulator) { s.hooks = h }
}

// New creates a simulator.
func New(cfg Config, strat strategy.Strategy, opts ...Option) *Simulator {
	if cfg.Window <= 0 {
		cfg.Window = WindowDays
	}
	s := &Simulator{cfg: cfg, strategy: strat}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	return s
}

// Run simulates the last Window rows of frame.
//
// Each day compares against the row immediately before it. When the frame
// holds exactly Window rows, the first day has no predecessor and holds.
func (s *Simulator) Run(frame model.Frame) (*Result, error) {
	n := frame.Len()
	if n < s.cfg.Window {
		return nil, fmt.Errorf("%w: have %d rows, need %d", ErrInsufficientData, n, s.cfg.Window)
	}

	pos := portfolio.NewPosition(s.cfg.InitialCapital)
	exec := execution.NewPaperExecutor(pos, s.cfg.FeeRate, s.log)
	ledger := make([]model.LedgerEntry, 0, s.cfg.Window)

	start := n - s.cfg.Window
	for i := start; i < n; i++ {
		cur := frame.At(i)

		sig := strategy.Signal{
			StrategyName: s.strategy.Name(),
			Action:       strategy.ActionHold,
			Date:         cur.Date,
			Price:        cur.Close,
		}
		if i > 0 {
			sig = s.strategy.Decide(frame.At(i-1), cur, pos.Holding())
		}

		fill, err := exec.Execute(sig)
		if err != nil {
			return nil, fmt.Errorf("backtest %s: %w", cur.Date.Format(model.DateLayout), err)
		}
		if fill != nil && s.hooks.OnTrade != nil {
			s.hooks.OnTrade(fill.Trade)
		}

		entry := model.LedgerEntry{
			Date:      cur.Date,
			Price:     cur.Close,
			EMAShort:  cur.EMAShort,
			SMAMedium: cur.SMAMedium,
			SMALong:   cur.SMALong,
			Cash:      pos.Cash(),
			Quantity:  pos.Quantity(),
			Value:     pos.Value(cur.Close),
		}
		ledger = append(ledger, entry)

		s.log.Info("day",
			"date", cur.Date.Format(model.DateLayout),
			"price", cur.Close,
			"ema", cur.EMAShort,
			"sma", cur.SMAMedium,
			"action", string(sig.Action),
			"portfolio", entry.Value,
		)
		if s.hooks.OnDay != nil {
			s.hooks.OnDay(entry, sig)
		}
	}

	last := frame.At(n - 1)
	return &Result{
		FinalValue: pos.Cash() + pos.Quantity()*last.Close,
		Trades:     exec.Trades(),
		Ledger:     ledger,
		Fills:      exec.Fills(),
	}, nil
}
