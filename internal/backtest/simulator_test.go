package backtest

import (
	"testing"
	"time"

	"crossover-sim/internal/indicator"
	"crossover-sim/internal/marketdata/gbm"
	"crossover-sim/internal/model"
	"crossover-sim/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dayRow struct {
	ema, sma, close float64
}

// makeFrame builds a frame whose trend and volume filters always pass.
func makeFrame(t *testing.T, days []dayRow) model.Frame {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]model.IndicatorRow, len(days))
	for i, d := range days {
		rows[i] = model.IndicatorRow{
			PricePoint: model.PricePoint{
				Date: start.AddDate(0, 0, i), Open: d.close, High: d.close, Low: d.close, Close: d.close, Volume: 1000,
			},
			EMAShort:  d.ema,
			SMAMedium: d.sma,
			SMALong:   1,
			VolumeSMA: 1,
		}
	}
	f, err := model.NewFrame(rows)
	require.NoError(t, err)
	return f
}

func flat(n int) []dayRow {
	out := make([]dayRow, n)
	for i := range out {
		out[i] = dayRow{ema: 99, sma: 100, close: 100}
	}
	return out
}

func newSim(opts ...Option) *Simulator {
	return New(Config{InitialCapital: 1000, FeeRate: 0.001}, strategy.NewCrossover(1.2, nil), opts...)
}

func TestRun_InsufficientData(t *testing.T) {
	_, err := newSim().Run(makeFrame(t, flat(59)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = newSim().Run(model.Frame{})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRun_NoSignalsKeepsCash(t *testing.T) {
	res, err := newSim().Run(makeFrame(t, flat(80)))
	require.NoError(t, err)
	assert.Len(t, res.Ledger, WindowDays)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 1000.0, res.FinalValue)
}

func TestRun_OnlyTrailingWindowTraded(t *testing.T) {
	days := flat(70)
	// Crossover before the window must be ignored.
	days[5] = dayRow{ema: 101, sma: 100, close: 100}
	// Crossover inside the window at index 20, exit at 30.
	for i := 20; i < 30; i++ {
		days[i] = dayRow{ema: 101, sma: 100, close: 100 + float64(i-19)}
	}
	days[30] = dayRow{ema: 99, sma: 100, close: 120}

	res, err := newSim().Run(makeFrame(t, days))
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	buy, sell := res.Trades[0], res.Trades[1]
	assert.Equal(t, model.Buy, buy.Side)
	assert.Equal(t, "2024-01-21", buy.Date.Format(model.DateLayout))
	assert.InDelta(t, 1000.0, buy.Value, 1e-9)
	assert.InDelta(t, 999.0/101, buy.Quantity, 1e-12)

	assert.Equal(t, model.Sell, sell.Side)
	assert.InDelta(t, 999.0/101*120*0.999, sell.Value, 1e-9)
	assert.InDelta(t, sell.Value, res.FinalValue, 1e-9)

	assert.Equal(t, res.Ledger[len(res.Ledger)-1].Date, makeFrame(t, days).At(69).Date)
	assert.Equal(t, "2024-01-11", res.Ledger[0].Date.Format(model.DateLayout))
}

func TestRun_ExactWindowFirstDayHolds(t *testing.T) {
	days := flat(60)
	days[0] = dayRow{ema: 101, sma: 100, close: 100}
	res, err := newSim().Run(makeFrame(t, days))
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
}

func TestRun_OpenPositionValuedAtLastClose(t *testing.T) {
	days := flat(60)
	for i := 10; i < 60; i++ {
		days[i] = dayRow{ema: 101, sma: 100, close: 200}
	}
	days[59].close = 250

	res, err := newSim().Run(makeFrame(t, days))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	qty := res.Trades[0].Quantity
	assert.InDelta(t, qty*250, res.FinalValue, 1e-9)
	assert.Equal(t, 0.0, res.Ledger[59].Cash)
}

func TestRun_Hooks(t *testing.T) {
	days := flat(60)
	for i := 10; i < 20; i++ {
		days[i] = dayRow{ema: 101, sma: 100, close: 100}
	}

	var trades, dayCount int
	var buyDays int
	sim := newSim(WithHooks(Hooks{
		OnTrade: func(model.Trade) { trades++ },
		OnDay: func(_ model.LedgerEntry, sig strategy.Signal) {
			dayCount++
			if sig.Action == strategy.ActionBuy {
				buyDays++
			}
		},
	}))
	res, err := sim.Run(makeFrame(t, days))
	require.NoError(t, err)
	assert.Equal(t, 60, dayCount)
	assert.Equal(t, 2, trades)
	assert.Equal(t, 1, buyDays)
	assert.Len(t, res.Trades, 2)
}

func TestRun_PositionExclusivity(t *testing.T) {
	for _, seed := range []int64{1, 7, 42, 1234, 99999} {
		p := model.DefaultSimParams()
		p.Seed = seed
		p.Days = 400
		cfg, err := model.NewSimConfig(p)
		require.NoError(t, err)

		series, err := gbm.Generate(cfg)
		require.NoError(t, err)
		frame, _, err := indicator.NewEngine(indicator.DefaultPeriods()).Build(series)
		require.NoError(t, err)

		res, err := New(ConfigFrom(cfg), strategy.NewCrossover(cfg.VolumeThreshold(), nil)).Run(frame)
		require.NoError(t, err)
		require.Len(t, res.Ledger, WindowDays)

		for _, e := range res.Ledger {
			assert.False(t, e.Cash > 0 && e.Quantity > 0, "seed %d %s: both cash and quantity positive", seed, e.Date)
			assert.InDelta(t, e.Cash+e.Quantity*e.Price, e.Value, 1e-9)
		}
		for i := 1; i < len(res.Trades); i++ {
			assert.NotEqual(t, res.Trades[i-1].Side, res.Trades[i].Side, "seed %d: trades must alternate", seed)
		}
	}
}
