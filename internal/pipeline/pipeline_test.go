package pipeline

import (
	"context"
	"sync"
	"testing"

	"crossover-sim/internal/backtest"
	"crossover-sim/internal/indicator"
	"crossover-sim/internal/metrics"
	"crossover-sim/internal/model"
	"crossover-sim/internal/strategy"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) model.SimConfig {
	t.Helper()
	cfg, err := model.NewSimConfig(model.DefaultSimParams())
	require.NoError(t, err)
	return cfg
}

// Reference scenario: start 60000, 260 days, seed 42, default parameters.
func TestRun_ReferenceScenario(t *testing.T) {
	out, err := Run(context.Background(), defaultConfig(t), Options{})
	require.NoError(t, err)

	assert.Equal(t, 199, out.Dropped)
	assert.Equal(t, 61, out.Frame.Len())
	require.Len(t, out.Result.Ledger, backtest.WindowDays)

	assert.InDelta(t, 981.8820640729841, out.Result.FinalValue, 1e-5)
	assert.Len(t, out.Result.Trades, 5)
	assert.Equal(t, out.Result.FinalValue, out.Summary.FinalValue)
	assert.Equal(t, 5, out.Summary.TradeCount)
	assert.Equal(t, "2024-12-21", out.Result.Ledger[59].Date.Format(model.DateLayout))
}

func TestRun_Deterministic(t *testing.T) {
	cfg := defaultConfig(t)
	a, err := Run(context.Background(), cfg, Options{RunID: "a"})
	require.NoError(t, err)
	b, err := Run(context.Background(), cfg, Options{RunID: "b"})
	require.NoError(t, err)

	assert.Equal(t, a.Result.FinalValue, b.Result.FinalValue)
	assert.Equal(t, a.Result.Trades, b.Result.Trades)
	assert.Equal(t, a.Result.Ledger, b.Result.Ledger)
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	cfg := defaultConfig(t)
	want, err := Run(context.Background(), cfg, Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]float64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := Run(context.Background(), cfg, Options{})
			if err == nil {
				results[i] = out.Result.FinalValue
			}
		}(i)
	}
	wg.Wait()
	for i, v := range results {
		assert.Equal(t, want.Result.FinalValue, v, "run %d", i)
	}
}

func TestRun_GeneratesRunID(t *testing.T) {
	out, err := Run(context.Background(), defaultConfig(t), Options{})
	require.NoError(t, err)
	assert.Len(t, out.RunID, 36)

	out, err = Run(context.Background(), defaultConfig(t), Options{RunID: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", out.RunID)
}

func TestRun_InsufficientData(t *testing.T) {
	p := model.DefaultSimParams()
	p.Days = 250 // 51 rows after warm-up
	cfg, err := model.NewSimConfig(p)
	require.NoError(t, err)

	m := metrics.NewMetrics(nil)
	_, err = Run(context.Background(), cfg, Options{Metrics: m})
	require.Error(t, err)
	assert.ErrorIs(t, err, backtest.ErrInsufficientData)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunFailures.WithLabelValues(StageSimulate)))
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := metrics.NewMetrics(nil)
	out, err := Run(context.Background(), defaultConfig(t), Options{Metrics: m})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.SimulatedDays))
	assert.Equal(t, 199.0, testutil.ToFloat64(m.WarmupDropped))
	assert.Equal(t, out.Summary.FinalValue, testutil.ToFloat64(m.FinalValue))

	buys := testutil.ToFloat64(m.TradesTotal.WithLabelValues("BUY"))
	sells := testutil.ToFloat64(m.TradesTotal.WithLabelValues("SELL"))
	assert.Equal(t, float64(out.Summary.TradeCount), buys+sells)
}

func TestRun_HooksSeeEveryDay(t *testing.T) {
	var days, trades int
	out, err := Run(context.Background(), defaultConfig(t), Options{
		Metrics: metrics.NewMetrics(nil),
		Hooks: backtest.Hooks{
			OnDay:   func(model.LedgerEntry, strategy.Signal) { days++ },
			OnTrade: func(model.Trade) { trades++ },
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 60, days)
	assert.Equal(t, len(out.Result.Trades), trades)
}

func TestRun_CustomPeriods(t *testing.T) {
	p := indicator.Periods{EMAShort: 5, SMAMedium: 20, SMALong: 50, VolumeSMA: 10}
	out, err := Run(context.Background(), defaultConfig(t), Options{Periods: &p})
	require.NoError(t, err)
	assert.Equal(t, 49, out.Dropped)
	assert.Equal(t, 211, out.Frame.Len())
}
