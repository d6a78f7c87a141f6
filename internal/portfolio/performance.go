package portfolio

import "crossover-sim/internal/model"

// Summary is the performance report of one simulation run.
type Summary struct {
	InitialCapital float64 `json:"initial_capital"`
	FinalValue     float64 `json:"final_value"`
	NetProfit      float64 `json:"net_profit"`
	ROI            float64 `json:"roi"`          // fraction, 0.05 = 5%
	MaxDrawdown    float64 `json:"max_drawdown"` // non-negative fraction
	TradeCount     int     `json:"trade_count"`
	RoundTrips     int     `json:"round_trips"`
	Wins           int     `json:"wins"`
	WinRate        float64 `json:"win_rate"` // fraction of round trips
	RealizedPnL    float64 `json:"realized_pnl"`
}

// ROIPct returns ROI in percent.
func (s Summary) ROIPct() float64 { return s.ROI * 100 }

// MaxDrawdownPct returns the max drawdown in percent.
func (s Summary) MaxDrawdownPct() float64 { return s.MaxDrawdown * 100 }

// WinRatePct returns the win rate in percent.
func (s Summary) WinRatePct() float64 { return s.WinRate * 100 }

// Summarize derives the performance report from a completed run.
// ROI is 0 when initial capital is 0; win rate is 0 without round trips.
func Summarize(initialCapital, finalValue float64, ledger []model.LedgerEntry, trades []model.Trade) Summary {
	s := Summary{
		InitialCapital: initialCapital,
		FinalValue:     finalValue,
		NetProfit:      finalValue - initialCapital,
		TradeCount:     len(trades),
	}
	if initialCapital != 0 {
		s.ROI = s.NetProfit / initialCapital
	}

	dd := NewDrawdownTracker()
	for _, e := range ledger {
		dd.Record(e.Value)
	}
	s.MaxDrawdown = dd.MaxDrawdown()

	pnl := NewPnLTracker()
	for _, t := range trades {
		pnl.RecordTrade(t)
	}
	s.RoundTrips = len(pnl.RoundTrips())
	s.Wins = pnl.Wins()
	s.RealizedPnL = pnl.RealizedPnL()
	if s.RoundTrips > 0 {
		s.WinRate = float64(s.Wins) / float64(s.RoundTrips)
	}
	return s
}
