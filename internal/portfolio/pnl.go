package portfolio

import "crossover-sim/internal/model"

// RoundTrip is a BUY closed by the following SELL.
type RoundTrip struct {
	Entry model.Trade `json:"entry"`
	Exit  model.Trade `json:"exit"`
}

// PnL returns exit proceeds minus the entry cost basis.
func (r RoundTrip) PnL() float64 { return r.Exit.Value - r.Entry.Value }

// Win reports whether the exit value exceeded the entry cost basis.
func (r RoundTrip) Win() bool { return r.Exit.Value > r.Entry.Value }

// PnLTracker pairs trades into round trips.
// Each SELL closes the most recently recorded BUY.
type PnLTracker struct {
	trades   []model.Trade
	trips    []RoundTrip
	lastBuy  model.Trade
	hasEntry bool
	realized float64
}

// NewPnLTracker creates a new P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{}
}

// RecordTrade records a trade and returns the realized P&L it closed (0 for BUY).
func (p *PnLTracker) RecordTrade(trade model.Trade) float64 {
	p.trades = append(p.trades, trade)

	switch trade.Side {
	case model.Buy:
		p.lastBuy = trade
		p.hasEntry = true
	case model.Sell:
		trip := RoundTrip{Entry: p.lastBuy, Exit: trade}
		if !p.hasEntry {
			// A SELL with no prior BUY pairs against a zero cost basis.
			trip.Entry = model.Trade{Side: model.Buy}
		}
		p.trips = append(p.trips, trip)
		p.realized += trip.PnL()
		return trip.PnL()
	}
	return 0
}

// RealizedPnL returns the summed P&L of closed round trips.
func (p *PnLTracker) RealizedPnL() float64 { return p.realized }

// RoundTrips returns a copy of the closed round trips.
func (p *PnLTracker) RoundTrips() []RoundTrip {
	cp := make([]RoundTrip, len(p.trips))
	copy(cp, p.trips)
	return cp
}

// Wins returns the number of winning round trips.
func (p *PnLTracker) Wins() int {
	n := 0
	for _, t := range p.trips {
		if t.Win() {
			n++
		}
	}
	return n
}
