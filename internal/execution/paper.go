package execution

import (
	"fmt"
	"log/slog"

	"crossover-sim/internal/model"
	"crossover-sim/internal/portfolio"
	"crossover-sim/internal/strategy"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID string          `json:"order_id"`
	Signal  strategy.Signal `json:"signal"`
	Trade   model.Trade     `json:"trade"`
}

var _ Executor = (*PaperExecutor)(nil)

// PaperExecutor fills signals against a Position at the signal price,
// charging a flat proportional fee. No slippage is modelled.
type PaperExecutor struct {
	pos      *portfolio.Position
	feeRate  float64
	fills    []Fill
	orderSeq int64
	log      *slog.Logger
}

// NewPaperExecutor creates a paper executor over pos.
func NewPaperExecutor(pos *portfolio.Position, feeRate float64, log *slog.Logger) *PaperExecutor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &PaperExecutor{
		pos:     pos,
		feeRate: feeRate,
		fills:   make([]Fill, 0, 16),
		log:     log,
	}
}

// Execute applies a BUY or SELL signal to the position and records the trade.
func (p *PaperExecutor) Execute(sig strategy.Signal) (*Fill, error) {
	side, ok := sig.Action.Side()
	if !ok {
		return nil, nil
	}

	trade := model.Trade{Side: side, Date: sig.Date, Price: sig.Price}
	switch side {
	case model.Buy:
		qty, cost, err := p.pos.Buy(sig.Price, p.feeRate)
		if err != nil {
			return nil, fmt.Errorf("paper buy %s: %w", sig.Date.Format(model.DateLayout), err)
		}
		trade.Quantity = qty
		trade.Value = cost
	case model.Sell:
		revenue, err := p.pos.Sell(sig.Price, p.feeRate)
		if err != nil {
			return nil, fmt.Errorf("paper sell %s: %w", sig.Date.Format(model.DateLayout), err)
		}
		trade.Value = revenue
	}

	p.orderSeq++
	fill := Fill{
		OrderID: fmt.Sprintf("PAPER-%d", p.orderSeq),
		Signal:  sig,
		Trade:   trade,
	}
	p.fills = append(p.fills, fill)

	p.log.Info("paper fill",
		"order_id", fill.OrderID,
		"side", string(side),
		"date", sig.Date.Format(model.DateLayout),
		"price", trade.Price,
		"qty", trade.Quantity,
		"value", trade.Value,
		"reason", sig.Reason,
	)
	return &fill, nil
}

// Fills returns a snapshot of all fills.
func (p *PaperExecutor) Fills() []Fill {
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// Trades returns the ordered trade log.
func (p *PaperExecutor) Trades() []model.Trade {
	out := make([]model.Trade, len(p.fills))
	for i, f := range p.fills {
		out[i] = f.Trade
	}
	return out
}
