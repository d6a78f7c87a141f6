// Package portfolio tracks the simulated position and derives performance
// metrics from the daily ledger and trade log.
//
// The strategy is always fully in cash or fully in the asset: a Position
// converts all cash on Buy and all holdings on Sell, charging a flat
// proportional fee on the notional each time.
package portfolio

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyHolding is returned by Buy when the position is already IN.
	ErrAlreadyHolding = errors.New("position already held")
	// ErrNotHolding is returned by Sell when there is nothing to sell.
	ErrNotHolding = errors.New("no position to sell")
	// ErrInvalidPrice is returned for non-positive execution prices.
	ErrInvalidPrice = errors.New("price must be positive")
	// ErrFeeExceedsCash is returned by Buy when the fee leaves nothing to invest.
	ErrFeeExceedsCash = errors.New("fee consumes all cash")
)

// Position is the simulator's cash and asset balance.
// Not safe for concurrent use; a run owns its position.
type Position struct {
	cash     float64
	quantity float64
}

// NewPosition creates a flat position holding only cash.
func NewPosition(cash float64) *Position {
	return &Position{cash: cash}
}

func (p *Position) Cash() float64     { return p.cash }
func (p *Position) Quantity() float64 { return p.quantity }

// Holding reports whether the position is IN the asset.
func (p *Position) Holding() bool { return p.quantity != 0 }

// Value returns cash + quantity × price.
func (p *Position) Value(price float64) float64 {
	return p.cash + p.quantity*price
}

// Buy converts all cash into the asset at price.
// fee = cash × feeRate is deducted first; the remainder buys the asset.
// Returns the quantity acquired and the cash consumed including fee.
func (p *Position) Buy(price, feeRate float64) (qty, cost float64, err error) {
	if p.Holding() {
		return 0, 0, ErrAlreadyHolding
	}
	if !(price > 0) {
		return 0, 0, fmt.Errorf("buy at %v: %w", price, ErrInvalidPrice)
	}
	fee := p.cash * feeRate
	invested := p.cash - fee
	// A zero-cash position may still "buy" nothing; positive cash must
	// leave something to invest.
	if invested < 0 || (p.cash > 0 && invested <= 0) {
		return 0, 0, fmt.Errorf("buy with fee rate %v: %w", feeRate, ErrFeeExceedsCash)
	}
	p.quantity = invested / price
	p.cash = 0
	return p.quantity, invested + fee, nil
}

// Sell converts all holdings into cash at price, net of fee.
// Returns the proceeds credited to cash.
func (p *Position) Sell(price, feeRate float64) (revenue float64, err error) {
	if !p.Holding() {
		return 0, ErrNotHolding
	}
	if !(price > 0) {
		return 0, fmt.Errorf("sell at %v: %w", price, ErrInvalidPrice)
	}
	revenue = p.quantity * price * (1 - feeRate)
	p.cash = revenue
	p.quantity = 0
	return revenue, nil
}
