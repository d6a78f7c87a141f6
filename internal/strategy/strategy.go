// Package strategy decides daily trading actions from indicator rows.
//
// A Strategy compares the previous and current day's indicators together
// with the current position state and emits a Signal (BUY/SELL/HOLD).
// Strategies are pure deciders: applying a signal to cash and holdings is
// the executor's job.
package strategy

import (
	"time"

	"crossover-sim/internal/model"
)

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal represents the decision a strategy made for one day.
type Signal struct {
	StrategyName string    `json:"strategy_name"`
	Action       Action    `json:"action"`
	Date         time.Time `json:"date"`
	Price        float64   `json:"price"` // the day's close
	Reason       string    `json:"reason,omitempty"`
}

// Side maps a BUY/SELL action to a trade side. ok is false for HOLD.
func (a Action) Side() (side model.Side, ok bool) {
	switch a {
	case ActionBuy:
		return model.Buy, true
	case ActionSell:
		return model.Sell, true
	}
	return "", false
}

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Decide returns the action for cur, given the previous day's row and
	// whether a position is currently held.
	Decide(prev, cur model.IndicatorRow, holding bool) Signal
}
