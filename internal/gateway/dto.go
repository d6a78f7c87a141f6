package gateway

import (
	"crossover-sim/internal/model"
	"crossover-sim/internal/strategy"
)

// Stream event types sent on /ws/run.
const (
	EventDay     = "day"
	EventTrade   = "trade"
	EventSummary = "summary"
	EventError   = "error"
)

// Event is one message of a streamed run.
type Event struct {
	Type  string      `json:"type"`
	Seq   int         `json:"seq"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// DayOut is a ledger entry with the day's decision.
type DayOut struct {
	Date      string          `json:"date"`
	Price     float64         `json:"price"`
	EMAShort  float64         `json:"ema_short"`
	SMAMedium float64         `json:"sma_medium"`
	SMALong   float64         `json:"sma_long"`
	Cash      float64         `json:"cash"`
	Quantity  float64         `json:"quantity"`
	Value     float64         `json:"value"`
	Action    strategy.Action `json:"action"`
	Reason    string          `json:"reason,omitempty"`
}

// NewDayOut builds the day payload.
func NewDayOut(e model.LedgerEntry, sig strategy.Signal) DayOut {
	return DayOut{
		Date:      e.Date.Format(model.DateLayout),
		Price:     e.Price,
		EMAShort:  e.EMAShort,
		SMAMedium: e.SMAMedium,
		SMALong:   e.SMALong,
		Cash:      e.Cash,
		Quantity:  e.Quantity,
		Value:     e.Value,
		Action:    sig.Action,
		Reason:    sig.Reason,
	}
}

// ErrorBody is the JSON error response of the REST endpoints.
type ErrorBody struct {
	Error string `json:"error"`
}
