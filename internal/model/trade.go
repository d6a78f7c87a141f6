package model

import "time"

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Trade is an executed fill in the trade log.
// For BUY, Quantity is the asset acquired and Value the cash consumed
// including fee. For SELL, Quantity is 0 and Value the net proceeds.
type Trade struct {
	Side     Side      `json:"side"`
	Date     time.Time `json:"date"`
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Value    float64   `json:"value"`
}

// LedgerEntry is the post-action portfolio snapshot for one simulated day.
type LedgerEntry struct {
	Date      time.Time `json:"date"`
	Price     float64   `json:"price"`
	EMAShort  float64   `json:"ema_short"`
	SMAMedium float64   `json:"sma_medium"`
	SMALong   float64   `json:"sma_long"`
	Cash      float64   `json:"cash"`
	Quantity  float64   `json:"quantity"`
	Value     float64   `json:"value"`
}
