package model

import (
	"fmt"
	"math"
)

// IndicatorRow is a price row with the four derived averages.
// An average is NaN while its window has insufficient history.
type IndicatorRow struct {
	PricePoint
	EMAShort  float64 `json:"ema_short"`
	SMAMedium float64 `json:"sma_medium"`
	SMALong   float64 `json:"sma_long"`
	VolumeSMA float64 `json:"volume_sma"`
}

// Ready reports whether every indicator value is defined.
func (r IndicatorRow) Ready() bool {
	return !math.IsNaN(r.EMAShort) && !math.IsNaN(r.SMAMedium) &&
		!math.IsNaN(r.SMALong) && !math.IsNaN(r.VolumeSMA)
}

// Frame is a contiguous run of fully defined indicator rows.
type Frame struct {
	rows []IndicatorRow
}

// NewFrame rejects rows with undefined indicators or date gaps.
func NewFrame(rows []IndicatorRow) (Frame, error) {
	for i, r := range rows {
		if !r.Ready() {
			return Frame{}, fmt.Errorf("%w: %s: indicator not available", ErrInvalidSeries, r.Date.Format(DateLayout))
		}
		if i > 0 && !NextDay(rows[i-1].Date, r.Date) {
			return Frame{}, fmt.Errorf("%w: frame not contiguous at %s", ErrInvalidSeries, r.Date.Format(DateLayout))
		}
	}
	cp := make([]IndicatorRow, len(rows))
	copy(cp, rows)
	return Frame{rows: cp}, nil
}

func (f Frame) Len() int              { return len(f.rows) }
func (f Frame) At(i int) IndicatorRow { return f.rows[i] }

// Rows returns a copy of the frame's rows.
func (f Frame) Rows() []IndicatorRow {
	cp := make([]IndicatorRow, len(f.rows))
	copy(cp, f.rows)
	return cp
}

// Tail returns a copy of the last n rows (all rows when n exceeds Len).
func (f Frame) Tail(n int) []IndicatorRow {
	if n > len(f.rows) {
		n = len(f.rows)
	}
	cp := make([]IndicatorRow, n)
	copy(cp, f.rows[len(f.rows)-n:])
	return cp
}
