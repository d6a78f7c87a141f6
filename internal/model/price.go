package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidSeries is returned when price rows break OHLC or date invariants.
var ErrInvalidSeries = errors.New("invalid price series")

// PricePoint is one generated daily OHLCV row.
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// NewPricePoint builds a row and checks high >= max(open, close),
// low <= min(open, close) and volume >= 0.
func NewPricePoint(date time.Time, open, high, low, close, volume float64) (PricePoint, error) {
	p := PricePoint{Date: date, Open: open, High: high, Low: low, Close: close, Volume: volume}
	if err := p.Validate(); err != nil {
		return PricePoint{}, err
	}
	return p, nil
}

// Validate reports whether the row satisfies the OHLCV invariants.
func (p PricePoint) Validate() error {
	for _, v := range [...]float64{p.Open, p.High, p.Low, p.Close, p.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s: non-finite value", ErrInvalidSeries, p.Date.Format(DateLayout))
		}
	}
	if p.High < math.Max(p.Open, p.Close) {
		return fmt.Errorf("%w: %s: high %.6f below body", ErrInvalidSeries, p.Date.Format(DateLayout), p.High)
	}
	if p.Low > math.Min(p.Open, p.Close) {
		return fmt.Errorf("%w: %s: low %.6f above body", ErrInvalidSeries, p.Date.Format(DateLayout), p.Low)
	}
	if p.Volume < 0 {
		return fmt.Errorf("%w: %s: negative volume", ErrInvalidSeries, p.Date.Format(DateLayout))
	}
	return nil
}

// NextDay reports whether b falls exactly one calendar day after a.
func NextDay(a, b time.Time) bool {
	return a.AddDate(0, 0, 1).Equal(b)
}

// Series is an ordered, gap-free sequence of daily rows.
// The zero value is an empty series.
type Series struct {
	points []PricePoint
}

// NewSeries validates every row and the one-day date spacing.
// The slice is copied.
func NewSeries(points []PricePoint) (Series, error) {
	for i, p := range points {
		if err := p.Validate(); err != nil {
			return Series{}, err
		}
		if i > 0 && !NextDay(points[i-1].Date, p.Date) {
			return Series{}, fmt.Errorf("%w: date gap between %s and %s",
				ErrInvalidSeries, points[i-1].Date.Format(DateLayout), p.Date.Format(DateLayout))
		}
	}
	cp := make([]PricePoint, len(points))
	copy(cp, points)
	return Series{points: cp}, nil
}

func (s Series) Len() int            { return len(s.points) }
func (s Series) At(i int) PricePoint { return s.points[i] }
func (s Series) First() PricePoint   { return s.points[0] }
func (s Series) Last() PricePoint    { return s.points[len(s.points)-1] }

// Points returns a copy of the rows.
func (s Series) Points() []PricePoint {
	cp := make([]PricePoint, len(s.points))
	copy(cp, s.points)
	return cp
}

// DayNumber returns the number of days from 1970-01-01 to t's UTC date,
// negative before the epoch. The stores key daily rows by it.
func DayNumber(t time.Time) int64 {
	sec := t.UTC().Unix()
	n := sec / secondsPerDay
	if sec%secondsPerDay < 0 {
		n--
	}
	return n
}

// DateFromDayNumber is the inverse of DayNumber: UTC midnight of day n.
func DateFromDayNumber(n int64) time.Time {
	return time.Unix(n*secondsPerDay, 0).UTC()
}

const secondsPerDay = 24 * 60 * 60
