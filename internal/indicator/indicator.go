// Package indicator provides moving-average calculations over a daily series.
//
// All indicators implement the Indicator interface, receiving one value per
// day and producing a float64. An indicator that has not yet seen enough
// history reports NaN from Value.
package indicator

// Indicator is the interface for all streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_30", "EMA_7").
	Name() string

	// Update feeds the next value and recalculates.
	Update(v float64)

	// Value returns the current value, or NaN if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears accumulated state for reuse.
	Reset()
}
