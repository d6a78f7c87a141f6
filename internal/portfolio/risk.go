package portfolio

// DrawdownTracker follows portfolio equity and its running peak.
type DrawdownTracker struct {
	equity      float64
	peak        float64
	maxDrawdown float64 // most negative (equity-peak)/peak seen, <= 0
	started     bool
}

// NewDrawdownTracker creates an empty tracker.
func NewDrawdownTracker() *DrawdownTracker {
	return &DrawdownTracker{}
}

// Record updates equity and returns the current drawdown fraction (<= 0).
// Values observed while the peak is not positive do not count.
func (d *DrawdownTracker) Record(equity float64) float64 {
	d.equity = equity
	if !d.started || equity > d.peak {
		d.peak = equity
		d.started = true
	}
	if d.peak <= 0 {
		return 0
	}
	dd := (equity - d.peak) / d.peak
	if dd < d.maxDrawdown {
		d.maxDrawdown = dd
	}
	return dd
}

// Peak returns the highest equity recorded.
func (d *DrawdownTracker) Peak() float64 { return d.peak }

// MaxDrawdown returns the deepest decline from peak as a non-negative fraction.
func (d *DrawdownTracker) MaxDrawdown() float64 { return -d.maxDrawdown }
