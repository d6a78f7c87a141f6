package indicator

import "math"

// EMA calculates an Exponential Moving Average seeded with the first value.
// O(1) per update with no window storage. Defined from the first update.
type EMA struct {
	period  int
	alpha   float64
	current float64
	count   int
}

// NewEMA creates a new EMA indicator with smoothing 2/(period+1).
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA_" + itoaInd(e.period) }
func (e *EMA) Period() int  { return e.period }

func (e *EMA) Update(v float64) {
	e.count++
	if e.count == 1 {
		e.current = v
		return
	}
	if e.current == v {
		return
	}
	oldWt := 1 - e.alpha
	e.current = (oldWt*e.current + e.alpha*v) / (oldWt + e.alpha)
}

func (e *EMA) Value() float64 {
	if e.count == 0 {
		return math.NaN()
	}
	return e.current
}

func (e *EMA) Ready() bool { return e.count > 0 }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}
