package indicator

import "math"

// SMA calculates a Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer and a compensated running sum so long
// windows do not accumulate rounding error as values enter and leave.
type SMA struct {
	period int
	buf    []float64 // preallocated circular buffer
	idx    int       // current write position
	count  int       // total values received

	sum     float64
	compAdd float64 // Kahan compensation for additions
	compRem float64 // Kahan compensation for removals
}

// NewSMA creates a new SMA indicator with the given period.
// Periods below 1 are treated as 1.
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA_" + itoaInd(s.period) }
func (s *SMA) Period() int  { return s.period }

func (s *SMA) Update(v float64) {
	if s.count >= s.period {
		// Remove the oldest value before it is overwritten.
		y := -s.buf[s.idx] - s.compRem
		t := s.sum + y
		s.compRem = t - s.sum - y
		s.sum = t
	}

	y := v - s.compAdd
	t := s.sum + y
	s.compAdd = t - s.sum - y
	s.sum = t

	s.buf[s.idx] = v
	s.idx = (s.idx + 1) % s.period
	s.count++
}

func (s *SMA) Value() float64 {
	if !s.Ready() {
		return math.NaN()
	}
	return s.sum / float64(s.period)
}

func (s *SMA) Ready() bool { return s.count >= s.period }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.compAdd = 0
	s.compRem = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
