package indicator

import (
	"fmt"

	"crossover-sim/internal/model"
)

// Periods configures the four averages the crossover strategy reads.
type Periods struct {
	EMAShort  int // EMA of close
	SMAMedium int // SMA of close
	SMALong   int // SMA of close, trend filter
	VolumeSMA int // SMA of volume
}

// DefaultPeriods returns 7 / 30 / 200 / 10.
func DefaultPeriods() Periods {
	return Periods{EMAShort: 7, SMAMedium: 30, SMALong: 200, VolumeSMA: 10}
}

// Warmup returns the number of leading rows with at least one undefined
// value: the longest SMA window minus one. The EMA is defined from day one.
func (p Periods) Warmup() int {
	longest := p.SMAMedium
	if p.SMALong > longest {
		longest = p.SMALong
	}
	if p.VolumeSMA > longest {
		longest = p.VolumeSMA
	}
	if longest < 1 {
		return 0
	}
	return longest - 1
}

// Engine computes the indicator set over a price series.
// Not safe for concurrent use.
type Engine struct {
	periods Periods

	emaShort  Indicator
	smaMedium Indicator
	smaLong   Indicator
	volumeSMA Indicator
}

// NewEngine creates an indicator engine for the given periods.
func NewEngine(p Periods) *Engine {
	return &Engine{
		periods:   p,
		emaShort:  NewEMA(p.EMAShort),
		smaMedium: NewSMA(p.SMAMedium),
		smaLong:   NewSMA(p.SMALong),
		volumeSMA: NewSMA(p.VolumeSMA),
	}
}

// Periods returns the engine configuration.
func (e *Engine) Periods() Periods { return e.periods }

// Names returns the indicator names in row order.
func (e *Engine) Names() []string {
	return []string{e.emaShort.Name(), e.smaMedium.Name(), e.smaLong.Name(), "VOL_" + e.volumeSMA.Name()}
}

// Compute returns one row per input day. Values are NaN until the
// respective window has filled. The input series is not modified.
func (e *Engine) Compute(s model.Series) []model.IndicatorRow {
	e.reset()

	rows := make([]model.IndicatorRow, s.Len())
	for i := 0; i < s.Len(); i++ {
		p := s.At(i)
		e.emaShort.Update(p.Close)
		e.smaMedium.Update(p.Close)
		e.smaLong.Update(p.Close)
		e.volumeSMA.Update(p.Volume)

		rows[i] = model.IndicatorRow{
			PricePoint: p,
			EMAShort:   e.emaShort.Value(),
			SMAMedium:  e.smaMedium.Value(),
			SMALong:    e.smaLong.Value(),
			VolumeSMA:  e.volumeSMA.Value(),
		}
	}
	return rows
}

// Build computes the indicators, drops every row with an undefined value
// and returns the remaining contiguous frame with the number of rows dropped.
func (e *Engine) Build(s model.Series) (model.Frame, int, error) {
	rows := e.Compute(s)
	kept := DropWarmup(rows)

	frame, err := model.NewFrame(kept)
	if err != nil {
		return model.Frame{}, 0, fmt.Errorf("indicator: %w", err)
	}
	return frame, len(rows) - len(kept), nil
}

// DropWarmup returns the rows whose indicators are all defined.
func DropWarmup(rows []model.IndicatorRow) []model.IndicatorRow {
	kept := make([]model.IndicatorRow, 0, len(rows))
	for _, r := range rows {
		if r.Ready() {
			kept = append(kept, r)
		}
	}
	return kept
}

func (e *Engine) reset() {
	e.emaShort.Reset()
	e.smaMedium.Reset()
	e.smaLong.Reset()
	e.volumeSMA.Reset()
}

// itoaInd converts int to string without importing strconv.
func itoaInd(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
