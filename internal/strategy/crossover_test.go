package strategy

import (
	"testing"
	"time"

	"crossover-sim/internal/model"

	"github.com/stretchr/testify/assert"
)

func row(ema, sma, smaLong, close, volume, volSMA float64) model.IndicatorRow {
	return model.IndicatorRow{
		PricePoint: model.PricePoint{
			Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			Open: close, High: close, Low: close, Close: close, Volume: volume,
		},
		EMAShort:  ema,
		SMAMedium: sma,
		SMALong:   smaLong,
		VolumeSMA: volSMA,
	}
}

func TestCrossDetection(t *testing.T) {
	tests := []struct {
		name      string
		prevEMA   float64
		prevSMA   float64
		curEMA    float64
		curSMA    float64
		buyCross  bool
		sellCross bool
	}{
		{"bullish", 99, 100, 101, 100, true, false},
		{"bullish from equality", 100, 100, 101, 100, true, false},
		{"bearish", 101, 100, 99, 100, false, true},
		{"bearish from equality", 100, 100, 99, 100, false, true},
		{"stays above", 101, 100, 102, 100, false, false},
		{"stays below", 98, 100, 99, 100, false, false},
		{"touches", 99, 100, 100, 100, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := row(tt.prevEMA, tt.prevSMA, 0, 1, 1, 1)
			cur := row(tt.curEMA, tt.curSMA, 0, 1, 1, 1)
			assert.Equal(t, tt.buyCross, BuyCross(prev, cur))
			assert.Equal(t, tt.sellCross, SellCross(prev, cur))
		})
	}
}

func TestCrossover_Decide(t *testing.T) {
	s := NewCrossover(1.5, nil)
	prevBelow := row(99, 100, 90, 100, 100, 100)
	prevAbove := row(101, 100, 90, 100, 100, 100)

	tests := []struct {
		name    string
		prev    model.IndicatorRow
		cur     model.IndicatorRow
		holding bool
		want    Action
	}{
		{"buy when all filters pass", prevBelow, row(101, 100, 90, 100, 160, 100), false, ActionBuy},
		{"trend filter blocks", prevBelow, row(101, 100, 110, 100, 160, 100), false, ActionHold},
		{"trend filter needs strict", prevBelow, row(101, 100, 100, 100, 160, 100), false, ActionHold},
		{"volume filter blocks", prevBelow, row(101, 100, 90, 100, 140, 100), false, ActionHold},
		{"volume filter needs strict", prevBelow, row(101, 100, 90, 100, 150, 100), false, ActionHold},
		{"no buy while holding", prevBelow, row(101, 100, 90, 100, 160, 100), true, ActionHold},
		{"sell on death cross", prevAbove, row(99, 100, 200, 100, 1, 100), true, ActionSell},
		{"sell ignores filters", prevAbove, row(99, 100, 1e9, 100, 0, 1e9), true, ActionSell},
		{"no sell when flat", prevAbove, row(99, 100, 90, 100, 160, 100), false, ActionHold},
		{"hold without cross", prevAbove, row(102, 100, 90, 100, 160, 100), true, ActionHold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := s.Decide(tt.prev, tt.cur, tt.holding)
			assert.Equal(t, tt.want, sig.Action)
			assert.Equal(t, tt.cur.Close, sig.Price)
			assert.Equal(t, "EMA_SMA_Crossover", sig.StrategyName)
		})
	}
}

func TestCrossover_FilterReason(t *testing.T) {
	s := NewCrossover(1.5, nil)
	sig := s.Decide(row(99, 100, 90, 100, 100, 100), row(101, 100, 110, 100, 160, 100), false)
	assert.Contains(t, sig.Reason, "long sma")

	sig = s.Decide(row(99, 100, 90, 100, 100, 100), row(101, 100, 90, 100, 100, 100), false)
	assert.Contains(t, sig.Reason, "volume")
}

func TestAction_Side(t *testing.T) {
	side, ok := ActionBuy.Side()
	assert.True(t, ok)
	assert.Equal(t, model.Buy, side)

	side, ok = ActionSell.Side()
	assert.True(t, ok)
	assert.Equal(t, model.Sell, side)

	_, ok = ActionHold.Side()
	assert.False(t, ok)
}
