package strategy

import (
	"log/slog"

	"crossover-sim/internal/model"
)

var _ Strategy = (*Crossover)(nil)

// Crossover implements an EMA/SMA crossover strategy with entry filters.
//
// Buy signal: short EMA crosses above the medium SMA (golden cross), while
// the close is above the long SMA and volume exceeds threshold × volume SMA.
// Sell signal: short EMA crosses below the medium SMA (death cross).
//
// Filters apply to entries only; exits are taken on the cross alone.
type Crossover struct {
	name            string
	volumeThreshold float64
	log             *slog.Logger
}

// NewCrossover creates a crossover strategy. A nil logger discards output.
func NewCrossover(volumeThreshold float64, log *slog.Logger) *Crossover {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Crossover{
		name:            "EMA_SMA_Crossover",
		volumeThreshold: volumeThreshold,
		log:             log,
	}
}

func (c *Crossover) Name() string {
	return c.name
}

// BuyCross reports a bullish crossover between prev and cur.
func BuyCross(prev, cur model.IndicatorRow) bool {
	return prev.EMAShort <= prev.SMAMedium && cur.EMAShort > cur.SMAMedium
}

// SellCross reports a bearish crossover between prev and cur.
func SellCross(prev, cur model.IndicatorRow) bool {
	return prev.EMAShort >= prev.SMAMedium && cur.EMAShort < cur.SMAMedium
}

func (c *Crossover) Decide(prev, cur model.IndicatorRow, holding bool) Signal {
	sig := Signal{
		StrategyName: c.name,
		Action:       ActionHold,
		Date:         cur.Date,
		Price:        cur.Close,
	}

	if holding {
		if SellCross(prev, cur) {
			sig.Action = ActionSell
			sig.Reason = "death cross (ema < sma)"
		}
		return sig
	}

	if !BuyCross(prev, cur) {
		return sig
	}

	// Golden cross: check the trend and volume filters.
	if cur.Close <= cur.SMALong {
		sig.Reason = "golden cross filtered: close at or below long sma"
		c.log.Debug("entry filtered", "date", cur.Date.Format(model.DateLayout),
			"reason", "trend", "close", cur.Close, "sma_long", cur.SMALong)
		return sig
	}
	if cur.Volume <= c.volumeThreshold*cur.VolumeSMA {
		sig.Reason = "golden cross filtered: volume below threshold"
		c.log.Debug("entry filtered", "date", cur.Date.Format(model.DateLayout),
			"reason", "volume", "volume", cur.Volume, "volume_sma", cur.VolumeSMA)
		return sig
	}

	sig.Action = ActionBuy
	sig.Reason = "golden cross (ema > sma)"
	return sig
}
