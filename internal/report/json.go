package report

import (
	"encoding/json"

	"crossover-sim/internal/model"
	"crossover-sim/internal/pipeline"
	"crossover-sim/internal/portfolio"
)

// TradeDoc is a trade with its date rendered as YYYY-MM-DD.
type TradeDoc struct {
	Date     string     `json:"date"`
	Side     model.Side `json:"side"`
	Price    float64    `json:"price"`
	Quantity float64    `json:"quantity"`
	Value    float64    `json:"value"`
}

// ParamsDoc mirrors model.SimParams with a plain end date.
type ParamsDoc struct {
	Days            int     `json:"days"`
	StartPrice      float64 `json:"start_price"`
	Seed            int64   `json:"seed"`
	Mu              float64 `json:"mu"`
	Sigma           float64 `json:"sigma"`
	FeeRate         float64 `json:"fee_rate"`
	VolumeThreshold float64 `json:"volume_threshold"`
	InitialCapital  float64 `json:"initial_capital"`
	BaseVolume      float64 `json:"base_volume"`
	EndDate         string  `json:"end_date"`
}

// Document is the structured run summary.
type Document struct {
	RunID         string            `json:"run_id"`
	Params        ParamsDoc         `json:"params"`
	WarmupDropped int               `json:"warmup_dropped"`
	WindowStart   string            `json:"window_start,omitempty"`
	WindowEnd     string            `json:"window_end,omitempty"`
	Summary       portfolio.Summary `json:"summary"`
	Trades        []TradeDoc        `json:"trades"`
	DurationMs    float64           `json:"duration_ms"`
}

// NewParamsDoc converts simulation parameters.
func NewParamsDoc(p model.SimParams) ParamsDoc {
	return ParamsDoc{
		Days:            p.Days,
		StartPrice:      p.StartPrice,
		Seed:            p.Seed,
		Mu:              p.Mu,
		Sigma:           p.Sigma,
		FeeRate:         p.FeeRate,
		VolumeThreshold: p.VolumeThreshold,
		InitialCapital:  p.InitialCapital,
		BaseVolume:      p.BaseVolume,
		EndDate:         p.EndDate.Format(model.DateLayout),
	}
}

// NewTradeDocs converts a trade log.
func NewTradeDocs(trades []model.Trade) []TradeDoc {
	out := make([]TradeDoc, len(trades))
	for i, t := range trades {
		out[i] = TradeDoc{
			Date:     t.Date.Format(model.DateLayout),
			Side:     t.Side,
			Price:    t.Price,
			Quantity: t.Quantity,
			Value:    t.Value,
		}
	}
	return out
}

// NewDocument builds the summary document for a completed run.
func NewDocument(out *pipeline.Outcome) Document {
	doc := Document{
		RunID:         out.RunID,
		Params:        NewParamsDoc(out.Params),
		WarmupDropped: out.Dropped,
		Summary:       out.Summary,
		Trades:        NewTradeDocs(out.Result.Trades),
		DurationMs:    float64(out.Duration.Microseconds()) / 1000.0,
	}
	if l := out.Result.Ledger; len(l) > 0 {
		doc.WindowStart = l[0].Date.Format(model.DateLayout)
		doc.WindowEnd = l[len(l)-1].Date.Format(model.DateLayout)
	}
	return doc
}

// JSON encodes the summary document.
func JSON(out *pipeline.Outcome) ([]byte, error) {
	return json.MarshalIndent(NewDocument(out), "", "  ")
}
