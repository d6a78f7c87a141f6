// Package gbm generates a synthetic daily OHLCV series with a discrete
// Geometric Brownian Motion.
//
// Random draws are consumed in a fixed order so that a seed reproduces the
// same series exactly:
//
//  1. Days standard-normal return shocks
//  2. Days log-normal(0, 0.5) volume factors
//  3. Days Uniform[0, 0.02) upper-wick fractions
//  4. Days Uniform[0, 0.02) lower-wick fractions
//
// Changing this order changes every downstream number.
package gbm

import (
	"fmt"
	"math"

	"crossover-sim/internal/model"
	"crossover-sim/internal/rng"
)

const (
	volumeSigma = 0.5
	maxWickPct  = 0.02
	moveImpact  = 20.0
)

// Generate builds a series of cfg.Days rows ending on cfg.EndDate.
// open[0] is the start price and open[i] = close[i-1].
func Generate(cfg model.SimConfig) (model.Series, error) {
	n := cfg.Days()
	stream := rng.New(cfg.Seed())

	shocks := stream.StandardNormals(n)
	volFactors := stream.LogNormals(n, 0, volumeSigma)
	wickUp := stream.Uniforms(n, 0, maxWickPct)
	wickDown := stream.Uniforms(n, 0, maxWickPct)

	sigma := cfg.Sigma()
	drift := cfg.Mu() - 0.5*sigma*sigma
	start := cfg.StartPrice()
	first := cfg.EndDate().AddDate(0, 0, -(n - 1))

	points := make([]model.PricePoint, n)
	var cum float64
	open := start
	for i := 0; i < n; i++ {
		cum += drift + sigma*shocks[i]
		close := start * math.Exp(cum)

		volume := cfg.BaseVolume() * volFactors[i] * (1 + math.Abs(close-open)/open*moveImpact)
		high := math.Max(open, close) + wickUp[i]*open
		low := math.Min(open, close) - wickDown[i]*open

		p, err := model.NewPricePoint(first.AddDate(0, 0, i), open, high, low, close, volume)
		if err != nil {
			return model.Series{}, fmt.Errorf("gbm: day %d: %w", i, err)
		}
		points[i] = p
		open = close
	}

	series, err := model.NewSeries(points)
	if err != nil {
		return model.Series{}, fmt.Errorf("gbm: %w", err)
	}
	return series, nil
}
