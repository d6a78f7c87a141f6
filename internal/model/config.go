package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DateLayout is the calendar-date format used in every textual output.
const DateLayout = "2006-01-02"

// MaxDays caps the simulation horizon so a single run stays bounded in memory.
const MaxDays = 1_000_000

// ErrInvalidConfig is returned (wrapped) when simulation parameters are out of range.
var ErrInvalidConfig = errors.New("invalid simulation config")

// SimParams is the raw, unvalidated parameter bundle.
// Use NewSimConfig to obtain a usable SimConfig.
type SimParams struct {
	Days            int       `json:"days"`
	StartPrice      float64   `json:"start_price"`
	Seed            int64     `json:"seed"`
	Mu              float64   `json:"mu"`    // drift per day
	Sigma           float64   `json:"sigma"` // volatility per day
	FeeRate         float64   `json:"fee_rate"`
	VolumeThreshold float64   `json:"volume_threshold"`
	InitialCapital  float64   `json:"initial_capital"`
	BaseVolume      float64   `json:"base_volume"`
	EndDate         time.Time `json:"end_date"`
}

// DefaultSimParams returns the reference parameter set.
func DefaultSimParams() SimParams {
	return SimParams{
		Days:            260,
		StartPrice:      60000.0,
		Seed:            42,
		Mu:              0.0005,
		Sigma:           0.035,
		FeeRate:         0.001,
		VolumeThreshold: 1.2,
		InitialCapital:  1000.0,
		BaseVolume:      100_000_000,
		EndDate:         time.Date(2024, time.December, 21, 0, 0, 0, 0, time.UTC),
	}
}

// SimConfig is a validated, read-only simulation configuration.
type SimConfig struct {
	p SimParams
}

// NewSimConfig validates p and returns an immutable config.
// The end date is truncated to a UTC calendar day.
func NewSimConfig(p SimParams) (SimConfig, error) {
	if err := validate(p); err != nil {
		return SimConfig{}, err
	}
	y, m, d := p.EndDate.Date()
	p.EndDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return SimConfig{p: p}, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validate(p SimParams) error {
	if p.Days <= 0 {
		return invalid("days must be positive")
	}
	if p.Days > MaxDays {
		return invalid("days must not exceed %d", MaxDays)
	}
	if !finite(p.StartPrice) || p.StartPrice <= 0 {
		return invalid("start_price must be positive")
	}
	if p.Seed < 0 || p.Seed > math.MaxUint32 {
		return invalid("seed must be between 0 and %d", uint32(math.MaxUint32))
	}
	if !finite(p.Mu) {
		return invalid("mu must be finite")
	}
	nonNeg := []struct {
		name string
		v    float64
	}{
		{"sigma", p.Sigma},
		{"initial_capital", p.InitialCapital},
		{"base_volume", p.BaseVolume},
		{"fee_rate", p.FeeRate},
		{"volume_threshold", p.VolumeThreshold},
	}
	for _, f := range nonNeg {
		if !finite(f.v) || f.v < 0 {
			return invalid("%s must be non-negative", f.name)
		}
	}
	if p.FeeRate >= 1 {
		return invalid("fee_rate must be below 1")
	}
	if p.EndDate.IsZero() {
		return invalid("end_date must be set")
	}
	return nil
}

func (c SimConfig) Days() int                { return c.p.Days }
func (c SimConfig) StartPrice() float64      { return c.p.StartPrice }
func (c SimConfig) Seed() uint32             { return uint32(c.p.Seed) }
func (c SimConfig) Mu() float64              { return c.p.Mu }
func (c SimConfig) Sigma() float64           { return c.p.Sigma }
func (c SimConfig) FeeRate() float64         { return c.p.FeeRate }
func (c SimConfig) VolumeThreshold() float64 { return c.p.VolumeThreshold }
func (c SimConfig) InitialCapital() float64  { return c.p.InitialCapital }
func (c SimConfig) BaseVolume() float64      { return c.p.BaseVolume }
func (c SimConfig) EndDate() time.Time       { return c.p.EndDate }

// Params returns a copy of the validated parameters.
func (c SimConfig) Params() SimParams { return c.p }
