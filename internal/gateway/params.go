package gateway

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"crossover-sim/internal/model"
)

// ParseParams overlays query parameters on defaults. Recognised keys are
// the JSON names of model.SimParams; others are ignored. Malformed values
// return an error wrapping model.ErrInvalidConfig.
func ParseParams(q url.Values, defaults model.SimParams) (model.SimParams, error) {
	p := defaults

	ints := map[string]*int{"days": &p.Days}
	for key, dst := range ints {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return p, badParam(key, v)
			}
			*dst = n
		}
	}

	if v := q.Get("seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return p, badParam("seed", v)
		}
		p.Seed = n
	}

	floats := map[string]*float64{
		"start_price":      &p.StartPrice,
		"mu":               &p.Mu,
		"sigma":            &p.Sigma,
		"fee_rate":         &p.FeeRate,
		"volume_threshold": &p.VolumeThreshold,
		"initial_capital":  &p.InitialCapital,
		"base_volume":      &p.BaseVolume,
	}
	for key, dst := range floats {
		if v := q.Get(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return p, badParam(key, v)
			}
			*dst = f
		}
	}

	if v := q.Get("end_date"); v != "" {
		d, err := time.Parse(model.DateLayout, v)
		if err != nil {
			return p, badParam("end_date", v)
		}
		p.EndDate = d
	}
	return p, nil
}

func badParam(key, value string) error {
	return fmt.Errorf("%w: %s: cannot parse %q", model.ErrInvalidConfig, key, value)
}
