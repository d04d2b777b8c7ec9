package domain

import (
	"fmt"
	"math"
)

// WeightTolerance is the allowed drift from 1.0 when validating a resolved
// weight configuration.
const WeightTolerance = 1e-6

// WeightConfig maps factor keys to non-negative fractional weights. A
// resolved config covers every canonical factor; keys a preset does not
// mention carry weight 0.
type WeightConfig map[string]float64

// Sum returns the total weight across all factors.
func (w WeightConfig) Sum() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// Validate checks that no weight is negative and the total is 1.0 within
// tolerance.
func (w WeightConfig) Validate() error {
	for key, v := range w {
		if v < 0 {
			return fmt.Errorf("weight for %q is negative: %f", key, v)
		}
	}
	if diff := math.Abs(w.Sum() - 1.0); diff > WeightTolerance {
		return fmt.Errorf("weights sum to %f, want 1.0", w.Sum())
	}
	return nil
}

// Clone returns an independent copy of the config.
func (w WeightConfig) Clone() WeightConfig {
	out := make(WeightConfig, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
