// Package score implements the G-Score computation: weight preset
// resolution, the composite calculator, band classification, factor
// staleness evaluation, and factor deltas. Everything here is a pure
// function over its inputs plus static tables initialized at load.
package score

import (
	"errors"
	"fmt"
	"math"

	"github.com/ghostgauge/gscore/internal/domain"
)

// ErrNoUsableFactors is returned when the included factor set is empty (or
// carries zero total weight), leaving nothing to renormalize over.
var ErrNoUsableFactors = errors.New("no usable factors")

// DefaultMinFactorCount is the conventional floor of canonical factors below
// which a composite is flagged low-confidence rather than rejected.
const DefaultMinFactorCount = 3

// Compute calculates the weighted composite score for a factor set under a
// weight configuration, applying the cycle and spike adjustments.
//
// Factors with status excluded or a missing score are filtered out and the
// remaining weights renormalized. An empty included set is a hard failure;
// fewer than DefaultMinFactorCount usable canonical factors degrades to a
// low-confidence result. The adjusted sum is clamped to [0,100], rounded
// half-up to the nearest integer, and classified into a band.
func Compute(factors []domain.Factor, weights domain.WeightConfig, cycleAdj, spikeAdj float64) (*domain.CompositeScore, error) {
	return ComputeWithMinFactors(factors, weights, cycleAdj, spikeAdj, DefaultMinFactorCount)
}

// ComputeWithMinFactors is Compute with an explicit low-confidence floor.
func ComputeWithMinFactors(factors []domain.Factor, weights domain.WeightConfig, cycleAdj, spikeAdj float64, minFactors int) (*domain.CompositeScore, error) {
	if minFactors <= 0 {
		minFactors = DefaultMinFactorCount
	}

	// Filter to factors that can participate.
	included := make([]domain.Factor, 0, len(factors))
	for _, f := range factors {
		if f.Usable() {
			included = append(included, f)
		}
	}
	if len(included) == 0 {
		return nil, fmt.Errorf("all %d factors excluded or unscored: %w", len(factors), ErrNoUsableFactors)
	}

	totalWeight := 0.0
	for _, f := range included {
		totalWeight += weights[f.Key]
	}
	if totalWeight <= 0 {
		return nil, fmt.Errorf("included factors carry zero total weight: %w", ErrNoUsableFactors)
	}

	// Weighted sum under renormalized weights.
	raw := 0.0
	contributions := make([]domain.FactorContribution, 0, len(included))
	canonical := 0
	for _, f := range included {
		effective := weights[f.Key] / totalWeight
		contribution := effective * *f.Score
		raw += contribution
		contributions = append(contributions, domain.FactorContribution{
			Key:          f.Key,
			Score:        *f.Score,
			Weight:       effective,
			Contribution: contribution,
		})
		if domain.IsCanonicalFactor(f.Key) {
			canonical++
		}
	}

	adjusted := clamp(raw+cycleAdj+spikeAdj, 0, 100)

	// Round half-up before classification so band boundaries see integers.
	rounded := RoundHalfUp(adjusted)

	band, err := Classify(rounded)
	if err != nil {
		return nil, err
	}

	return &domain.CompositeScore{
		Score:           rounded,
		Raw:             adjusted,
		Band:            band,
		CycleAdjustment: cycleAdj,
		SpikeAdjustment: spikeAdj,
		LowConfidence:   canonical < minFactors,
		FactorsUsed:     len(included),
		Contributions:   contributions,
	}, nil
}

// RoundHalfUp rounds to the nearest integer with halves rounding up, so
// 49.5 becomes 50.
func RoundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

// ValidateTables checks the static preset and band tables: every preset's
// resolved weights sum to 1.0 within tolerance, and the bands partition
// [0,100] with no gaps or overlaps. Called once at startup.
func ValidateTables() error {
	for _, key := range PresetKeys() {
		weights, err := ResolvePreset(key)
		if err != nil {
			return err
		}
		if err := weights.Validate(); err != nil {
			return fmt.Errorf("preset %q: %w", key, err)
		}
	}

	bands := Bands()
	if len(bands) == 0 {
		return errors.New("band table is empty")
	}
	if bands[0].Min != 0 {
		return fmt.Errorf("first band starts at %d, want 0", bands[0].Min)
	}
	if bands[len(bands)-1].Max != 100 {
		return fmt.Errorf("last band ends at %d, want 100", bands[len(bands)-1].Max)
	}
	for i := range bands {
		if bands[i].Min > bands[i].Max {
			return fmt.Errorf("band %q has inverted range [%d,%d]", bands[i].Label, bands[i].Min, bands[i].Max)
		}
		if i > 0 && bands[i].Min != bands[i-1].Max+1 {
			return fmt.Errorf("band %q does not abut %q", bands[i].Label, bands[i-1].Label)
		}
	}
	return nil
}
