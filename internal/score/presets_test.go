package score

import (
	"errors"
	"math"
	"testing"

	"github.com/ghostgauge/gscore/internal/domain"
)

func TestResolvePresetKnownKeys(t *testing.T) {
	for _, key := range PresetKeys() {
		weights, err := ResolvePreset(key)
		if err != nil {
			t.Fatalf("preset %q failed to resolve: %v", key, err)
		}

		// Every canonical factor must appear, even at weight 0.
		if len(weights) != len(domain.CanonicalFactors) {
			t.Errorf("preset %q covers %d factors, want %d", key, len(weights), len(domain.CanonicalFactors))
		}
		for _, spec := range domain.CanonicalFactors {
			if _, ok := weights[spec.Key]; !ok {
				t.Errorf("preset %q missing factor %q", key, spec.Key)
			}
		}
	}
}

func TestResolvePresetWeightsSumToOne(t *testing.T) {
	for _, key := range PresetKeys() {
		weights, err := ResolvePreset(key)
		if err != nil {
			t.Fatalf("preset %q failed to resolve: %v", key, err)
		}
		if diff := math.Abs(weights.Sum() - 1.0); diff > domain.WeightTolerance {
			t.Errorf("preset %q sums to %f, want 1.0", key, weights.Sum())
		}
		if err := weights.Validate(); err != nil {
			t.Errorf("preset %q failed validation: %v", key, err)
		}
	}
}

func TestResolvePresetUnknownKey(t *testing.T) {
	_, err := ResolvePreset("does_not_exist")
	if !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("expected ErrPresetNotFound, got %v", err)
	}

	_, err = ResolvePreset("")
	if !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("expected ErrPresetNotFound for empty key, got %v", err)
	}
}

func TestResolvePresetReturnsIndependentCopies(t *testing.T) {
	first, _ := ResolvePreset("official_30_30")
	first["etf_flows"] = 99.0

	second, _ := ResolvePreset("official_30_30")
	if second["etf_flows"] == 99.0 {
		t.Error("mutating a resolved config leaked into the static table")
	}
}

func TestPresetsListing(t *testing.T) {
	all := Presets()
	if len(all) != 3 {
		t.Fatalf("expected 3 presets, got %d", len(all))
	}
	for _, p := range all {
		if p.Key == "" || p.Label == "" {
			t.Errorf("preset missing key or label: %+v", p)
		}
		if len(p.Weights) == 0 {
			t.Errorf("preset %q has no weights", p.Key)
		}
	}
}
