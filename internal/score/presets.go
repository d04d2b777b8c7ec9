package score

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ghostgauge/gscore/internal/domain"
)

// ErrPresetNotFound is returned when a preset key is not in the closed
// preset enumeration.
var ErrPresetNotFound = errors.New("weight preset not found")

// Preset is a named weight configuration over the canonical factors.
type Preset struct {
	Key         string              `json:"key"`
	Label       string              `json:"label"`
	Description string              `json:"description"`
	Weights     domain.WeightConfig `json:"weights"`
}

// presets is the closed preset table. Weights are fractional and sum to 1.0
// per preset; pillar splits are reflected in the key (liquidity/momentum).
var presets = map[string]Preset{
	"official_30_30": {
		Key:         "official_30_30",
		Label:       "Official (30/30)",
		Description: "The official weighting: 30% Liquidity, 30% Momentum, 15% Term Structure, 15% Macro, 10% Social.",
		Weights: domain.WeightConfig{
			"etf_flows":        0.12,
			"net_liquidity":    0.10,
			"stablecoins":      0.08,
			"trend_valuation":  0.18,
			"onchain_activity": 0.12,
			"term_leverage":    0.15,
			"macro_overlay":    0.15,
			"social_interest":  0.10,
		},
	},
	"liq_35_25": {
		Key:         "liq_35_25",
		Label:       "Liquidity-heavy (35/25)",
		Description: "Tilts toward liquidity conditions: 35% Liquidity, 25% Momentum.",
		Weights: domain.WeightConfig{
			"etf_flows":        0.14,
			"net_liquidity":    0.12,
			"stablecoins":      0.09,
			"trend_valuation":  0.15,
			"onchain_activity": 0.10,
			"term_leverage":    0.15,
			"macro_overlay":    0.15,
			"social_interest":  0.10,
		},
	},
	"mom_25_35": {
		Key:         "mom_25_35",
		Label:       "Momentum-tilted (25/35)",
		Description: "Tilts toward trend strength: 25% Liquidity, 35% Momentum.",
		Weights: domain.WeightConfig{
			"etf_flows":        0.10,
			"net_liquidity":    0.08,
			"stablecoins":      0.07,
			"trend_valuation":  0.21,
			"onchain_activity": 0.14,
			"term_leverage":    0.15,
			"macro_overlay":    0.15,
			"social_interest":  0.10,
		},
	},
}

// ResolvePreset resolves a preset key to a weight configuration covering
// every canonical factor. Factors a preset does not mention carry weight 0,
// which excludes them from the composite without being an error. Unknown
// keys fail hard.
func ResolvePreset(presetKey string) (domain.WeightConfig, error) {
	preset, ok := presets[presetKey]
	if !ok {
		return nil, fmt.Errorf("preset %q: %w", presetKey, ErrPresetNotFound)
	}

	weights := make(domain.WeightConfig, len(domain.CanonicalFactors))
	for _, spec := range domain.CanonicalFactors {
		weights[spec.Key] = 0
	}
	for key, w := range preset.Weights {
		weights[key] = w
	}
	return weights, nil
}

// PresetKeys returns the preset enumeration in sorted order.
func PresetKeys() []string {
	keys := make([]string, 0, len(presets))
	for k := range presets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Presets returns the preset table in key order, with cloned weight maps so
// callers cannot mutate the static configuration.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, key := range PresetKeys() {
		p := presets[key]
		p.Weights = p.Weights.Clone()
		out = append(out, p)
	}
	return out
}
