package domain

import (
	"time"
)

// Pillar is one of the five top-level risk categories factors roll up into.
type Pillar string

const (
	PillarLiquidity     Pillar = "liquidity"
	PillarMomentum      Pillar = "momentum"
	PillarTermStructure Pillar = "term_structure"
	PillarMacro         Pillar = "macro"
	PillarSocial        Pillar = "social"
)

// FactorStatus describes the freshness level of a factor's data.
type FactorStatus string

const (
	StatusFresh    FactorStatus = "fresh"
	StatusStale    FactorStatus = "stale"
	StatusExcluded FactorStatus = "excluded"
)

// Machine-readable staleness reason codes. These are distinct from any
// human-facing message so callers can branch on them.
const (
	ReasonStaleBeyondTTL   = "stale_beyond_ttl"
	ReasonStaleBeyondLimit = "stale_beyond_exclusion"
	ReasonMissingTimestamp = "missing_timestamp"
	ReasonMissingScore     = "missing_score"
	ReasonInvalidScore     = "invalid_score"
)

// Factor is a single scored risk input, produced once per ETL cycle and
// consumed read-only. A corrected value arrives as a new snapshot, never as
// an in-place mutation.
//
// Invariant: Score is nil if and only if Status is StatusExcluded.
type Factor struct {
	Key       string       `json:"key"`
	Label     string       `json:"label"`
	Pillar    Pillar       `json:"pillar"`
	Score     *float64     `json:"score"` // 0-100, nil when excluded
	WeightPct float64      `json:"weight_pct"`
	Status    FactorStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	LastUTC   *time.Time   `json:"last_utc,omitempty"`
}

// Usable reports whether the factor can participate in a composite
// computation.
func (f *Factor) Usable() bool {
	return f.Status != StatusExcluded && f.Score != nil
}

// FactorSpec is a canonical factor definition: stable key, display label,
// pillar membership, and the default staleness TTL in hours.
type FactorSpec struct {
	Key        string
	Label      string
	Pillar     Pillar
	DefaultTTL int // hours
}

// CanonicalFactors is the closed set of eight factors the composite is built
// from, in display order.
var CanonicalFactors = []FactorSpec{
	{Key: "etf_flows", Label: "ETF Flows", Pillar: PillarLiquidity, DefaultTTL: 24},
	{Key: "net_liquidity", Label: "Net Liquidity", Pillar: PillarLiquidity, DefaultTTL: 72},
	{Key: "stablecoins", Label: "Stablecoin Supply", Pillar: PillarLiquidity, DefaultTTL: 48},
	{Key: "trend_valuation", Label: "Trend & Valuation", Pillar: PillarMomentum, DefaultTTL: 24},
	{Key: "onchain_activity", Label: "On-chain Activity", Pillar: PillarMomentum, DefaultTTL: 48},
	{Key: "term_leverage", Label: "Term Structure & Leverage", Pillar: PillarTermStructure, DefaultTTL: 24},
	{Key: "macro_overlay", Label: "Macro Overlay", Pillar: PillarMacro, DefaultTTL: 72},
	{Key: "social_interest", Label: "Social Interest", Pillar: PillarSocial, DefaultTTL: 24},
}

// FactorSpecByKey returns the canonical definition for a factor key.
func FactorSpecByKey(key string) (FactorSpec, bool) {
	for _, spec := range CanonicalFactors {
		if spec.Key == key {
			return spec, true
		}
	}
	return FactorSpec{}, false
}

// IsCanonicalFactor reports whether key belongs to the canonical factor set.
func IsCanonicalFactor(key string) bool {
	_, ok := FactorSpecByKey(key)
	return ok
}
