package score

import (
	"time"

	"github.com/ghostgauge/gscore/internal/domain"
)

// staleMultiplier widens the stale window to 3x the TTL before a factor is
// excluded outright, so minor delays do not flap a factor straight from
// fresh to excluded. Applied uniformly; only the TTL itself varies per
// factor.
const staleMultiplier = 3

// EvaluateStaleness classifies a factor's freshness against its TTL.
//
// fresh    when elapsed <= ttl
// stale    when ttl < elapsed <= 3*ttl
// excluded when elapsed > 3*ttl, or the factor has no last-updated timestamp
//
// ttlOverrides replaces the per-factor default TTL (hours) for matching
// keys. The reason field carries a machine-readable code, never prose.
func EvaluateStaleness(factor *domain.Factor, nowUTC time.Time, ttlOverrides map[string]int) domain.Staleness {
	if factor.LastUTC == nil {
		return domain.Staleness{Level: domain.StatusExcluded, Reason: domain.ReasonMissingTimestamp}
	}

	ttl := time.Duration(TTLHours(factor.Key, ttlOverrides)) * time.Hour
	elapsed := nowUTC.Sub(factor.LastUTC.UTC())

	switch {
	case elapsed <= ttl:
		return domain.Staleness{Level: domain.StatusFresh}
	case elapsed <= staleMultiplier*ttl:
		return domain.Staleness{Level: domain.StatusStale, Reason: domain.ReasonStaleBeyondTTL}
	default:
		return domain.Staleness{Level: domain.StatusExcluded, Reason: domain.ReasonStaleBeyondLimit}
	}
}

// TTLHours returns the staleness TTL for a factor key: the override when
// present, else the canonical default, else DefaultTTLHours for unknown
// keys.
func TTLHours(key string, ttlOverrides map[string]int) int {
	if ttlOverrides != nil {
		if ttl, ok := ttlOverrides[key]; ok && ttl > 0 {
			return ttl
		}
	}
	if spec, ok := domain.FactorSpecByKey(key); ok {
		return spec.DefaultTTL
	}
	return DefaultTTLHours
}

// DefaultTTLHours applies to factor keys outside the canonical table.
const DefaultTTLHours = 24

// Restatus returns a copy of the factor set with status, reason, and score
// updated from a staleness evaluation at nowUTC. Factors that become
// excluded lose their score, preserving the score-nil-iff-excluded
// invariant. The input slice is never mutated.
func Restatus(factors []domain.Factor, nowUTC time.Time, ttlOverrides map[string]int) []domain.Factor {
	out := make([]domain.Factor, len(factors))
	for i, f := range factors {
		s := EvaluateStaleness(&f, nowUTC, ttlOverrides)
		f.Status = s.Level
		f.Reason = s.Reason
		if f.Status == domain.StatusExcluded {
			f.Score = nil
		} else if f.Score == nil {
			f.Status = domain.StatusExcluded
			f.Reason = domain.ReasonMissingScore
		}
		out[i] = f
	}
	return out
}
