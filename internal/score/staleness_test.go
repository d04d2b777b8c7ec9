package score

import (
	"testing"
	"time"

	"github.com/ghostgauge/gscore/internal/domain"
)

func factorUpdatedAgo(key string, age time.Duration, now time.Time) domain.Factor {
	last := now.Add(-age)
	return domain.Factor{
		Key:     key,
		Score:   fp(50),
		Status:  domain.StatusFresh,
		LastUTC: &last,
	}
}

func TestStalenessLevels(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// etf_flows has a 24h TTL: stale window runs to 72h.
	cases := []struct {
		name   string
		age    time.Duration
		level  domain.FactorStatus
		reason string
	}{
		{"well within ttl", 6 * time.Hour, domain.StatusFresh, ""},
		{"exactly at ttl", 24 * time.Hour, domain.StatusFresh, ""},
		{"past ttl", 50 * time.Hour, domain.StatusStale, domain.ReasonStaleBeyondTTL},
		{"at stale limit", 72 * time.Hour, domain.StatusStale, domain.ReasonStaleBeyondTTL},
		{"past stale limit", 80 * time.Hour, domain.StatusExcluded, domain.ReasonStaleBeyondLimit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := factorUpdatedAgo("etf_flows", tc.age, now)
			s := EvaluateStaleness(&f, now, nil)
			if s.Level != tc.level {
				t.Errorf("age %v: expected level %q, got %q", tc.age, tc.level, s.Level)
			}
			if s.Reason != tc.reason {
				t.Errorf("age %v: expected reason %q, got %q", tc.age, tc.reason, s.Reason)
			}
		})
	}
}

func TestStalenessMissingTimestamp(t *testing.T) {
	now := time.Now().UTC()
	f := domain.Factor{Key: "etf_flows", Score: fp(50), Status: domain.StatusFresh}

	s := EvaluateStaleness(&f, now, nil)
	if s.Level != domain.StatusExcluded {
		t.Errorf("expected excluded without timestamp, got %q", s.Level)
	}
	if s.Reason != domain.ReasonMissingTimestamp {
		t.Errorf("expected reason %q, got %q", domain.ReasonMissingTimestamp, s.Reason)
	}
}

func TestStalenessTTLOverride(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := factorUpdatedAgo("etf_flows", 30*time.Hour, now)

	// Default 24h TTL marks 30h stale.
	s := EvaluateStaleness(&f, now, nil)
	if s.Level != domain.StatusStale {
		t.Fatalf("expected stale under default TTL, got %q", s.Level)
	}

	// Overriding to 48h makes the same age fresh.
	s = EvaluateStaleness(&f, now, map[string]int{"etf_flows": 48})
	if s.Level != domain.StatusFresh {
		t.Errorf("expected fresh under 48h override, got %q", s.Level)
	}
}

func TestTTLHoursFallbacks(t *testing.T) {
	if got := TTLHours("onchain_activity", nil); got != 48 {
		t.Errorf("expected canonical default 48 for onchain_activity, got %d", got)
	}
	if got := TTLHours("onchain_activity", map[string]int{"onchain_activity": 12}); got != 12 {
		t.Errorf("expected override 12, got %d", got)
	}
	if got := TTLHours("unknown_factor", nil); got != DefaultTTLHours {
		t.Errorf("expected fallback %d for unknown key, got %d", DefaultTTLHours, got)
	}
	// Non-positive overrides are ignored.
	if got := TTLHours("etf_flows", map[string]int{"etf_flows": 0}); got != 24 {
		t.Errorf("expected zero override to be ignored, got %d", got)
	}
}

func TestRestatusEnforcesScoreInvariant(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := factorUpdatedAgo("etf_flows", 2*time.Hour, now)
	ancient := factorUpdatedAgo("trend_valuation", 200*time.Hour, now)
	noScore := factorUpdatedAgo("social_interest", 1*time.Hour, now)
	noScore.Score = nil

	out := Restatus([]domain.Factor{fresh, ancient, noScore}, now, nil)
	if len(out) != 3 {
		t.Fatalf("expected 3 factors, got %d", len(out))
	}

	if out[0].Status != domain.StatusFresh || out[0].Score == nil {
		t.Errorf("fresh factor mishandled: %+v", out[0])
	}
	if out[1].Status != domain.StatusExcluded {
		t.Errorf("ancient factor should be excluded, got %q", out[1].Status)
	}
	if out[1].Score != nil {
		t.Error("excluded factor kept its score")
	}
	if out[2].Status != domain.StatusExcluded || out[2].Reason != domain.ReasonMissingScore {
		t.Errorf("scoreless factor mishandled: %+v", out[2])
	}

	// Input slice stays untouched.
	if ancient.Status != domain.StatusFresh {
		t.Error("Restatus mutated its input")
	}
}
