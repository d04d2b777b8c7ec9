package alerts

import "github.com/ghostgauge/gscore/internal/domain"

// DefaultRules returns the starter rule set seeded into an empty database on
// first startup. Operators can edit or delete them through the alerts API.
func DefaultRules() []*domain.AlertRule {
	return []*domain.AlertRule{
		{
			ID:              "builtin-band-change",
			Name:            "Band changed",
			Description:     "The composite moved into a different risk band.",
			Expression:      `band != prev_band`,
			Severity:        domain.SeverityWarning,
			CooldownMinutes: 360,
			Enabled:         true,
		},
		{
			ID:              "builtin-sharp-move",
			Name:            "Sharp daily move",
			Description:     "Composite moved five or more points in a day.",
			Expression:      `delta >= 5.0 || delta <= -5.0`,
			Severity:        domain.SeverityWarning,
			CooldownMinutes: 720,
			Enabled:         true,
		},
		{
			ID:              "builtin-high-risk",
			Name:            "High Risk zone",
			Description:     "Composite entered the High Risk band.",
			Expression:      `score >= 80`,
			Severity:        domain.SeverityCritical,
			CooldownMinutes: 1440,
			Enabled:         true,
		},
		{
			ID:              "builtin-low-confidence",
			Name:            "Low confidence composite",
			Description:     "Fewer than three usable factors went into the composite.",
			Expression:      `low_confidence`,
			Severity:        domain.SeverityInfo,
			CooldownMinutes: 1440,
			Enabled:         true,
		},
	}
}
