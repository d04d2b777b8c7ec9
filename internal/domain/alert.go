package domain

import (
	"fmt"
	"time"
)

// AlertSeverity ranks how urgent a fired alert is.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertRule defines a score-movement alert. The expression is a CEL formula
// over the latest score context and must evaluate to a boolean.
type AlertRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// CEL expression, e.g. `band == "High Risk" && delta > 5.0`
	Expression string `json:"expression"`

	Severity AlertSeverity `json:"severity"`

	// CooldownMinutes suppresses refires after the rule triggers.
	CooldownMinutes int `json:"cooldownMinutes"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Validate checks the rule's static fields. Expression compilation happens
// in the alert engine, not here.
func (r *AlertRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("alert rule name is required")
	}
	if r.Expression == "" {
		return fmt.Errorf("alert rule expression is required")
	}
	switch r.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		return fmt.Errorf("invalid severity %q", r.Severity)
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("cooldown must not be negative")
	}
	return nil
}

// AlertEvent records a fired alert rule.
type AlertEvent struct {
	ID       string        `json:"id"`
	RuleID   string        `json:"ruleId"`
	RuleName string        `json:"ruleName"`
	Severity AlertSeverity `json:"severity"`
	Score    int           `json:"score"`
	Band     string        `json:"band"`
	Message  string        `json:"message"`
	FiredUTC time.Time     `json:"firedUtc"`
}
