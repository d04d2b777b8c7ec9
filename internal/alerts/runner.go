package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ghostgauge/gscore/internal/domain"
)

// Runner wires the engine to the cooldown counter, the event store, and the
// event bus. The ingest pipeline invokes it once per snapshot.
type Runner struct {
	engine *Engine
	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	logger *slog.Logger

	// MinFactorCount is the low-confidence floor for the low_confidence
	// activation variable. Zero means the default floor.
	MinFactorCount int
}

// NewRunner creates an alert runner.
func NewRunner(engine *Engine, repo domain.Repository, cache domain.Cache, bus domain.EventBus, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		engine: engine,
		repo:   repo,
		cache:  cache,
		bus:    bus,
		logger: logger,
	}
}

// Run evaluates all loaded rules against the latest snapshot and handles
// fired rules: cooldown suppression, event persistence, bus publication.
// Returns the events that actually fired (cooldown-suppressed refires are
// not included).
func (r *Runner) Run(ctx context.Context, snap, prev *domain.Snapshot) ([]*domain.AlertEvent, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot is required")
	}

	input := BuildInputWithMinFactors(snap, prev, r.MinFactorCount)
	results := r.engine.EvaluateAll(ctx, input)

	var fired []*domain.AlertEvent
	for _, res := range results {
		if res.Err != nil {
			r.logger.Error("alert rule evaluation failed",
				"rule_id", res.Rule.ID,
				"rule_name", res.Rule.Name,
				"error", res.Err,
			)
			continue
		}
		if !res.Fired {
			continue
		}

		if r.inCooldown(ctx, res.Rule) {
			r.logger.Debug("alert suppressed by cooldown",
				"rule_id", res.Rule.ID,
				"rule_name", res.Rule.Name,
			)
			continue
		}

		event := &domain.AlertEvent{
			ID:       uuid.New().String(),
			RuleID:   res.Rule.ID,
			RuleName: res.Rule.Name,
			Severity: res.Rule.Severity,
			Score:    input.Score,
			Band:     input.Band,
			Message:  fmt.Sprintf("%s: score %d (%s)", res.Rule.Name, input.Score, input.Band),
			FiredUTC: time.Now().UTC(),
		}

		if err := r.repo.SaveAlertEvent(ctx, event); err != nil {
			r.logger.Error("failed to persist alert event",
				"rule_id", res.Rule.ID,
				"error", err,
			)
			continue
		}

		r.publish(ctx, event)
		fired = append(fired, event)

		r.logger.Info("alert fired",
			"rule_id", res.Rule.ID,
			"rule_name", res.Rule.Name,
			"severity", res.Rule.Severity,
			"score", input.Score,
			"band", input.Band,
		)
	}

	return fired, nil
}

// inCooldown atomically bumps the rule's cooldown counter and reports
// whether a previous fire is still inside the window.
func (r *Runner) inCooldown(ctx context.Context, rule *domain.AlertRule) bool {
	if rule.CooldownMinutes <= 0 || r.cache == nil {
		return false
	}

	window := time.Duration(rule.CooldownMinutes) * time.Minute
	count, err := r.cache.IncrementCounter(ctx, "alert:cooldown:"+rule.ID, window)
	if err != nil {
		// Counter trouble must not silence alerts.
		r.logger.Warn("cooldown counter unavailable",
			"rule_id", rule.ID,
			"error", err,
		)
		return false
	}
	return count > 1
}

func (r *Runner) publish(ctx context.Context, event *domain.AlertEvent) {
	if r.bus == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("failed to marshal alert event", "error", err)
		return
	}

	if err := r.bus.Publish(ctx, domain.TopicAlertFired, payload); err != nil {
		r.logger.Error("failed to publish alert event",
			"topic", domain.TopicAlertFired,
			"error", err,
		)
	}
}
