// Package alerts provides the CEL-based alert rule engine. Rules are
// compiled once, evaluated against the latest score context, and suppressed
// during their cooldown window after firing.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/ghostgauge/gscore/internal/domain"
	"github.com/ghostgauge/gscore/internal/score"
)

// Engine compiles and evaluates alert rules.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.AlertRule
	Program cel.Program
}

// NewEngine creates a new alert rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment exposing the latest score context
	env, err := cel.NewEnv(
		cel.Variable("score", cel.IntType),
		cel.Variable("raw", cel.DoubleType),
		cel.Variable("band", cel.StringType),
		cel.Variable("prev_score", cel.IntType),
		cel.Variable("prev_band", cel.StringType),
		cel.Variable("delta", cel.DoubleType),
		cel.Variable("low_confidence", cel.BoolType),
		cel.Variable("stale_count", cel.IntType),
		cel.Variable("excluded_count", cel.IntType),
		cel.Variable("factors", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("alert rule is required")
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled

	return nil
}

// LoadRules compiles and loads all enabled rules.
func (e *Engine) LoadRules(rules []*domain.AlertRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones. This enables
// hot-reloading of rules from the database after a CRUD change.
func (e *Engine) ReloadRules(rules []*domain.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		newRules[rule.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// UnloadRule removes a rule from the engine.
func (e *Engine) UnloadRule(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiledRules, ruleID)
}

// EvaluateInput is the score context alert expressions evaluate against.
type EvaluateInput struct {
	Score         int
	Raw           float64
	Band          string
	PrevScore     int
	PrevBand      string
	Delta         float64
	LowConfidence bool
	StaleCount    int
	ExcludedCount int
	Factors       map[string]float64
}

// BuildInput derives the evaluation context from the latest snapshot and its
// predecessor. prev may be nil when no earlier snapshot exists; delta and the
// previous fields then collapse to "no change".
func BuildInput(snap, prev *domain.Snapshot) *EvaluateInput {
	return BuildInputWithMinFactors(snap, prev, score.DefaultMinFactorCount)
}

// BuildInputWithMinFactors is BuildInput with an explicit low-confidence
// floor, so the flag matches whatever floor the service is configured with.
func BuildInputWithMinFactors(snap, prev *domain.Snapshot, minFactors int) *EvaluateInput {
	if minFactors <= 0 {
		minFactors = score.DefaultMinFactorCount
	}
	input := &EvaluateInput{
		Score:   score.RoundHalfUp(snap.CompositeScore),
		Raw:     snap.CompositeScore,
		Band:    snap.Band,
		Factors: make(map[string]float64, len(snap.Factors)),
	}

	staleCount := 0
	excludedCount := 0
	usable := 0
	for i := range snap.Factors {
		f := &snap.Factors[i]
		switch f.Status {
		case domain.StatusStale:
			staleCount++
		case domain.StatusExcluded:
			excludedCount++
		}
		if f.Usable() {
			usable++
		}
		if f.Score != nil {
			input.Factors[f.Key] = *f.Score
		}
	}
	input.StaleCount = staleCount
	input.ExcludedCount = excludedCount
	input.LowConfidence = usable < minFactors

	if prev != nil {
		input.PrevScore = score.RoundHalfUp(prev.CompositeScore)
		input.PrevBand = prev.Band
		input.Delta = snap.CompositeScore - prev.CompositeScore
	} else {
		input.PrevScore = input.Score
		input.PrevBand = input.Band
	}

	return input
}

// Result is the outcome of evaluating one rule.
type Result struct {
	Rule   *domain.AlertRule
	Fired  bool
	Err    error
	EvalMs int64
}

// EvaluateAll evaluates all loaded rules in parallel. A compile or eval
// failure of one rule never blocks the others; it surfaces in that rule's
// Result.Err.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) []Result {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	factors := input.Factors
	if factors == nil {
		factors = map[string]float64{}
	}

	activation := map[string]any{
		"score":          input.Score,
		"raw":            input.Raw,
		"band":           input.Band,
		"prev_score":     input.PrevScore,
		"prev_band":      input.PrevBand,
		"delta":          input.Delta,
		"low_confidence": input.LowConfidence,
		"stale_count":    input.StaleCount,
		"excluded_count": input.ExcludedCount,
		"factors":        factors,
	}

	// Parallel evaluation bounded by a semaphore
	results := make([]Result, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	return results
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) Result {
	start := time.Now()

	result := Result{Rule: rule.Rule}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Errorf("rule %s evaluation failed: %w", rule.Rule.ID, err)
		result.EvalMs = time.Since(start).Milliseconds()
		return result
	}

	if fired, ok := out.(types.Bool); ok {
		result.Fired = bool(fired)
	} else {
		result.Err = fmt.Errorf("rule %s produced non-bool result %v", rule.Rule.ID, out)
	}
	result.EvalMs = time.Since(start).Milliseconds()

	return result
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the currently loaded rule configurations.
func (e *Engine) LoadedRules() []*domain.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.AlertRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.AlertRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	// Alert expressions are predicates; anything else is a config error.
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
