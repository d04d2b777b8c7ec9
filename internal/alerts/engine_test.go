package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/ghostgauge/gscore/internal/domain"
)

func testRule(id, expr string) *domain.AlertRule {
	return &domain.AlertRule{
		ID:         id,
		Name:       id,
		Expression: expr,
		Severity:   domain.SeverityWarning,
		Enabled:    true,
	}
}

func TestEngineCompile(t *testing.T) {
	engine, err := NewEngine(4)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Close()

	t.Run("ValidBoolExpression", func(t *testing.T) {
		if err := engine.ValidateRule(testRule("r1", `score >= 80`)); err != nil {
			t.Errorf("expected valid rule, got: %v", err)
		}
	})

	t.Run("RejectsNonBoolExpression", func(t *testing.T) {
		err := engine.ValidateRule(testRule("r2", `score + 1`))
		if err == nil {
			t.Error("expected error for non-bool expression")
		}
	})

	t.Run("RejectsSyntaxError", func(t *testing.T) {
		err := engine.ValidateRule(testRule("r3", `score >==< 80`))
		if err == nil {
			t.Error("expected error for malformed expression")
		}
	})

	t.Run("RejectsUnknownVariable", func(t *testing.T) {
		err := engine.ValidateRule(testRule("r4", `velocity > 10`))
		if err == nil {
			t.Error("expected error for unknown variable")
		}
	})

	t.Run("ValidateDoesNotLoad", func(t *testing.T) {
		before := engine.RulesCount()
		_ = engine.ValidateRule(testRule("r5", `band == "High Risk"`))
		if engine.RulesCount() != before {
			t.Error("ValidateRule must not mutate loaded rules")
		}
	})
}

func TestEngineEvaluate(t *testing.T) {
	engine, err := NewEngine(4)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Close()

	rules := []*domain.AlertRule{
		testRule("band-change", `band != prev_band`),
		testRule("sharp-move", `delta >= 5.0 || delta <= -5.0`),
		testRule("high-risk", `score >= 80`),
		testRule("factor-spike", `"term_leverage" in factors && factors["term_leverage"] > 90.0`),
	}
	if err := engine.LoadRules(rules); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if engine.RulesCount() != 4 {
		t.Fatalf("expected 4 loaded rules, got %d", engine.RulesCount())
	}

	ctx := context.Background()

	firedSet := func(results []Result) map[string]bool {
		fired := make(map[string]bool)
		for _, res := range results {
			if res.Err != nil {
				t.Fatalf("rule %s errored: %v", res.Rule.ID, res.Err)
			}
			fired[res.Rule.ID] = res.Fired
		}
		return fired
	}

	t.Run("QuietDay", func(t *testing.T) {
		input := &EvaluateInput{
			Score:     52,
			Raw:       51.8,
			Band:      "Hold & Wait",
			PrevScore: 51,
			PrevBand:  "Hold & Wait",
			Delta:     0.9,
			Factors:   map[string]float64{"term_leverage": 55},
		}

		fired := firedSet(engine.EvaluateAll(ctx, input))
		for id, f := range fired {
			if f {
				t.Errorf("rule %s should not fire on a quiet day", id)
			}
		}
	})

	t.Run("BandTransition", func(t *testing.T) {
		input := &EvaluateInput{
			Score:     66,
			Raw:       65.7,
			Band:      "Reduce Risk",
			PrevScore: 63,
			PrevBand:  "Hold & Wait",
			Delta:     2.4,
		}

		fired := firedSet(engine.EvaluateAll(ctx, input))
		if !fired["band-change"] {
			t.Error("band-change should fire on a band transition")
		}
		if fired["sharp-move"] || fired["high-risk"] {
			t.Error("only band-change should fire")
		}
	})

	t.Run("SharpDrop", func(t *testing.T) {
		input := &EvaluateInput{
			Score:     40,
			Raw:       40.2,
			Band:      "Moderate Buying",
			PrevScore: 47,
			PrevBand:  "Moderate Buying",
			Delta:     -6.8,
		}

		fired := firedSet(engine.EvaluateAll(ctx, input))
		if !fired["sharp-move"] {
			t.Error("sharp-move should fire on a -6.8 delta")
		}
	})

	t.Run("HighRiskWithFactorSpike", func(t *testing.T) {
		input := &EvaluateInput{
			Score:     84,
			Raw:       83.6,
			Band:      "High Risk",
			PrevScore: 81,
			PrevBand:  "High Risk",
			Delta:     2.3,
			Factors:   map[string]float64{"term_leverage": 95, "etf_flows": 60},
		}

		fired := firedSet(engine.EvaluateAll(ctx, input))
		if !fired["high-risk"] {
			t.Error("high-risk should fire at score 84")
		}
		if !fired["factor-spike"] {
			t.Error("factor-spike should fire with term_leverage at 95")
		}
	})

	t.Run("NilFactorsMap", func(t *testing.T) {
		input := &EvaluateInput{
			Score: 50,
			Band:  "Hold & Wait",
		}

		results := engine.EvaluateAll(ctx, input)
		for _, res := range results {
			if res.Err != nil {
				t.Errorf("rule %s errored with nil factors: %v", res.Rule.ID, res.Err)
			}
		}
	})
}

func TestEngineEvalErrorIsolation(t *testing.T) {
	engine, err := NewEngine(4)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Close()

	// Missing map key errors at eval time, not compile time.
	if err := engine.LoadRule(testRule("broken", `factors["missing"] > 1.0`)); err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}
	if err := engine.LoadRule(testRule("healthy", `score >= 10`)); err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}

	results := engine.EvaluateAll(context.Background(), &EvaluateInput{
		Score:   50,
		Factors: map[string]float64{},
	})

	var brokenErr error
	healthyFired := false
	for _, res := range results {
		switch res.Rule.ID {
		case "broken":
			brokenErr = res.Err
		case "healthy":
			if res.Err != nil {
				t.Errorf("healthy rule errored: %v", res.Err)
			}
			healthyFired = res.Fired
		}
	}

	if brokenErr == nil {
		t.Error("expected eval error for missing map key")
	}
	if !healthyFired {
		t.Error("healthy rule should still fire despite sibling failure")
	}
}

func TestEngineReload(t *testing.T) {
	engine, err := NewEngine(4)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Close()

	if err := engine.LoadRule(testRule("old", `score >= 1`)); err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}

	disabled := testRule("disabled", `score >= 2`)
	disabled.Enabled = false

	if err := engine.ReloadRules([]*domain.AlertRule{
		testRule("new-1", `score >= 1`),
		testRule("new-2", `delta > 0.0`),
		disabled,
	}); err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}

	if engine.RulesCount() != 2 {
		t.Errorf("expected 2 rules after reload, got %d", engine.RulesCount())
	}

	loaded := engine.LoadedRules()
	for _, rule := range loaded {
		if rule.ID == "old" {
			t.Error("old rule should be gone after reload")
		}
		if rule.ID == "disabled" {
			t.Error("disabled rule should not load")
		}
	}
}

func TestDefaultRulesCompile(t *testing.T) {
	engine, err := NewEngine(4)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Close()

	if err := engine.LoadRules(DefaultRules()); err != nil {
		t.Fatalf("builtin rules must compile: %v", err)
	}
	if engine.RulesCount() != len(DefaultRules()) {
		t.Errorf("expected %d builtin rules loaded, got %d", len(DefaultRules()), engine.RulesCount())
	}
}

func TestBuildInput(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	now := time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)

	snap := &domain.Snapshot{
		CompositeScore: 67.5,
		Band:           "Reduce Risk",
		AsOfUTC:        now,
		Factors: []domain.Factor{
			{Key: "etf_flows", Score: f(70), Status: domain.StatusFresh},
			{Key: "net_liquidity", Score: f(65), Status: domain.StatusStale},
			{Key: "stablecoins", Score: nil, Status: domain.StatusExcluded},
		},
	}
	prev := &domain.Snapshot{
		CompositeScore: 61.2,
		Band:           "Hold & Wait",
		AsOfUTC:        now.AddDate(0, 0, -1),
	}

	t.Run("WithPrevious", func(t *testing.T) {
		input := BuildInput(snap, prev)

		if input.Score != 68 {
			t.Errorf("expected rounded score 68, got %d", input.Score)
		}
		if input.Raw != 67.5 {
			t.Errorf("expected raw 67.5, got %f", input.Raw)
		}
		if input.PrevScore != 61 {
			t.Errorf("expected prev score 61, got %d", input.PrevScore)
		}
		if input.PrevBand != "Hold & Wait" {
			t.Errorf("expected prev band 'Hold & Wait', got %q", input.PrevBand)
		}
		if delta := input.Delta; delta < 6.29 || delta > 6.31 {
			t.Errorf("expected delta ~6.3, got %f", delta)
		}
		if input.StaleCount != 1 {
			t.Errorf("expected 1 stale factor, got %d", input.StaleCount)
		}
		if input.ExcludedCount != 1 {
			t.Errorf("expected 1 excluded factor, got %d", input.ExcludedCount)
		}
		if !input.LowConfidence {
			t.Error("two usable factors should flag low confidence")
		}
		if _, ok := input.Factors["stablecoins"]; ok {
			t.Error("excluded factor without score must not appear in factors map")
		}
		if input.Factors["etf_flows"] != 70 {
			t.Errorf("expected etf_flows 70, got %f", input.Factors["etf_flows"])
		}
	})

	t.Run("WithoutPrevious", func(t *testing.T) {
		input := BuildInput(snap, nil)

		if input.Delta != 0 {
			t.Errorf("expected zero delta without history, got %f", input.Delta)
		}
		if input.PrevBand != snap.Band {
			t.Errorf("expected prev band to collapse to current, got %q", input.PrevBand)
		}
	})

	t.Run("ConfiguredFloor", func(t *testing.T) {
		wide := &domain.Snapshot{
			CompositeScore: 55,
			Band:           "Hold & Wait",
			AsOfUTC:        now,
			Factors: []domain.Factor{
				{Key: "etf_flows", Score: f(70), Status: domain.StatusFresh},
				{Key: "net_liquidity", Score: f(65), Status: domain.StatusFresh},
				{Key: "stablecoins", Score: f(50), Status: domain.StatusFresh},
				{Key: "trend_valuation", Score: f(40), Status: domain.StatusStale},
			},
		}

		if input := BuildInput(wide, nil); input.LowConfidence {
			t.Error("four usable factors meet the default floor")
		}
		if input := BuildInputWithMinFactors(wide, nil, 5); !input.LowConfidence {
			t.Error("floor of five should flag a four-factor snapshot")
		}
		if input := BuildInputWithMinFactors(wide, nil, 0); input.LowConfidence {
			t.Error("zero floor falls back to the default")
		}
	})
}
