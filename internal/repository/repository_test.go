package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ghostgauge/gscore/internal/domain"
)

func f64(v float64) *float64 { return &v }

func day(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func testSnapshot(asOf time.Time) *domain.Snapshot {
	last := asOf.Add(-2 * time.Hour)
	return &domain.Snapshot{
		Factors: []domain.Factor{
			{Key: "etf_flows", Label: "ETF Flows", Pillar: domain.PillarLiquidity, Score: f64(62), WeightPct: 12, Status: domain.StatusFresh, LastUTC: &last},
			{Key: "macro_overlay", Label: "Macro Overlay", Pillar: domain.PillarMacro, Status: domain.StatusExcluded, Reason: domain.ReasonMissingTimestamp},
		},
		CompositeScore:  54.2,
		Band:            "Hold & Wait",
		CycleAdjustment: -1.0,
		AsOfUTC:         asOf,
		Provenance: []domain.Provenance{
			{Source: "etl", Status: "ok"},
		},
	}
}

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "gscore-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetLatestSnapshot", func(t *testing.T) {
		older := testSnapshot(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
		newer := testSnapshot(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
		newer.CompositeScore = 57.8
		newer.Band = "Hold & Wait"

		if err := repo.SaveSnapshot(ctx, older); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
		if err := repo.SaveSnapshot(ctx, newer); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}

		latest, err := repo.GetLatestSnapshot(ctx)
		if err != nil {
			t.Fatalf("GetLatestSnapshot failed: %v", err)
		}
		if !latest.AsOfUTC.Equal(newer.AsOfUTC) {
			t.Errorf("expected as-of %v, got %v", newer.AsOfUTC, latest.AsOfUTC)
		}
		if latest.CompositeScore != 57.8 {
			t.Errorf("expected composite 57.8, got %.1f", latest.CompositeScore)
		}
		if len(latest.Factors) != 2 {
			t.Errorf("expected 2 factors, got %d", len(latest.Factors))
		}

		// Excluded factor keeps its nil score through the round-trip.
		macro, ok := latest.FactorByKey("macro_overlay")
		if !ok {
			t.Fatal("macro_overlay missing from stored snapshot")
		}
		if macro.Score != nil {
			t.Error("excluded factor should have nil score")
		}
	})

	t.Run("SaveSnapshotReplacesSameAsOf", func(t *testing.T) {
		asOf := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
		snap := testSnapshot(asOf)
		if err := repo.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}

		corrected := testSnapshot(asOf)
		corrected.CompositeScore = 61.0
		corrected.Band = "Hold & Wait"
		if err := repo.SaveSnapshot(ctx, corrected); err != nil {
			t.Fatalf("SaveSnapshot (corrected) failed: %v", err)
		}

		got, err := repo.GetSnapshotByDate(ctx, asOf)
		if err != nil {
			t.Fatalf("GetSnapshotByDate failed: %v", err)
		}
		if got.CompositeScore != 61.0 {
			t.Errorf("expected corrected composite 61.0, got %.1f", got.CompositeScore)
		}
	})

	t.Run("SnapshotValidation", func(t *testing.T) {
		if err := repo.SaveSnapshot(ctx, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for nil snapshot, got: %v", err)
		}
		if err := repo.SaveSnapshot(ctx, &domain.Snapshot{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for zero as-of, got: %v", err)
		}
	})

	t.Run("HistoryRoundTrip", func(t *testing.T) {
		rows := []domain.HistoryRow{
			{
				Date:      day("2026-02-27"),
				Composite: f64(48),
				Factors:   map[string]*float64{"etf_flows": f64(40), "macro_overlay": f64(55)},
			},
			{
				Date:      day("2026-02-28"),
				Composite: f64(51.5),
				Factors:   map[string]*float64{"etf_flows": f64(44), "stablecoins": nil},
			},
		}

		if err := repo.SaveHistoryRows(ctx, rows); err != nil {
			t.Fatalf("SaveHistoryRows failed: %v", err)
		}

		got, err := repo.GetHistoryRange(ctx, day("2026-02-01"), day("2026-02-28"))
		if err != nil {
			t.Fatalf("GetHistoryRange failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(got))
		}
		if !got[0].Date.Equal(day("2026-02-27")) || !got[1].Date.Equal(day("2026-02-28")) {
			t.Errorf("rows not ascending by date: %v, %v", got[0].Date, got[1].Date)
		}
		if got[0].Composite == nil || *got[0].Composite != 48 {
			t.Errorf("expected composite 48 for first row, got %v", got[0].Composite)
		}
		if v := got[0].FactorScore("macro_overlay"); v == nil || *v != 55 {
			t.Errorf("expected macro_overlay 55, got %v", v)
		}
		// A nil factor score is simply absent from the stored row.
		if v := got[1].FactorScore("stablecoins"); v != nil {
			t.Errorf("expected nil stablecoins score, got %v", *v)
		}
	})

	t.Run("HistoryUpsert", func(t *testing.T) {
		if err := repo.SaveHistoryRows(ctx, []domain.HistoryRow{
			{Date: day("2026-02-28"), Composite: f64(53)},
		}); err != nil {
			t.Fatalf("SaveHistoryRows failed: %v", err)
		}

		got, err := repo.GetHistoryRange(ctx, day("2026-02-28"), day("2026-02-28"))
		if err != nil {
			t.Fatalf("GetHistoryRange failed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 row, got %d", len(got))
		}
		if got[0].Composite == nil || *got[0].Composite != 53 {
			t.Errorf("expected upserted composite 53, got %v", got[0].Composite)
		}
		// Factor records from the earlier save survive the composite upsert.
		if v := got[0].FactorScore("etf_flows"); v == nil || *v != 44 {
			t.Errorf("expected etf_flows 44, got %v", v)
		}
	})

	t.Run("AlertRuleCRUD", func(t *testing.T) {
		rule := &domain.AlertRule{
			ID:              "rule-001",
			Name:            "High Risk Entry",
			Expression:      `band == "High Risk"`,
			Severity:        domain.SeverityCritical,
			CooldownMinutes: 60,
			Enabled:         true,
		}

		if err := repo.SaveAlertRule(ctx, rule); err != nil {
			t.Fatalf("SaveAlertRule failed: %v", err)
		}

		got, err := repo.GetAlertRule(ctx, "rule-001")
		if err != nil {
			t.Fatalf("GetAlertRule failed: %v", err)
		}
		if got.Name != rule.Name || got.Severity != domain.SeverityCritical || !got.Enabled {
			t.Errorf("rule round-trip mismatch: %+v", got)
		}

		rule.CooldownMinutes = 120
		if err := repo.SaveAlertRule(ctx, rule); err != nil {
			t.Fatalf("SaveAlertRule (update) failed: %v", err)
		}
		got, err = repo.GetAlertRule(ctx, "rule-001")
		if err != nil {
			t.Fatalf("GetAlertRule failed: %v", err)
		}
		if got.CooldownMinutes != 120 {
			t.Errorf("expected cooldown 120 after update, got %d", got.CooldownMinutes)
		}

		rules, err := repo.ListAlertRules(ctx)
		if err != nil {
			t.Fatalf("ListAlertRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Errorf("expected 1 rule, got %d", len(rules))
		}

		if err := repo.DeleteAlertRule(ctx, "rule-001"); err != nil {
			t.Fatalf("DeleteAlertRule failed: %v", err)
		}
		if err := repo.DeleteAlertRule(ctx, "rule-001"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound on second delete, got: %v", err)
		}
	})

	t.Run("AlertEvents", func(t *testing.T) {
		for i, fired := range []time.Time{
			time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		} {
			event := &domain.AlertEvent{
				ID:       "event-00" + string(rune('1'+i)),
				RuleID:   "rule-001",
				RuleName: "High Risk Entry",
				Severity: domain.SeverityCritical,
				Score:    82,
				Band:     "High Risk",
				Message:  "score entered High Risk",
				FiredUTC: fired,
			}
			if err := repo.SaveAlertEvent(ctx, event); err != nil {
				t.Fatalf("SaveAlertEvent failed: %v", err)
			}
		}

		events, err := repo.ListAlertEvents(ctx, 10)
		if err != nil {
			t.Fatalf("ListAlertEvents failed: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if !events[0].FiredUTC.After(events[1].FiredUTC) {
			t.Error("expected events newest first")
		}

		limited, err := repo.ListAlertEvents(ctx, 1)
		if err != nil {
			t.Fatalf("ListAlertEvents failed: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 event with limit 1, got %d", len(limited))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetSnapshotByDate(ctx, day("1999-01-01"))
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetAlertRule(ctx, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
