//go:build integration
// +build integration

// Package integration provides end-to-end tests for a running GScore server.
//
// These tests exercise the COMPLETE read path against a live instance:
//
//	Ingested snapshot → /score → /factors → /deltas → /history → alerts
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. SNAPSHOT: One ETL cycle of factor data plus the official composite.
//    The server must have ingested at least one snapshot (POST /refresh
//    against a reachable ETL endpoint, or a pre-seeded database).
//
// 2. FACTOR: One of eight canonical risk inputs (etf_flows, net_liquidity,
//    stablecoins, trend_valuation, onchain_activity, term_leverage,
//    macro_overlay, social_interest), each scored 0-100.
//
// 3. BAND: The composite maps to one of six recommendation bands spanning
//    0-100, from "Aggressive Buying" up to "High Risk".
//
// 4. PRESET: A named weight configuration (official_30_30, liq_35_25,
//    mom_25_35) used for what-if previews.
//
// Point GSCORE_TEST_URL at the instance under test (default
// http://localhost:8080).
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("GSCORE_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

var client = &http.Client{Timeout: 10 * time.Second}

func get(t *testing.T, cfg TestConfig, path string) (int, []byte) {
	t.Helper()
	resp, err := client.Get(cfg.BaseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("GET %s: read body: %v", path, err)
	}
	return resp.StatusCode, body
}

func post(t *testing.T, cfg TestConfig, path string, payload any) (int, []byte) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := client.Post(cfg.BaseURL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("POST %s: read body: %v", path, err)
	}
	return resp.StatusCode, body
}

func decodeData(t *testing.T, body []byte, into any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, body)
	}
	if err := json.Unmarshal(env.Data, into); err != nil {
		t.Fatalf("decode data: %v (body: %s)", err, body)
	}
}

func requireServer(t *testing.T, cfg TestConfig) {
	t.Helper()
	resp, err := client.Get(cfg.BaseURL + "/health")
	if err != nil {
		t.Skipf("server not reachable at %s: %v", cfg.BaseURL, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skipf("server unhealthy at %s: %d", cfg.BaseURL, resp.StatusCode)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	cfg := getTestConfig()
	requireServer(t, cfg)

	status, _ := get(t, cfg, "/ready")
	if status != http.StatusOK {
		t.Errorf("/ready = %d, want 200", status)
	}

	status, body := get(t, cfg, "/version")
	if status != http.StatusOK {
		t.Fatalf("/version = %d", status)
	}
	var version map[string]string
	if err := json.Unmarshal(body, &version); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if version["version"] == "" {
		t.Error("version is empty")
	}
}

func TestScoreReadPath(t *testing.T) {
	cfg := getTestConfig()
	requireServer(t, cfg)

	status, body := get(t, cfg, "/score")
	if status == http.StatusNotFound {
		t.Skip("no snapshot ingested yet; trigger POST /refresh first")
	}
	if status != http.StatusOK {
		t.Fatalf("/score = %d: %s", status, body)
	}

	var score struct {
		Score int `json:"score"`
		Band  struct {
			Label string `json:"label"`
			Min   int    `json:"min"`
			Max   int    `json:"max"`
		} `json:"band"`
		Factors []struct {
			Key    string `json:"key"`
			Status string `json:"status"`
		} `json:"factors"`
	}
	decodeData(t, body, &score)

	if score.Score < 0 || score.Score > 100 {
		t.Errorf("score %d outside [0,100]", score.Score)
	}
	if score.Score < score.Band.Min || score.Score > score.Band.Max {
		t.Errorf("score %d outside its band %s [%d,%d]",
			score.Score, score.Band.Label, score.Band.Min, score.Band.Max)
	}
	if len(score.Factors) == 0 {
		t.Error("snapshot has no factors")
	}

	// Every factor the snapshot carries must appear in /factors too.
	status, body = get(t, cfg, "/factors")
	if status != http.StatusOK {
		t.Fatalf("/factors = %d", status)
	}
	var factors []struct {
		Key string `json:"key"`
	}
	decodeData(t, body, &factors)
	if len(factors) != len(score.Factors) {
		t.Errorf("/factors = %d entries, /score carries %d", len(factors), len(score.Factors))
	}

	status, _ = get(t, cfg, "/deltas")
	if status != http.StatusOK {
		t.Errorf("/deltas = %d", status)
	}
}

func TestPreviewAgainstLiveSnapshot(t *testing.T) {
	cfg := getTestConfig()
	requireServer(t, cfg)

	status, body := post(t, cfg, "/score/preview", map[string]any{
		"preset": "official_30_30",
	})
	if status == http.StatusNotFound {
		t.Skip("no snapshot ingested yet")
	}
	if status != http.StatusOK {
		t.Fatalf("/score/preview = %d: %s", status, body)
	}

	var result struct {
		Score         int     `json:"score"`
		Raw           float64 `json:"raw"`
		FactorsUsed   int     `json:"factorsUsed"`
		Contributions []struct {
			Key    string  `json:"key"`
			Weight float64 `json:"weight"`
		} `json:"contributions"`
	}
	decodeData(t, body, &result)

	if result.FactorsUsed == 0 {
		t.Fatal("preview used no factors")
	}
	weightSum := 0.0
	for _, c := range result.Contributions {
		weightSum += c.Weight
	}
	if weightSum < 0.999 || weightSum > 1.001 {
		t.Errorf("renormalized weights sum to %f, want 1.0", weightSum)
	}

	status, _ = post(t, cfg, "/score/preview", map[string]any{"preset": "nope"})
	if status != http.StatusBadRequest {
		t.Errorf("unknown preset = %d, want 400", status)
	}
}

func TestReferenceData(t *testing.T) {
	cfg := getTestConfig()
	requireServer(t, cfg)

	status, body := get(t, cfg, "/bands")
	if status != http.StatusOK {
		t.Fatalf("/bands = %d", status)
	}
	var bands []struct {
		Min   int    `json:"min"`
		Max   int    `json:"max"`
		Label string `json:"label"`
	}
	decodeData(t, body, &bands)
	if len(bands) != 6 {
		t.Fatalf("bands = %d, want 6", len(bands))
	}
	// Bands must partition [0,100] with no gaps.
	prev := -1
	for _, b := range bands {
		if b.Min != prev+1 {
			t.Errorf("band %q starts at %d, want %d", b.Label, b.Min, prev+1)
		}
		prev = b.Max
	}
	if prev != 100 {
		t.Errorf("bands end at %d, want 100", prev)
	}

	status, body = get(t, cfg, "/presets")
	if status != http.StatusOK {
		t.Fatalf("/presets = %d", status)
	}
	var presets []struct {
		Key string `json:"key"`
	}
	decodeData(t, body, &presets)
	if len(presets) != 3 {
		t.Errorf("presets = %d, want 3", len(presets))
	}
}

func TestAlertRuleLifecycle(t *testing.T) {
	cfg := getTestConfig()
	requireServer(t, cfg)

	ruleName := fmt.Sprintf("integration-%d", time.Now().UnixNano())
	status, body := post(t, cfg, "/alerts", map[string]any{
		"name":            ruleName,
		"expression":      "score >= 95",
		"severity":        "critical",
		"cooldownMinutes": 60,
		"enabled":         true,
	})
	if status != http.StatusCreated {
		t.Fatalf("create alert = %d: %s", status, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeData(t, body, &created)
	if created.ID == "" {
		t.Fatal("created rule has no ID")
	}

	defer func() {
		req, _ := http.NewRequest(http.MethodDelete, cfg.BaseURL+"/alerts/"+created.ID, nil)
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
		}
	}()

	status, body = get(t, cfg, "/alerts/"+created.ID)
	if status != http.StatusOK {
		t.Fatalf("get alert = %d: %s", status, body)
	}

	status, _ = post(t, cfg, "/alerts", map[string]any{
		"name":       "bad-expression",
		"expression": "score +",
		"severity":   "info",
	})
	if status != http.StatusBadRequest {
		t.Errorf("malformed expression = %d, want 400", status)
	}
}

func TestHistoryWindow(t *testing.T) {
	cfg := getTestConfig()
	requireServer(t, cfg)

	status, body := get(t, cfg, "/history?days=30")
	if status != http.StatusOK {
		t.Fatalf("/history = %d", status)
	}
	var rows []struct {
		Date string `json:"date"`
	}
	decodeData(t, body, &rows)
	if len(rows) > 30 {
		t.Errorf("asked for 30 days, got %d rows", len(rows))
	}

	status, body = get(t, cfg, "/history/stats?window=90")
	if status != http.StatusOK {
		t.Fatalf("/history/stats = %d", status)
	}
	var stats struct {
		Samples int     `json:"samples"`
		Min     float64 `json:"min"`
		Max     float64 `json:"max"`
	}
	decodeData(t, body, &stats)
	if stats.Samples > 0 && stats.Min > stats.Max {
		t.Errorf("min %f > max %f", stats.Min, stats.Max)
	}
}
