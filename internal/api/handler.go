package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ghostgauge/gscore/internal/alerts"
	"github.com/ghostgauge/gscore/internal/domain"
	"github.com/ghostgauge/gscore/internal/history"
	"github.com/ghostgauge/gscore/internal/repository"
	"github.com/ghostgauge/gscore/internal/score"
)

// previewCacheTTL bounds how long a what-if computation stays cached.
const previewCacheTTL = 5 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	series  *history.Service
	engine  *alerts.Engine
	scoring domain.ScoringConfig

	version   string
	commit    string
	buildDate string

	cacheTTL time.Duration
}

// HandlerDeps bundles the handler's constructor arguments.
type HandlerDeps struct {
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
	Series  *history.Service
	Engine  *alerts.Engine
	Scoring domain.ScoringConfig

	Version   string
	Commit    string
	BuildDate string

	// CacheTTL is how long the latest snapshot stays hot. Zero means 5m.
	CacheTTL time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(deps HandlerDeps) *Handler {
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Handler{
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		series:    deps.Series,
		engine:    deps.Engine,
		scoring:   deps.Scoring,
		version:   deps.Version,
		commit:    deps.Commit,
		buildDate: deps.BuildDate,
		cacheTTL:  ttl,
	}
}

// Meta is attached to every successful response.
type Meta struct {
	TraceID    string `json:"traceId,omitempty"`
	Version    string `json:"version,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

type envelope struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeData(w http.ResponseWriter, r *http.Request, status int, data any, start time.Time) {
	writeJSON(w, status, envelope{
		Data: data,
		Meta: Meta{
			TraceID:    GetTraceID(r.Context()),
			Version:    h.version,
			DurationMs: time.Since(start).Milliseconds(),
		},
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

// Ready handles GET /ready. It pings every backing component.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	healthy := true

	if err := h.repo.Ping(ctx); err != nil {
		checks["repository"] = err.Error()
		healthy = false
	} else {
		checks["repository"] = "ok"
	}
	if err := h.cache.Ping(ctx); err != nil {
		checks["cache"] = err.Error()
		healthy = false
	} else {
		checks["cache"] = "ok"
	}
	if err := h.bus.Ping(ctx); err != nil {
		checks["event_bus"] = err.Error()
		healthy = false
	} else {
		checks["event_bus"] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}

// Version handles GET /version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":   h.version,
		"commit":    h.commit,
		"buildDate": h.buildDate,
	})
}

// ScoreResponse is the response body for GET /score.
type ScoreResponse struct {
	Score           int                `json:"score"`
	Raw             float64            `json:"raw"`
	Band            domain.RiskBand    `json:"band"`
	CycleAdjustment float64            `json:"cycleAdjustment"`
	SpikeAdjustment float64            `json:"spikeAdjustment"`
	LowConfidence   bool               `json:"lowConfidence"`
	AsOfUTC         time.Time          `json:"asOfUtc"`
	Factors         []FactorView       `json:"factors"`
	Delta           domain.FactorDelta `json:"delta"`
	Percentile      *PercentileView    `json:"percentile,omitempty"`
	Provenance      []domain.Provenance `json:"provenance,omitempty"`
}

// FactorView is a factor plus its day-over-day delta.
type FactorView struct {
	domain.Factor
	Delta *domain.FactorDelta `json:"dayDelta,omitempty"`
}

// PercentileView places the current composite within a trailing window.
type PercentileView struct {
	Rank       float64 `json:"rank"`
	WindowDays int     `json:"windowDays"`
	Samples    int     `json:"samples"`
}

// GetScore handles GET /score.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	snap, err := h.latestSnapshot(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no_snapshot", "no snapshot has been ingested yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "failed to load snapshot")
		return
	}

	resp, err := h.buildScoreResponse(snap)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	h.writeData(w, r, http.StatusOK, resp, start)
}

func (h *Handler) buildScoreResponse(snap *domain.Snapshot) (*ScoreResponse, error) {
	now := time.Now().UTC()
	factors := score.Restatus(snap.Factors, now, h.scoring.TTLOverrides)

	rounded := score.RoundHalfUp(snap.CompositeScore)
	band, err := score.Classify(rounded)
	if err != nil {
		return nil, fmt.Errorf("classify composite: %w", err)
	}

	usable := 0
	views := make([]FactorView, 0, len(factors))
	for i := range factors {
		f := factors[i]
		if f.Usable() {
			usable++
		}
		view := FactorView{Factor: f}
		if f.Score != nil {
			d := h.series.Delta(f.Key, *f.Score, snap.AsOfUTC)
			view.Delta = &d
		}
		views = append(views, view)
	}

	resp := &ScoreResponse{
		Score:           rounded,
		Raw:             snap.CompositeScore,
		Band:            band,
		CycleAdjustment: snap.CycleAdjustment,
		SpikeAdjustment: snap.SpikeAdjustment,
		LowConfidence:   usable < h.minFactorCount(),
		AsOfUTC:         snap.AsOfUTC,
		Factors:         views,
		Delta:           h.series.CompositeDelta(snap.CompositeScore, snap.AsOfUTC),
		Provenance:      snap.Provenance,
	}

	if rank, samples := h.series.Percentile(snap.CompositeScore, 365); samples > 0 {
		resp.Percentile = &PercentileView{Rank: rank, WindowDays: 365, Samples: samples}
	}
	return resp, nil
}

func (h *Handler) minFactorCount() int {
	if h.scoring.MinFactorCount > 0 {
		return h.scoring.MinFactorCount
	}
	return score.DefaultMinFactorCount
}

// latestSnapshot reads the hot cache first and falls back to the repository,
// backfilling the cache on a miss.
func (h *Handler) latestSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	if snap, err := h.cache.GetSnapshot(ctx, domain.CacheKeyLatestSnapshot); err == nil && snap != nil {
		return snap, nil
	}
	snap, err := h.repo.GetLatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.cache.SetSnapshot(ctx, domain.CacheKeyLatestSnapshot, snap, h.cacheTTL); err != nil {
		slog.Warn("snapshot cache backfill failed", "error", err)
	}
	return snap, nil
}

// PreviewRequest is the request body for POST /score/preview. Exactly one of
// Preset or Weights picks the weight configuration.
type PreviewRequest struct {
	Preset  string             `json:"preset,omitempty"`
	Weights map[string]float64 `json:"weights,omitempty"`

	// Overrides replaces individual factor scores before recomputation.
	Overrides map[string]float64 `json:"overrides,omitempty"`

	CycleAdjustment float64 `json:"cycleAdjustment,omitempty"`
	SpikeAdjustment float64 `json:"spikeAdjustment,omitempty"`
}

// PreviewScore handles POST /score/preview. The result is derived, never
// persisted.
func (h *Handler) PreviewScore(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
		return
	}
	var req PreviewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON request body")
		return
	}

	weights, err := h.resolveWeights(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_weights", err.Error())
		return
	}
	for key := range req.Overrides {
		if !domain.IsCanonicalFactor(key) {
			writeError(w, http.StatusBadRequest, "unknown_factor", fmt.Sprintf("unknown factor key %q", key))
			return
		}
	}

	// Identical preview bodies hit the cache instead of recomputing.
	sum := sha256.Sum256(body)
	cacheKey := "preview:" + hex.EncodeToString(sum[:])
	if cached, err := h.cache.Get(ctx, cacheKey); err == nil && cached != nil {
		var result domain.CompositeScore
		if json.Unmarshal(cached, &result) == nil {
			h.writeData(w, r, http.StatusOK, &result, start)
			return
		}
	}

	snap, err := h.latestSnapshot(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no_snapshot", "no snapshot has been ingested yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "failed to load snapshot")
		return
	}

	factors := score.Restatus(snap.Factors, time.Now().UTC(), h.scoring.TTLOverrides)
	for i := range factors {
		if v, ok := req.Overrides[factors[i].Key]; ok {
			if v < 0 || v > 100 {
				writeError(w, http.StatusBadRequest, "invalid_override", fmt.Sprintf("override for %q must be in [0,100]", factors[i].Key))
				return
			}
			value := v
			factors[i].Score = &value
			factors[i].Status = domain.StatusFresh
			factors[i].Reason = ""
		}
	}

	result, err := score.ComputeWithMinFactors(factors, weights, req.CycleAdjustment, req.SpikeAdjustment, h.minFactorCount())
	if err != nil {
		if errors.Is(err, score.ErrNoUsableFactors) {
			writeError(w, http.StatusBadRequest, "insufficient_factors", "no usable factors for preview")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	if encoded, err := json.Marshal(result); err == nil {
		if err := h.cache.Set(ctx, cacheKey, encoded, previewCacheTTL); err != nil {
			slog.Warn("preview cache write failed", "error", err)
		}
	}
	h.writeData(w, r, http.StatusOK, result, start)
}

func (h *Handler) resolveWeights(req *PreviewRequest) (domain.WeightConfig, error) {
	if req.Preset != "" && len(req.Weights) > 0 {
		return nil, fmt.Errorf("preset and weights are mutually exclusive")
	}
	if len(req.Weights) > 0 {
		weights := make(domain.WeightConfig, len(domain.CanonicalFactors))
		for _, spec := range domain.CanonicalFactors {
			weights[spec.Key] = 0
		}
		for key, v := range req.Weights {
			if !domain.IsCanonicalFactor(key) {
				return nil, fmt.Errorf("unknown factor key %q in weights", key)
			}
			weights[key] = v
		}
		if err := weights.Validate(); err != nil {
			return nil, err
		}
		return weights, nil
	}
	preset := req.Preset
	if preset == "" {
		preset = h.scoring.DefaultPreset
	}
	weights, err := score.ResolvePreset(preset)
	if err != nil {
		return nil, err
	}
	return weights, nil
}

// ListFactors handles GET /factors.
func (h *Handler) ListFactors(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap, err := h.latestSnapshot(r.Context())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no_snapshot", "no snapshot has been ingested yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "failed to load snapshot")
		return
	}
	factors := score.Restatus(snap.Factors, time.Now().UTC(), h.scoring.TTLOverrides)
	h.writeData(w, r, http.StatusOK, factors, start)
}

// GetFactor handles GET /factors/{key}.
func (h *Handler) GetFactor(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := chi.URLParam(r, "key")
	if !domain.IsCanonicalFactor(key) {
		writeError(w, http.StatusNotFound, "unknown_factor", fmt.Sprintf("unknown factor key %q", key))
		return
	}

	snap, err := h.latestSnapshot(r.Context())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no_snapshot", "no snapshot has been ingested yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "failed to load snapshot")
		return
	}

	factors := score.Restatus(snap.Factors, time.Now().UTC(), h.scoring.TTLOverrides)
	for i := range factors {
		if factors[i].Key != key {
			continue
		}
		view := FactorView{Factor: factors[i]}
		if factors[i].Score != nil {
			d := h.series.Delta(key, *factors[i].Score, snap.AsOfUTC)
			view.Delta = &d
		}
		h.writeData(w, r, http.StatusOK, view, start)
		return
	}
	writeError(w, http.StatusNotFound, "factor_missing", fmt.Sprintf("factor %q is not in the latest snapshot", key))
}

// GetDeltas handles GET /deltas: one FactorDelta per canonical factor.
func (h *Handler) GetDeltas(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap, err := h.latestSnapshot(r.Context())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no_snapshot", "no snapshot has been ingested yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "failed to load snapshot")
		return
	}

	deltas := make([]domain.FactorDelta, 0, len(domain.CanonicalFactors))
	for _, spec := range domain.CanonicalFactors {
		f, ok := snap.FactorByKey(spec.Key)
		if !ok || f.Score == nil {
			deltas = append(deltas, domain.FactorDelta{
				FactorKey:   spec.Key,
				CurrentDate: score.DateOnly(snap.AsOfUTC),
				Basis:       domain.BasisInsufficientHistory,
			})
			continue
		}
		deltas = append(deltas, h.series.Delta(spec.Key, *f.Score, snap.AsOfUTC))
	}
	h.writeData(w, r, http.StatusOK, deltas, start)
}

// GetHistory handles GET /history?days=N.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_days", "days must be a non-negative integer")
			return
		}
		days = n
	}
	rows := h.series.Rows(days)
	h.writeData(w, r, http.StatusOK, rows, start)
}

// HistoryStatsResponse is the response body for GET /history/stats.
type HistoryStatsResponse struct {
	history.Summary
	Percentile *PercentileView `json:"percentile,omitempty"`
}

// GetHistoryStats handles GET /history/stats?window=N.
func (h *Handler) GetHistoryStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	window := 90
	if raw := r.URL.Query().Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_window", "window must be a positive integer")
			return
		}
		window = n
	}

	resp := HistoryStatsResponse{Summary: h.series.Summarize(window)}
	if snap, err := h.latestSnapshot(r.Context()); err == nil {
		if rank, samples := h.series.Percentile(snap.CompositeScore, window); samples > 0 {
			resp.Percentile = &PercentileView{Rank: rank, WindowDays: window, Samples: samples}
		}
	}
	h.writeData(w, r, http.StatusOK, resp, start)
}

// GetBands handles GET /bands.
func (h *Handler) GetBands(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.writeData(w, r, http.StatusOK, score.Bands(), start)
}

// GetPresets handles GET /presets.
func (h *Handler) GetPresets(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	presets := score.Presets()
	sort.Slice(presets, func(i, j int) bool { return presets[i].Key < presets[j].Key })
	h.writeData(w, r, http.StatusOK, presets, start)
}

// TriggerRefresh handles POST /refresh. The actual work happens on the
// ingest worker pool, which subscribes to the refresh topic.
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.New().String()

	payload, _ := json.Marshal(map[string]string{"requestId": requestID})
	if err := h.bus.Publish(r.Context(), domain.TopicRefreshRequest, payload); err != nil {
		writeError(w, http.StatusInternalServerError, "publish_failed", "failed to queue refresh")
		return
	}
	h.writeData(w, r, http.StatusAccepted, map[string]string{
		"status":    "queued",
		"requestId": requestID,
	}, start)
}

// CreateAlert handles POST /alerts.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var rule domain.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON request body")
		return
	}
	if err := h.engine.ValidateRule(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_rule", err.Error())
		return
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := h.repo.SaveAlertRule(ctx, &rule); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to save alert rule")
		return
	}
	h.reloadEngine(ctx)
	h.writeData(w, r, http.StatusCreated, &rule, start)
}

// ListAlerts handles GET /alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rules, err := h.repo.ListAlertRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to list alert rules")
		return
	}
	h.writeData(w, r, http.StatusOK, rules, start)
}

// GetAlert handles GET /alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	rule, err := h.repo.GetAlertRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule_not_found", fmt.Sprintf("alert rule %q not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "failed to load alert rule")
		return
	}
	h.writeData(w, r, http.StatusOK, rule, start)
}

// UpdateAlert handles PUT /alerts/{id}.
func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	existing, err := h.repo.GetAlertRule(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule_not_found", fmt.Sprintf("alert rule %q not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "failed to load alert rule")
		return
	}

	var rule domain.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON request body")
		return
	}
	rule.ID = id
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()

	if err := h.engine.ValidateRule(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_rule", err.Error())
		return
	}
	if err := h.repo.SaveAlertRule(ctx, &rule); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to save alert rule")
		return
	}
	h.reloadEngine(ctx)
	h.writeData(w, r, http.StatusOK, &rule, start)
}

// DeleteAlert handles DELETE /alerts/{id}.
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.repo.DeleteAlertRule(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule_not_found", fmt.Sprintf("alert rule %q not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "failed to delete alert rule")
		return
	}
	h.engine.UnloadRule(id)
	h.writeData(w, r, http.StatusOK, map[string]string{"status": "deleted", "id": id}, start)
}

// ListAlertEvents handles GET /alerts/events?limit=N.
func (h *Handler) ListAlertEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.repo.ListAlertEvents(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to list alert events")
		return
	}
	h.writeData(w, r, http.StatusOK, events, start)
}

// reloadEngine rebuilds the alert engine's compiled rule set from storage.
func (h *Handler) reloadEngine(ctx context.Context) {
	rules, err := h.repo.ListAlertRules(ctx)
	if err != nil {
		slog.Warn("alert engine reload: list rules failed", "error", err)
		return
	}
	if err := h.engine.ReloadRules(rules); err != nil {
		slog.Warn("alert engine reload failed", "error", err)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 1<<20))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
