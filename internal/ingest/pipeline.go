package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ghostgauge/gscore/internal/alerts"
	"github.com/ghostgauge/gscore/internal/domain"
	"github.com/ghostgauge/gscore/internal/history"
	"github.com/ghostgauge/gscore/internal/repository"
	"github.com/ghostgauge/gscore/internal/score"
	"github.com/ghostgauge/gscore/internal/snapshot"
)

// Pipeline executes one refresh cycle: fetch, parse, re-evaluate staleness,
// persist, update the in-memory series, publish events, run alert rules.
type Pipeline struct {
	fetcher *Fetcher
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	series  *history.Service
	alerts  *alerts.Runner
	logger  *slog.Logger

	ttlOverrides map[string]int
	cacheTTL     time.Duration
}

// PipelineDeps bundles the pipeline's collaborators.
type PipelineDeps struct {
	Fetcher *Fetcher
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
	Series  *history.Service
	Alerts  *alerts.Runner
	Logger  *slog.Logger

	TTLOverrides map[string]int
	CacheTTL     time.Duration
}

// NewPipeline creates a refresh pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cacheTTL := deps.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Pipeline{
		fetcher:      deps.Fetcher,
		repo:         deps.Repo,
		cache:        deps.Cache,
		bus:          deps.Bus,
		series:       deps.Series,
		alerts:       deps.Alerts,
		logger:       logger,
		ttlOverrides: deps.TTLOverrides,
		cacheTTL:     cacheTTL,
	}
}

// scoreUpdatedPayload is the score.updated event body.
type scoreUpdatedPayload struct {
	Score   float64   `json:"score"`
	Band    string    `json:"band"`
	AsOfUTC time.Time `json:"asOfUtc"`
}

// bandChangedPayload is the band.changed event body.
type bandChangedPayload struct {
	PreviousBand string    `json:"previousBand"`
	CurrentBand  string    `json:"currentBand"`
	Score        float64   `json:"score"`
	AsOfUTC      time.Time `json:"asOfUtc"`
}

// Refresh runs one full ingest cycle and returns the resulting snapshot.
func (p *Pipeline) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	start := time.Now()

	data, err := p.fetcher.FetchSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}

	snap, warnings, err := snapshot.ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	for _, w := range warnings {
		p.logger.Warn("snapshot data quality", "warning", w)
	}

	// Staleness is relative to wall-clock now, not to when the ETL ran.
	snap.Factors = score.Restatus(snap.Factors, time.Now().UTC(), p.ttlOverrides)

	prev, err := p.repo.GetLatestSnapshot(ctx)
	if err != nil {
		// Not-found is the first ingest; anything else loses the
		// band-change comparison for this cycle and must be visible.
		if !errors.Is(err, repository.ErrNotFound) {
			p.logger.Error("failed to load previous snapshot", "error", err)
		}
		prev = nil
	}
	// An upsert of the same ETL cycle must not self-compare.
	if prev != nil && prev.AsOfUTC.Equal(snap.AsOfUTC) {
		prev = nil
	}

	if err := p.repo.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	row := historyRowFromSnapshot(snap)
	if err := p.repo.SaveHistoryRows(ctx, []domain.HistoryRow{row}); err != nil {
		p.logger.Error("failed to persist history row", "error", err)
	}
	if p.series != nil {
		p.series.Append(row)
	}

	if p.cache != nil {
		if err := p.cache.SetSnapshot(ctx, domain.CacheKeyLatestSnapshot, snap, p.cacheTTL); err != nil {
			p.logger.Warn("failed to cache snapshot", "error", err)
		}
	}

	p.publishScoreUpdated(ctx, snap)
	if prev != nil && prev.Band != snap.Band {
		p.publishBandChanged(ctx, snap, prev)
	}

	if p.alerts != nil {
		if _, err := p.alerts.Run(ctx, snap, prev); err != nil {
			p.logger.Error("alert run failed", "error", err)
		}
	}

	p.logger.Info("refresh complete",
		"as_of", snap.AsOfUTC,
		"score", snap.CompositeScore,
		"band", snap.Band,
		"factors", len(snap.Factors),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return snap, nil
}

// SyncHistory fetches the full historical series and replaces both the
// persisted and the in-memory copies. Run at startup and on demand.
func (p *Pipeline) SyncHistory(ctx context.Context) (int, error) {
	data, err := p.fetcher.FetchHistory(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch history: %w", err)
	}

	rows, warnings, err := snapshot.ParseHistoryJSON(data)
	if err != nil {
		return 0, fmt.Errorf("parse history: %w", err)
	}
	for _, w := range warnings {
		p.logger.Warn("history data quality", "warning", w)
	}

	if err := p.repo.SaveHistoryRows(ctx, rows); err != nil {
		return 0, fmt.Errorf("persist history: %w", err)
	}
	if p.series != nil {
		p.series.Replace(rows)
	}

	p.logger.Info("history synced", "rows", len(rows))
	return len(rows), nil
}

func (p *Pipeline) publishScoreUpdated(ctx context.Context, snap *domain.Snapshot) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(scoreUpdatedPayload{
		Score:   snap.CompositeScore,
		Band:    snap.Band,
		AsOfUTC: snap.AsOfUTC,
	})
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, domain.TopicScoreUpdated, payload); err != nil {
		p.logger.Warn("failed to publish score.updated", "error", err)
	}
}

func (p *Pipeline) publishBandChanged(ctx context.Context, snap, prev *domain.Snapshot) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(bandChangedPayload{
		PreviousBand: prev.Band,
		CurrentBand:  snap.Band,
		Score:        snap.CompositeScore,
		AsOfUTC:      snap.AsOfUTC,
	})
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, domain.TopicBandChanged, payload); err != nil {
		p.logger.Warn("failed to publish band.changed", "error", err)
	}
}

// historyRowFromSnapshot projects a snapshot onto its calendar-day history
// row.
func historyRowFromSnapshot(snap *domain.Snapshot) domain.HistoryRow {
	composite := snap.CompositeScore
	row := domain.HistoryRow{
		Date:      score.DateOnly(snap.AsOfUTC),
		Composite: &composite,
		Factors:   make(map[string]*float64, len(snap.Factors)),
	}
	for i := range snap.Factors {
		f := &snap.Factors[i]
		if f.Score != nil {
			v := *f.Score
			row.Factors[f.Key] = &v
		}
	}
	return row
}
