// Package history maintains the historical score series used for deltas and
// percentile context.
package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ghostgauge/gscore/internal/domain"
	"github.com/ghostgauge/gscore/internal/score"
)

// Service holds the recent historical series in memory, hydrated from the
// repository at startup and appended to on each ingest. Rows are keyed by
// UTC calendar day; a re-ingested day replaces the old row.
type Service struct {
	mu   sync.RWMutex
	rows []domain.HistoryRow // ascending by date

	repo         domain.Repository
	retainDays   int
	lookbackDays int
}

// NewService creates a history service retaining retainDays of rows and
// bounding delta scans to lookbackDays.
func NewService(repo domain.Repository, retainDays, lookbackDays int) *Service {
	if retainDays <= 0 {
		retainDays = 400
	}
	if lookbackDays <= 0 {
		lookbackDays = score.DefaultDeltaLookbackDays
	}
	return &Service{
		repo:         repo,
		retainDays:   retainDays,
		lookbackDays: lookbackDays,
	}
}

// Hydrate loads the retained window from the repository.
func (s *Service) Hydrate(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	to := score.DateOnly(time.Now().UTC())
	from := to.AddDate(0, 0, -s.retainDays)

	rows, err := s.repo.GetHistoryRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to hydrate history: %w", err)
	}
	s.Replace(rows)
	return nil
}

// Replace swaps the whole series for the given rows.
func (s *Service) Replace(rows []domain.HistoryRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = s.rows[:0]
	s.mergeLocked(rows)
}

// Append merges rows into the series, deduplicating by calendar day (the
// incoming row wins) and trimming to the retention window.
func (s *Service) Append(rows ...domain.HistoryRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeLocked(rows)
}

func (s *Service) mergeLocked(rows []domain.HistoryRow) {
	byDate := make(map[time.Time]domain.HistoryRow, len(s.rows)+len(rows))
	for _, r := range s.rows {
		byDate[score.DateOnly(r.Date)] = r
	}
	for _, r := range rows {
		if r.Date.IsZero() {
			continue
		}
		d := score.DateOnly(r.Date)
		r.Date = d
		byDate[d] = r
	}

	merged := make([]domain.HistoryRow, 0, len(byDate))
	for _, r := range byDate {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })

	// Trim to the retention window relative to the newest row.
	if len(merged) > 0 {
		floor := merged[len(merged)-1].Date.AddDate(0, 0, -s.retainDays)
		cut := 0
		for cut < len(merged) && merged[cut].Date.Before(floor) {
			cut++
		}
		merged = merged[cut:]
	}
	s.rows = merged
}

// Len returns the number of rows held.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Rows returns a copy of the most recent days of the series; days <= 0
// returns the whole retained window.
func (s *Service) Rows(days int) []domain.HistoryRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.rows
	if days > 0 && len(rows) > 0 {
		floor := rows[len(rows)-1].Date.AddDate(0, 0, -days+1)
		cut := 0
		for cut < len(rows) && rows[cut].Date.Before(floor) {
			cut++
		}
		rows = rows[cut:]
	}

	out := make([]domain.HistoryRow, len(rows))
	copy(out, rows)
	return out
}

// Delta computes the day-over-day change for one factor against the series.
func (s *Service) Delta(factorKey string, currentScore float64, currentDate time.Time) domain.FactorDelta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return score.ComputeDeltaLookback(factorKey, currentScore, currentDate, s.rows, s.lookbackDays)
}

// CompositeDelta computes the day-over-day change of the composite score.
func (s *Service) CompositeDelta(currentScore float64, currentDate time.Time) domain.FactorDelta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return score.ComputeCompositeDelta(currentScore, currentDate, s.rows, s.lookbackDays)
}

// Summary aggregates the trailing window of composite values.
type Summary struct {
	WindowDays int     `json:"windowDays"`
	Samples    int     `json:"samples"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Mean       float64 `json:"mean"`
}

// Summarize returns min/max/mean of the composite over the trailing window.
func (s *Service) Summarize(windowDays int) Summary {
	rows := s.Rows(windowDays)

	sum := Summary{WindowDays: windowDays}
	total := 0.0
	for _, r := range rows {
		if r.Composite == nil {
			continue
		}
		v := *r.Composite
		if sum.Samples == 0 || v < sum.Min {
			sum.Min = v
		}
		if sum.Samples == 0 || v > sum.Max {
			sum.Max = v
		}
		total += v
		sum.Samples++
	}
	if sum.Samples > 0 {
		sum.Mean = total / float64(sum.Samples)
	}
	return sum
}

// Percentile returns the percentile rank of value among the trailing
// window's composite values (share of samples <= value, 0-100), along with
// the sample count. Zero samples yields rank 0.
func (s *Service) Percentile(value float64, windowDays int) (float64, int) {
	rows := s.Rows(windowDays)

	atOrBelow, samples := 0, 0
	for _, r := range rows {
		if r.Composite == nil {
			continue
		}
		samples++
		if *r.Composite <= value {
			atOrBelow++
		}
	}
	if samples == 0 {
		return 0, 0
	}
	return 100 * float64(atOrBelow) / float64(samples), samples
}
