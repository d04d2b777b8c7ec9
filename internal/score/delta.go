package score

import (
	"time"

	"github.com/ghostgauge/gscore/internal/domain"
)

// DefaultDeltaLookbackDays bounds the backward scan for a delta baseline so
// a sparse series never triggers an unbounded walk.
const DefaultDeltaLookbackDays = 14

// CompositeDeltaKey labels the composite series in delta results.
const CompositeDeltaKey = "composite"

// ComputeDelta calculates the day-over-day change for one factor against a
// historical series, using the default lookback bound.
//
// Baseline selection is an ordered fallback: the exact previous UTC calendar
// day when it holds a value for the factor, else the nearest earlier
// non-null row within the lookback window, else no baseline at all. The
// basis tag records which case applied; with no baseline the delta is nil.
func ComputeDelta(factorKey string, currentScore float64, currentDate time.Time, history []domain.HistoryRow) domain.FactorDelta {
	return ComputeDeltaLookback(factorKey, currentScore, currentDate, history, DefaultDeltaLookbackDays)
}

// ComputeDeltaLookback is ComputeDelta with an explicit lookback bound in
// days.
func ComputeDeltaLookback(factorKey string, currentScore float64, currentDate time.Time, history []domain.HistoryRow, lookbackDays int) domain.FactorDelta {
	return computeDelta(factorKey, currentScore, currentDate, history, lookbackDays, func(r *domain.HistoryRow) *float64 {
		return r.FactorScore(factorKey)
	})
}

// ComputeCompositeDelta calculates the day-over-day change of the composite
// score itself.
func ComputeCompositeDelta(currentScore float64, currentDate time.Time, history []domain.HistoryRow, lookbackDays int) domain.FactorDelta {
	return computeDelta(CompositeDeltaKey, currentScore, currentDate, history, lookbackDays, func(r *domain.HistoryRow) *float64 {
		return r.Composite
	})
}

func computeDelta(key string, currentScore float64, currentDate time.Time, history []domain.HistoryRow, lookbackDays int, value func(*domain.HistoryRow) *float64) domain.FactorDelta {
	if lookbackDays <= 0 {
		lookbackDays = DefaultDeltaLookbackDays
	}

	current := DateOnly(currentDate)
	result := domain.FactorDelta{
		FactorKey:    key,
		CurrentScore: currentScore,
		CurrentDate:  current,
		Basis:        domain.BasisInsufficientHistory,
	}

	prevDay := current.AddDate(0, 0, -1)
	floor := current.AddDate(0, 0, -lookbackDays)

	// The nearest earlier non-null row inside [floor, current) is the
	// baseline; when that row is the exact previous day the basis upgrades.
	var bestDate time.Time
	var bestVal *float64
	for i := range history {
		row := &history[i]
		if row.Date.IsZero() {
			continue
		}
		d := DateOnly(row.Date)
		if !d.Before(current) || d.Before(floor) {
			continue
		}
		v := value(row)
		if v == nil {
			continue
		}
		if bestVal == nil || d.After(bestDate) {
			bestDate = d
			bestVal = v
		}
	}

	if bestVal == nil {
		return result
	}

	delta := currentScore - *bestVal
	prevDate := bestDate
	result.Delta = &delta
	result.PreviousScore = bestVal
	result.PreviousDate = &prevDate
	if bestDate.Equal(prevDay) {
		result.Basis = domain.BasisPreviousDay
	} else {
		result.Basis = domain.BasisPreviousAvailableRow
	}
	return result
}

// DateOnly truncates a timestamp to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
