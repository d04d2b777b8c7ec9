package domain

import (
	"time"
)

// Snapshot is one ETL cycle's worth of factor data plus the officially
// computed composite. Snapshots are immutable once persisted; the latest
// snapshot is the system of record for the dashboard.
type Snapshot struct {
	Factors         []Factor     `json:"factors"`
	CompositeScore  float64      `json:"composite_score"`
	Band            string       `json:"band"`
	CycleAdjustment float64      `json:"cycle_adjustment"`
	SpikeAdjustment float64      `json:"spike_adjustment"`
	AsOfUTC         time.Time    `json:"as_of_utc"`
	Provenance      []Provenance `json:"provenance,omitempty"`
}

// FactorByKey returns the snapshot's factor with the given key.
func (s *Snapshot) FactorByKey(key string) (*Factor, bool) {
	for i := range s.Factors {
		if s.Factors[i].Key == key {
			return &s.Factors[i], true
		}
	}
	return nil, false
}

// UsableFactorCount counts factors eligible for composite computation.
func (s *Snapshot) UsableFactorCount() int {
	n := 0
	for i := range s.Factors {
		if s.Factors[i].Usable() {
			n++
		}
	}
	return n
}

// Provenance records where one upstream input came from and how the fetch
// went, so the dashboard can show per-source data lineage.
type Provenance struct {
	Source   string     `json:"source"`
	DataAsOf *time.Time `json:"data_as_of,omitempty"`
	Status   string     `json:"status"`
	Note     string     `json:"note,omitempty"`
}

// HistoryRow is one UTC calendar day of the historical series: the official
// composite for that day plus optional per-factor scores. A nil score means
// the factor was missing that day.
type HistoryRow struct {
	Date      time.Time           `json:"date"`
	Composite *float64            `json:"composite"`
	Factors   map[string]*float64 `json:"factors,omitempty"`
}

// FactorScore returns the row's score for a factor key, or nil when the
// factor was not recorded that day.
func (r *HistoryRow) FactorScore(key string) *float64 {
	if r.Factors == nil {
		return nil
	}
	return r.Factors[key]
}
