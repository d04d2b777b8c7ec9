package domain

import (
	"time"
)

// RiskBand is a labeled closed integer range on the 0-100 scale with an
// associated recommendation. The six bands partition [0,100]: every integer
// belongs to exactly one band.
type RiskBand struct {
	Min            int    `json:"min"`
	Max            int    `json:"max"`
	Label          string `json:"label"`
	Recommendation string `json:"recommendation"`
}

// Contains reports whether score falls inside the band's closed range.
func (b RiskBand) Contains(score int) bool {
	return score >= b.Min && score <= b.Max
}

// CompositeScore is a derived what-if value: the weighted factor sum after
// adjustments, clamped to [0,100] and rounded half-up before band
// classification. It is never persisted as authoritative; the externally
// computed snapshot remains the system of record.
type CompositeScore struct {
	Score           int                  `json:"score"`
	Raw             float64              `json:"raw"`
	Band            RiskBand             `json:"band"`
	CycleAdjustment float64              `json:"cycleAdjustment"`
	SpikeAdjustment float64              `json:"spikeAdjustment"`
	LowConfidence   bool                 `json:"lowConfidence"`
	FactorsUsed     int                  `json:"factorsUsed"`
	Contributions   []FactorContribution `json:"contributions,omitempty"`
}

// FactorContribution shows how a single factor contributed to a composite
// score after weight renormalization.
type FactorContribution struct {
	Key          string  `json:"key"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`       // renormalized effective weight
	Contribution float64 `json:"contribution"` // score * weight
}

// Staleness is the freshness classification of one factor.
type Staleness struct {
	Level  FactorStatus `json:"level"`
	Reason string       `json:"reason,omitempty"`
}

// DeltaBasis tags which historical row a factor delta was computed against,
// so "no change" (delta 0) and "no data" (delta nil) stay distinguishable.
type DeltaBasis string

const (
	BasisPreviousDay          DeltaBasis = "previous_day"
	BasisPreviousAvailableRow DeltaBasis = "previous_available_row"
	BasisInsufficientHistory  DeltaBasis = "insufficient_history"
)

// FactorDelta is a day-over-day change for one factor.
//
// Invariant: Basis == BasisInsufficientHistory implies Delta is nil.
type FactorDelta struct {
	FactorKey     string     `json:"factorKey"`
	Delta         *float64   `json:"delta"`
	CurrentScore  float64    `json:"currentScore"`
	PreviousScore *float64   `json:"previousScore,omitempty"`
	CurrentDate   time.Time  `json:"currentDate"`
	PreviousDate  *time.Time `json:"previousDate,omitempty"`
	Basis         DeltaBasis `json:"basis"`
}
