package score

import (
	"errors"
	"fmt"

	"github.com/ghostgauge/gscore/internal/domain"
)

// ErrScoreOutOfRange is returned when a classification input falls outside
// [0,100]. The calculator's clamp should make this unreachable; the
// classifier validates independently.
var ErrScoreOutOfRange = errors.New("score out of range")

// riskBands is the static band table: six ordered closed ranges partitioning
// the integer scale [0,100].
var riskBands = []domain.RiskBand{
	{Min: 0, Max: 14, Label: "Aggressive Buying", Recommendation: "Maximum opportunity zone. Deploy capital aggressively."},
	{Min: 15, Max: 34, Label: "Regular DCA Buying", Recommendation: "Favorable accumulation zone. Continue regular DCA purchases."},
	{Min: 35, Max: 49, Label: "Moderate Buying", Recommendation: "Mildly favorable. Buy moderately on dips."},
	{Min: 50, Max: 64, Label: "Hold & Wait", Recommendation: "Neutral zone. Hold positions and wait for a clearer signal."},
	{Min: 65, Max: 79, Label: "Reduce Risk", Recommendation: "Elevated risk. Trim exposure and tighten risk controls."},
	{Min: 80, Max: 100, Label: "High Risk", Recommendation: "Extreme risk. Consider significant de-risking."},
}

// Classify maps an integer score to the unique band whose closed range
// contains it. Callers clamp and round first; out-of-range input is an
// invariant violation upstream.
func Classify(score int) (domain.RiskBand, error) {
	if score < 0 || score > 100 {
		return domain.RiskBand{}, fmt.Errorf("score %d: %w", score, ErrScoreOutOfRange)
	}
	for _, band := range riskBands {
		if band.Contains(score) {
			return band, nil
		}
	}
	// Unreachable while the band table partitions [0,100].
	return domain.RiskBand{}, fmt.Errorf("score %d matched no band: %w", score, ErrScoreOutOfRange)
}

// BandByLabel returns the band with the given label.
func BandByLabel(label string) (domain.RiskBand, bool) {
	for _, band := range riskBands {
		if band.Label == label {
			return band, true
		}
	}
	return domain.RiskBand{}, false
}

// Bands returns a copy of the band table in ascending order.
func Bands() []domain.RiskBand {
	out := make([]domain.RiskBand, len(riskBands))
	copy(out, riskBands)
	return out
}
