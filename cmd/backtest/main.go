// Backtest tool for replaying a historical factor CSV through the composite
// calculator.
//
// Usage:
//   go run cmd/backtest/main.go -csv /path/to/history.csv -preset official_30_30
//
// This tool:
//   1. Reads a historical series CSV (date, composite, per-factor columns)
//   2. Recomputes each day's composite under the chosen weight preset
//   3. Tracks band transitions and per-band residency
//   4. Prints the largest day-over-day moves and a final summary
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/ghostgauge/gscore/internal/domain"
	"github.com/ghostgauge/gscore/internal/score"
	"github.com/ghostgauge/gscore/internal/snapshot"
)

// DayResult is one replayed day of the series.
type DayResult struct {
	Date       time.Time
	Score      int
	Raw        float64
	Band       string
	Recomputed bool // false when the recorded composite was used as-is
}

// Transition is a band change between consecutive replayed days.
type Transition struct {
	Date time.Time
	From string
	To   string
}

// Move is a day-over-day score change.
type Move struct {
	Date  time.Time
	Delta float64
}

func main() {
	csvPath := flag.String("csv", "", "path to the historical series CSV")
	presetKey := flag.String("preset", "official_30_30", "weight preset to replay under")
	topMoves := flag.Int("top", 5, "number of largest day-over-day moves to print")
	flag.Parse()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -csv is required")
		flag.Usage()
		os.Exit(1)
	}

	weights, err := score.ResolvePreset(*presetKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Available presets: %v\n", score.PresetKeys())
		os.Exit(1)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening CSV: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	rows, warnings, err := snapshot.ParseHistoryCSV(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing CSV: %v\n", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no usable rows in CSV")
		os.Exit(1)
	}

	results := replay(rows, weights)
	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no rows produced a score")
		os.Exit(1)
	}

	printReport(results, *presetKey, *topMoves)
}

// replay scores each row under the preset weights. Rows with factor data are
// recomputed; rows carrying only a recorded composite are classified as-is.
func replay(rows []domain.HistoryRow, weights domain.WeightConfig) []DayResult {
	results := make([]DayResult, 0, len(rows))
	for _, row := range rows {
		factors := factorsFromRow(row)

		var result DayResult
		result.Date = row.Date

		if len(factors) > 0 {
			composite, err := score.Compute(factors, weights, 0, 0)
			if err == nil {
				result.Score = composite.Score
				result.Raw = composite.Raw
				result.Band = composite.Band.Label
				result.Recomputed = true
				results = append(results, result)
				continue
			}
		}

		if row.Composite == nil {
			continue
		}
		rounded := score.RoundHalfUp(*row.Composite)
		band, err := score.Classify(rounded)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s: %v\n", row.Date.Format("2006-01-02"), err)
			continue
		}
		result.Score = rounded
		result.Raw = *row.Composite
		result.Band = band.Label
		results = append(results, result)
	}
	return results
}

func factorsFromRow(row domain.HistoryRow) []domain.Factor {
	factors := make([]domain.Factor, 0, len(domain.CanonicalFactors))
	for _, spec := range domain.CanonicalFactors {
		value := row.FactorScore(spec.Key)
		if value == nil {
			continue
		}
		factors = append(factors, domain.Factor{
			Key:    spec.Key,
			Label:  spec.Label,
			Pillar: spec.Pillar,
			Score:  value,
			Status: domain.StatusFresh,
		})
	}
	return factors
}

func printReport(results []DayResult, presetKey string, topMoves int) {
	transitions := []Transition{}
	moves := []Move{}
	residency := map[string]int{}
	recomputed := 0

	var sum float64
	minScore, maxScore := results[0].Raw, results[0].Raw

	for i, r := range results {
		residency[r.Band]++
		sum += r.Raw
		minScore = math.Min(minScore, r.Raw)
		maxScore = math.Max(maxScore, r.Raw)
		if r.Recomputed {
			recomputed++
		}
		if i == 0 {
			continue
		}
		prev := results[i-1]
		if r.Band != prev.Band {
			transitions = append(transitions, Transition{Date: r.Date, From: prev.Band, To: r.Band})
		}
		moves = append(moves, Move{Date: r.Date, Delta: r.Raw - prev.Raw})
	}

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════")
	fmt.Println("  GScore Backtest")
	fmt.Println("═══════════════════════════════════════════════")
	fmt.Printf("  Preset:       %s\n", presetKey)
	fmt.Printf("  Days:         %d (%s → %s)\n", len(results),
		results[0].Date.Format("2006-01-02"),
		results[len(results)-1].Date.Format("2006-01-02"))
	fmt.Printf("  Recomputed:   %d (%d carried the recorded composite)\n",
		recomputed, len(results)-recomputed)
	fmt.Println()

	fmt.Println("  Band residency:")
	for _, band := range score.Bands() {
		days := residency[band.Label]
		if days == 0 {
			continue
		}
		pct := 100 * float64(days) / float64(len(results))
		fmt.Printf("    %-20s %5d days  (%5.1f%%)\n", band.Label, days, pct)
	}
	fmt.Println()

	fmt.Printf("  Band transitions: %d\n", len(transitions))
	for _, tr := range transitions {
		fmt.Printf("    %s  %s → %s\n", tr.Date.Format("2006-01-02"), tr.From, tr.To)
	}
	fmt.Println()

	if topMoves > 0 && len(moves) > 0 {
		sort.Slice(moves, func(i, j int) bool {
			return math.Abs(moves[i].Delta) > math.Abs(moves[j].Delta)
		})
		if topMoves > len(moves) {
			topMoves = len(moves)
		}
		fmt.Printf("  Largest day-over-day moves:\n")
		for _, m := range moves[:topMoves] {
			fmt.Printf("    %s  %+6.2f\n", m.Date.Format("2006-01-02"), m.Delta)
		}
		fmt.Println()
	}

	final := results[len(results)-1]
	fmt.Println("  Summary:")
	fmt.Printf("    Min:   %6.2f\n", minScore)
	fmt.Printf("    Max:   %6.2f\n", maxScore)
	fmt.Printf("    Mean:  %6.2f\n", sum/float64(len(results)))
	fmt.Printf("    Final: %d (%s) on %s\n", final.Score, final.Band, final.Date.Format("2006-01-02"))
	fmt.Println()
}
