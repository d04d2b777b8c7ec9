// Package snapshot validates and normalizes ETL artifacts at the system
// boundary. Factor snapshots and history series arrive as loosely-typed
// JSON/CSV; everything downstream assumes well-typed, invariant-respecting
// values, so coercion and rejection happen here and nowhere else.
//
// Structural problems (bad JSON, missing as_of_utc, empty factor list) fail
// the parse. Row- and factor-level problems degrade: the offending entry is
// skipped or excluded and a warning recorded, so one bad input never blocks
// the rest of the artifact.
package snapshot

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ghostgauge/gscore/internal/domain"
)

// timestampLayouts are accepted for artifact timestamps, most specific
// first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type wireSnapshot struct {
	Factors         []wireFactor     `json:"factors"`
	CompositeScore  *float64         `json:"composite_score"`
	Band            string           `json:"band"`
	CycleAdjustment float64          `json:"cycle_adjustment"`
	SpikeAdjustment float64          `json:"spike_adjustment"`
	AsOfUTC         string           `json:"as_of_utc"`
	Provenance      []wireProvenance `json:"provenance"`
}

type wireFactor struct {
	Key       string   `json:"key"`
	Label     string   `json:"label"`
	Pillar    string   `json:"pillar"`
	Score     *float64 `json:"score"`
	WeightPct float64  `json:"weight_pct"`
	Status    string   `json:"status"`
	Reason    string   `json:"reason"`
	LastUTC   string   `json:"last_utc"`
}

type wireProvenance struct {
	Source   string `json:"source"`
	DataAsOf string `json:"data_as_of"`
	Status   string `json:"status"`
	Note     string `json:"note"`
}

// ParseSnapshot parses and validates a factor snapshot artifact. Warnings
// describe factor-level coercions and skips; the error is reserved for
// structurally unusable input.
func ParseSnapshot(data []byte) (*domain.Snapshot, []string, error) {
	var wire wireSnapshot
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, nil, fmt.Errorf("invalid snapshot JSON: %w", err)
	}

	asOf, err := parseTimestamp(wire.AsOfUTC)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid as_of_utc %q: %w", wire.AsOfUTC, err)
	}
	if len(wire.Factors) == 0 {
		return nil, nil, fmt.Errorf("snapshot has no factors")
	}

	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	byKey := make(map[string]domain.Factor, len(wire.Factors))
	for _, wf := range wire.Factors {
		if wf.Key == "" {
			warn("factor with empty key skipped")
			continue
		}
		spec, ok := domain.FactorSpecByKey(wf.Key)
		if !ok {
			warn("unknown factor %q skipped", wf.Key)
			continue
		}
		if _, dup := byKey[wf.Key]; dup {
			warn("duplicate factor %q skipped", wf.Key)
			continue
		}

		f, fwarns := normalizeFactor(wf, spec)
		warnings = append(warnings, fwarns...)
		byKey[wf.Key] = f
	}
	if len(byKey) == 0 {
		return nil, warnings, fmt.Errorf("snapshot has no usable factors after validation")
	}

	// Canonical registry order keeps output deterministic.
	factors := make([]domain.Factor, 0, len(byKey))
	for _, spec := range domain.CanonicalFactors {
		if f, ok := byKey[spec.Key]; ok {
			factors = append(factors, f)
		}
	}

	composite := 0.0
	if wire.CompositeScore != nil {
		composite = *wire.CompositeScore
		if composite < 0 || composite > 100 {
			warn("composite_score %f clamped to [0,100]", composite)
			composite = clamp(composite, 0, 100)
		}
	} else {
		warn("composite_score missing, defaulting to 0")
	}

	snap := &domain.Snapshot{
		Factors:         factors,
		CompositeScore:  composite,
		Band:            wire.Band,
		CycleAdjustment: wire.CycleAdjustment,
		SpikeAdjustment: wire.SpikeAdjustment,
		AsOfUTC:         asOf,
	}

	for _, wp := range wire.Provenance {
		p := domain.Provenance{Source: wp.Source, Status: wp.Status, Note: wp.Note}
		if wp.DataAsOf != "" {
			if ts, err := parseTimestamp(wp.DataAsOf); err == nil {
				p.DataAsOf = &ts
			} else {
				warn("provenance %q has invalid data_as_of %q", wp.Source, wp.DataAsOf)
			}
		}
		snap.Provenance = append(snap.Provenance, p)
	}

	return snap, warnings, nil
}

// normalizeFactor coerces one wire factor into a domain factor that honors
// the score-nil-iff-excluded invariant. Canonical label and pillar always
// win over whatever the artifact carried.
func normalizeFactor(wf wireFactor, spec domain.FactorSpec) (domain.Factor, []string) {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	f := domain.Factor{
		Key:    spec.Key,
		Label:  spec.Label,
		Pillar: spec.Pillar,
		Score:  wf.Score,
		Reason: wf.Reason,
	}

	if wf.WeightPct < 0 {
		warn("factor %q has negative weight_pct %f, using 0", wf.Key, wf.WeightPct)
	} else {
		f.WeightPct = wf.WeightPct
	}

	if wf.LastUTC != "" {
		if ts, err := parseTimestamp(wf.LastUTC); err == nil {
			f.LastUTC = &ts
		} else {
			warn("factor %q has invalid last_utc %q", wf.Key, wf.LastUTC)
		}
	}

	switch domain.FactorStatus(wf.Status) {
	case domain.StatusFresh, domain.StatusStale, domain.StatusExcluded:
		f.Status = domain.FactorStatus(wf.Status)
	case "":
		if f.Score != nil {
			f.Status = domain.StatusFresh
		} else {
			f.Status = domain.StatusExcluded
		}
	default:
		warn("factor %q has unknown status %q, excluding", wf.Key, wf.Status)
		f.Status = domain.StatusExcluded
	}

	if f.Score != nil && (*f.Score < 0 || *f.Score > 100) {
		warn("factor %q score %f outside [0,100], excluding", wf.Key, *f.Score)
		f.Score = nil
		f.Status = domain.StatusExcluded
		if f.Reason == "" {
			f.Reason = domain.ReasonInvalidScore
		}
	}

	// score-nil-iff-excluded coercions.
	if f.Score == nil && f.Status != domain.StatusExcluded {
		warn("factor %q has no score but status %q, excluding", wf.Key, f.Status)
		f.Status = domain.StatusExcluded
		if f.Reason == "" {
			f.Reason = domain.ReasonMissingScore
		}
	}
	if f.Score != nil && f.Status == domain.StatusExcluded {
		warn("factor %q carries a score while excluded, dropping score", wf.Key)
		f.Score = nil
	}

	return f, warnings
}

type wireHistoryRow struct {
	Date      string              `json:"date"`
	Composite *float64            `json:"composite"`
	Factors   map[string]*float64 `json:"factors"`
}

// ParseHistoryJSON parses a historical series artifact: an array of rows,
// one per UTC calendar day. Bad rows are skipped with a warning.
func ParseHistoryJSON(data []byte) ([]domain.HistoryRow, []string, error) {
	var wire []wireHistoryRow
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, nil, fmt.Errorf("invalid history JSON: %w", err)
	}

	var warnings []string
	rows := make([]domain.HistoryRow, 0, len(wire))
	for i, wr := range wire {
		date, err := parseTimestamp(wr.Date)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("row %d: invalid date %q, skipped", i, wr.Date))
			continue
		}

		row := domain.HistoryRow{
			Date:      dateOnly(date),
			Composite: wr.Composite,
		}
		for key, v := range wr.Factors {
			if !domain.IsCanonicalFactor(key) {
				warnings = append(warnings, fmt.Sprintf("row %d: unknown factor %q dropped", i, key))
				continue
			}
			if row.Factors == nil {
				row.Factors = make(map[string]*float64)
			}
			row.Factors[key] = v
		}
		rows = append(rows, row)
	}
	return rows, warnings, nil
}

// ParseHistoryCSV parses the CSV form of the historical series. The header
// must include a date column; composite and canonical factor columns are
// optional. Empty cells become nil scores, malformed cells are dropped with
// a warning.
func ParseHistoryCSV(r io.Reader) ([]domain.HistoryRow, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	dateCol := -1
	compositeCol := -1
	factorCols := make(map[int]string)
	var warnings []string
	for i, name := range header {
		col := strings.ToLower(strings.TrimSpace(name))
		switch {
		case col == "date":
			dateCol = i
		case col == "composite":
			compositeCol = i
		case domain.IsCanonicalFactor(col):
			factorCols[i] = col
		default:
			warnings = append(warnings, fmt.Sprintf("unknown column %q ignored", name))
		}
	}
	if dateCol < 0 {
		return nil, nil, fmt.Errorf("CSV header has no date column")
	}

	var rows []domain.HistoryRow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: %v, skipped", line, err))
			continue
		}

		date, err := parseTimestamp(record[dateCol])
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: invalid date %q, skipped", line, record[dateCol]))
			continue
		}

		row := domain.HistoryRow{Date: dateOnly(date)}
		if compositeCol >= 0 && compositeCol < len(record) {
			if v, ok := parseCell(record[compositeCol], &warnings, line, "composite"); ok {
				row.Composite = v
			}
		}
		for i, key := range factorCols {
			if i >= len(record) {
				continue
			}
			if v, ok := parseCell(record[i], &warnings, line, key); ok && v != nil {
				if row.Factors == nil {
					row.Factors = make(map[string]*float64)
				}
				row.Factors[key] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, warnings, nil
}

// parseCell converts one CSV cell: empty means no value, malformed means a
// warning and no value.
func parseCell(cell string, warnings *[]string, line int, col string) (*float64, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("line %d: malformed %s value %q dropped", line, col, cell))
		return nil, false
	}
	return &v, true
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}

func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
