package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

// Fixed quality bands.
const (
	goodScoreThreshold = 80
	fairScoreThreshold = 60
)

// minCorrelationPairs is the fewest paired observations a correlation is computed from.
const minCorrelationPairs = 3

// Estimated in-memory cost of one cell, excluding string payload.
const cellOverheadBytes = 24

// DatasetProfiler aggregates column analysis into a dataset-level report.
// Like ColumnAnalyzer it has no side effects.
type DatasetProfiler struct {
	policy   AnalysisPolicy
	analyzer *ColumnAnalyzer
}

// NewDatasetProfiler creates a profiler using the given policy.
func NewDatasetProfiler(policy AnalysisPolicy) *DatasetProfiler {
	return &DatasetProfiler{
		policy:   policy,
		analyzer: NewColumnAnalyzer(policy),
	}
}

// Analyzer returns the column analyzer the profiler uses.
func (p *DatasetProfiler) Analyzer() *ColumnAnalyzer {
	return p.analyzer
}

// Profile computes the DatasetProfile of ds. A dataset with no columns scores 100.
func (p *DatasetProfiler) Profile(ds *models.Dataset) *models.DatasetProfile {
	profile := &models.DatasetProfile{
		DatasetID:    ds.ID,
		RowCount:     ds.RowCount,
		ColumnCount:  len(ds.Columns),
		Columns:      make([]models.ColumnProfile, 0, len(ds.Columns)),
		Issues:       []string{},
		Warnings:     []string{},
		Correlations: []models.Correlation{},
	}

	for _, col := range ds.Columns {
		profile.Columns = append(profile.Columns, p.analyzer.Analyze(col.Name, col.Values))
	}

	profile.DuplicateRows = countDuplicateRows(ds)
	profile.DuplicatePct = percent(profile.DuplicateRows, ds.RowCount)
	profile.CompleteRows = countCompleteRows(ds)
	profile.CompletePct = percent(profile.CompleteRows, ds.RowCount)
	profile.MemoryBytes = estimateMemory(ds)

	profile.QualityScore = p.qualityScore(profile)
	profile.Assessment = AssessScore(profile.QualityScore)
	profile.Issues, profile.Warnings = qualityFindings(profile)
	profile.Correlations = p.correlations(ds, profile)
	profile.Hints = buildHints(profile)

	return profile
}

// qualityScore deducts weighted null and duplicate percentages and a capped
// per-column penalty for columns with fewer than two distinct values.
func (p *DatasetProfiler) qualityScore(profile *models.DatasetProfile) float64 {
	if len(profile.Columns) == 0 {
		return 100
	}

	var nullSum float64
	lowVariance := 0
	for _, c := range profile.Columns {
		nullSum += c.NullPct
		if c.DistinctCount < 2 {
			lowVariance++
		}
	}
	avgNull := nullSum / float64(len(profile.Columns))

	score := 100.0
	score -= p.policy.NullWeight * avgNull
	score -= p.policy.DuplicateWeight * profile.DuplicatePct
	score -= math.Min(p.policy.LowVarianceCap, p.policy.LowVariancePenalty*float64(lowVariance))

	return math.Max(0, math.Min(100, score))
}

// AssessScore maps a quality score onto its band.
func AssessScore(score float64) models.Assessment {
	switch {
	case score >= goodScoreThreshold:
		return models.AssessmentGood
	case score >= fairScoreThreshold:
		return models.AssessmentFair
	default:
		return models.AssessmentPoor
	}
}

// rowKey is the full-row identity used for duplicate detection, skipping the index column.
func rowKey(ds *models.Dataset, row int) string {
	var b strings.Builder
	for _, col := range ds.Columns {
		if ds.IndexColumn != "" && col.Name == ds.IndexColumn {
			continue
		}
		b.WriteString(col.Values[row].Key())
		b.WriteByte(0x1f)
	}
	return b.String()
}

func countDuplicateRows(ds *models.Dataset) int {
	if len(ds.Columns) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, ds.RowCount)
	dups := 0
	for i := 0; i < ds.RowCount; i++ {
		k := rowKey(ds, i)
		if _, ok := seen[k]; ok {
			dups++
			continue
		}
		seen[k] = struct{}{}
	}
	return dups
}

func countCompleteRows(ds *models.Dataset) int {
	complete := 0
	for i := 0; i < ds.RowCount; i++ {
		full := true
		for _, col := range ds.Columns {
			if col.Values[i].IsNull() {
				full = false
				break
			}
		}
		if full {
			complete++
		}
	}
	return complete
}

func estimateMemory(ds *models.Dataset) int64 {
	var total int64
	for _, col := range ds.Columns {
		total += int64(len(col.Name))
		for _, v := range col.Values {
			total += cellOverheadBytes + int64(len(v.Str))
		}
	}
	return total
}

func qualityFindings(profile *models.DatasetProfile) ([]string, []string) {
	issues := []string{}
	warnings := []string{}

	switch {
	case profile.DuplicatePct > 10:
		issues = append(issues, fmt.Sprintf("High duplicate rate: %.1f%% rows are duplicates", profile.DuplicatePct))
	case profile.DuplicatePct > 5:
		warnings = append(warnings, fmt.Sprintf("Moderate duplicate rate: %.1f%% rows are duplicates", profile.DuplicatePct))
	}

	for _, c := range profile.Columns {
		switch {
		case c.NullPct > 50:
			issues = append(issues, fmt.Sprintf("Column '%s' has %.1f%% missing values", c.Name, c.NullPct))
		case c.NullPct > 20:
			warnings = append(warnings, fmt.Sprintf("Column '%s' has %.1f%% missing values", c.Name, c.NullPct))
		}
		if c.DistinctCount == 1 {
			warnings = append(warnings, fmt.Sprintf("Column '%s' has only one unique value", c.Name))
		}
	}
	return issues, warnings
}

// correlations reports numeric column pairs whose |r| meets the threshold,
// ordered by descending |r| then by column position. Each unordered pair appears once.
func (p *DatasetProfiler) correlations(ds *models.Dataset, profile *models.DatasetProfile) []models.Correlation {
	var numericIdx []int
	for i, c := range profile.Columns {
		if c.Role == models.RoleNumeric {
			numericIdx = append(numericIdx, i)
		}
	}

	type ranked struct {
		corr models.Correlation
		i, j int
	}
	var found []ranked

	for a := 0; a < len(numericIdx); a++ {
		for b := a + 1; b < len(numericIdx); b++ {
			ci, cj := numericIdx[a], numericIdx[b]
			xs, ys := pairedNumbers(ds.Columns[ci].Values, ds.Columns[cj].Values)
			if len(xs) < minCorrelationPairs {
				continue
			}
			r, ok := pearson(xs, ys)
			if !ok || math.Abs(r) < p.policy.CorrelationThreshold {
				continue
			}
			found = append(found, ranked{
				corr: models.Correlation{
					ColumnA:     ds.Columns[ci].Name,
					ColumnB:     ds.Columns[cj].Name,
					Coefficient: r,
				},
				i: ci,
				j: cj,
			})
		}
	}

	sort.SliceStable(found, func(x, y int) bool {
		ax, ay := math.Abs(found[x].corr.Coefficient), math.Abs(found[y].corr.Coefficient)
		if ax != ay {
			return ax > ay
		}
		if found[x].i != found[y].i {
			return found[x].i < found[y].i
		}
		return found[x].j < found[y].j
	})

	out := make([]models.Correlation, len(found))
	for i, f := range found {
		out[i] = f.corr
	}
	return out
}

func pairedNumbers(a, b []models.Value) ([]float64, []float64) {
	var xs, ys []float64
	for i := range a {
		x, okx := ParseNumber(a[i])
		y, oky := ParseNumber(b[i])
		if okx && oky {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return xs, ys
}

var (
	dateNameWords   = []string{"date", "time", "created", "updated", "modified"}
	targetNameWords = map[string]bool{"target": true, "label": true, "class": true, "category": true, "result": true, "outcome": true}
)

func buildHints(profile *models.DatasetProfile) models.ProfileHints {
	hints := models.ProfileHints{
		PotentialIDs:         []string{},
		PotentialForeignKeys: []string{},
		PotentialDates:       []string{},
		PotentialCategories:  []string{},
		PotentialTargets:     []string{},
	}

	for _, c := range profile.Columns {
		lower := strings.ToLower(c.Name)

		if c.Role == models.RoleIdentifier || IsIdentifierName(c.Name) {
			hints.PotentialIDs = append(hints.PotentialIDs, c.Name)
		}
		if strings.HasSuffix(lower, "_id") && lower != "id" {
			hints.PotentialForeignKeys = append(hints.PotentialForeignKeys, c.Name)
		}
		if c.Role == models.RoleDatetime || containsAny(lower, dateNameWords) {
			hints.PotentialDates = append(hints.PotentialDates, c.Name)
		}
		if c.Role == models.RoleCategorical {
			hints.PotentialCategories = append(hints.PotentialCategories, c.Name)
		}
		if targetNameWords[lower] || (c.Role == models.RoleCategorical && c.DistinctCount <= 5) {
			hints.PotentialTargets = append(hints.PotentialTargets, c.Name)
		}
	}
	return hints
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
