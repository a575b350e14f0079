package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

func TestDatasetProfiler_DuplicateRowScore(t *testing.T) {
	ds := mustDataset(t, "sales", "sales.csv", `[
		{"region": "east", "amount": 10},
		{"region": "west", "amount": 20},
		{"region": "east", "amount": 10},
		{"region": "north", "amount": 30}
	]`)

	profile := NewDatasetProfiler(DefaultAnalysisPolicy()).Profile(ds)

	assert.Equal(t, 1, profile.DuplicateRows)
	assert.InDelta(t, 25.0, profile.DuplicatePct, 1e-9)
	assert.InDelta(t, 92.5, profile.QualityScore, 1e-9)
	assert.Equal(t, models.AssessmentGood, profile.Assessment)
	assert.Equal(t, 4, profile.CompleteRows)
	assert.NotEmpty(t, profile.Issues, "a 25 percent duplicate rate is reported as an issue")
}

func TestDatasetProfiler_EmptyDataset(t *testing.T) {
	ds := mustDataset(t, "empty", "empty.csv", `[]`)

	profile := NewDatasetProfiler(DefaultAnalysisPolicy()).Profile(ds)

	assert.Empty(t, profile.Columns)
	assert.Equal(t, 100.0, profile.QualityScore)
	assert.Equal(t, models.AssessmentGood, profile.Assessment)
}

func TestDatasetProfiler_NullAndLowVarianceDeductions(t *testing.T) {
	// 4 rows, 2 columns: "note" is half null and has one distinct value,
	// "constant" has one distinct value.
	ds := mustDataset(t, "ds", "ds.csv", `[
		{"note": "a", "constant": 1},
		{"note": null, "constant": 1},
		{"note": "a", "constant": 1},
		{"note": null, "constant": 1}
	]`)

	profile := NewDatasetProfiler(DefaultAnalysisPolicy()).Profile(ds)

	// avg null = (50 + 0) / 2 = 25 -> 10 points; duplicates: rows 3 and 4 repeat 1 and 2 -> 50% -> 15 points;
	// two single-value columns -> 20 points.
	assert.Equal(t, 2, profile.DuplicateRows)
	assert.InDelta(t, 100-10-15-20, profile.QualityScore, 1e-9)
	assert.Equal(t, models.AssessmentPoor, profile.Assessment)
	assert.Equal(t, 2, profile.CompleteRows)
}

func TestDatasetProfiler_LowVarianceCapAndFloor(t *testing.T) {
	records := `[{"a": 1, "b": 1, "c": 1, "d": 1, "e": null}]`
	ds := mustDataset(t, "ds", "ds.csv", records)

	profile := NewDatasetProfiler(DefaultAnalysisPolicy()).Profile(ds)

	// avg null 20 -> 8 points; five columns with fewer than two distinct values, capped at 30.
	assert.InDelta(t, 100-8-30, profile.QualityScore, 1e-9)

	policy := DefaultAnalysisPolicy()
	policy.NullWeight = 10
	floored := NewDatasetProfiler(policy).Profile(ds)
	assert.Equal(t, 0.0, floored.QualityScore)
}

func TestDatasetProfiler_IndexColumnExcludedFromDuplicates(t *testing.T) {
	ds := mustDataset(t, "ds", "ds.csv", `[
		{"row": 1, "city": "Oslo", "temp": 3},
		{"row": 2, "city": "Oslo", "temp": 3},
		{"row": 3, "city": "Rome", "temp": 14}
	]`)

	profiler := NewDatasetProfiler(DefaultAnalysisPolicy())
	assert.Equal(t, 0, profiler.Profile(ds).DuplicateRows)

	ds.IndexColumn = "row"
	assert.Equal(t, 1, profiler.Profile(ds).DuplicateRows)
}

func TestDatasetProfiler_Correlations(t *testing.T) {
	type row struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		W float64 `json:"w"`
		Z float64 `json:"z"`
	}
	xs := []float64{1.5, 3.2, 2.1, 5.7, 4.4, 6.1, 8.3, 7.2, 9.9, 10.5, 12.1, 11.3}
	ws := []float64{-0.6, -3.9, -1.7, -6.9, -3.3, -5.8, -9.1, -5.8, -10.1, -9.9, -13.4, -10.8}
	zs := []float64{5.5, 1.5, 9.5, 2.5, 8.5, 3.5, 7.5, 4.5, 6.5, 10.5, 0.5, 11.5}

	rows := make([]row, len(xs))
	for i := range xs {
		rows[i] = row{X: xs[i], Y: 2*xs[i] + 1, W: ws[i], Z: zs[i]}
	}
	data, err := json.Marshal(rows)
	require.NoError(t, err)

	ds := mustDataset(t, "ds", "ds.csv", string(data))
	profile := NewDatasetProfiler(DefaultAnalysisPolicy()).Profile(ds)

	for _, name := range []string{"x", "y", "w", "z"} {
		require.Equal(t, models.RoleNumeric, profile.Column(name).Role, name)
	}

	require.Len(t, profile.Correlations, 3)
	assert.Equal(t, "x", profile.Correlations[0].ColumnA)
	assert.Equal(t, "y", profile.Correlations[0].ColumnB)
	assert.InDelta(t, 1.0, profile.Correlations[0].Coefficient, 1e-9)

	rest := map[string]float64{}
	for _, c := range profile.Correlations[1:] {
		rest[c.ColumnA+"-"+c.ColumnB] = c.Coefficient
	}
	assert.InDelta(t, -0.9752, rest["x-w"], 1e-3)
	assert.InDelta(t, -0.9752, rest["y-w"], 1e-3)

	for _, c := range profile.Correlations {
		assert.NotEqual(t, c.ColumnA, c.ColumnB)
		assert.NotEqual(t, "z", c.ColumnA)
		assert.NotEqual(t, "z", c.ColumnB)
	}
}

func TestDatasetProfiler_Hints(t *testing.T) {
	ds := mustDataset(t, "orders", "orders.csv", `[
		{"id": 1, "customer_id": 10, "created_at": "2024-01-01", "status": "open"},
		{"id": 2, "customer_id": 11, "created_at": "2024-01-02", "status": "closed"},
		{"id": 3, "customer_id": 10, "created_at": "2024-01-03", "status": "open"},
		{"id": 4, "customer_id": 12, "created_at": "2024-01-04", "status": "open"}
	]`)

	profile := NewDatasetProfiler(DefaultAnalysisPolicy()).Profile(ds)

	assert.Contains(t, profile.Hints.PotentialIDs, "id")
	assert.Contains(t, profile.Hints.PotentialForeignKeys, "customer_id")
	assert.NotContains(t, profile.Hints.PotentialForeignKeys, "id")
	assert.Contains(t, profile.Hints.PotentialDates, "created_at")
	assert.Contains(t, profile.Hints.PotentialCategories, "status")
}

func TestDatasetProfiler_ScoreAlwaysInRange(t *testing.T) {
	inputs := []string{
		`[]`,
		`[{"a": null}]`,
		`[{"a": 1}, {"a": 1}, {"a": 1}]`,
		`[{"a": null, "b": null}, {"a": null, "b": null}]`,
		`[{"a": 1, "b": "x"}, {"a": 2, "b": "y"}]`,
	}
	profiler := NewDatasetProfiler(DefaultAnalysisPolicy())

	for _, in := range inputs {
		profile := profiler.Profile(mustDataset(t, "ds", "ds.csv", in))
		assert.GreaterOrEqual(t, profile.QualityScore, 0.0, in)
		assert.LessOrEqual(t, profile.QualityScore, 100.0, in)
	}
}

func TestAssessScore_Bands(t *testing.T) {
	assert.Equal(t, models.AssessmentGood, AssessScore(80))
	assert.Equal(t, models.AssessmentFair, AssessScore(79.9))
	assert.Equal(t, models.AssessmentFair, AssessScore(60))
	assert.Equal(t, models.AssessmentPoor, AssessScore(59.9))
}
