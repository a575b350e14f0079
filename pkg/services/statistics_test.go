package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, mean(nil))
	assert.InDelta(t, 2.5, mean([]float64{1, 2, 3, 4}), 1e-12)
}

func TestPopulationStdDev_Degenerate(t *testing.T) {
	assert.Equal(t, 0.0, populationStdDev(nil))
	assert.Equal(t, 0.0, populationStdDev([]float64{42}))
}

func TestQuantile(t *testing.T) {
	tests := []struct {
		name     string
		sorted   []float64
		q        float64
		expected float64
	}{
		{"empty", nil, 0.5, 0},
		{"single", []float64{7}, 0.25, 7},
		{"median of odd count", []float64{1, 2, 3}, 0.5, 2},
		{"median of even count is the midpoint", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"lower quartile interpolates", []float64{1, 2, 3, 4}, 0.25, 1.75},
		{"upper quartile interpolates", []float64{1, 2, 3, 4}, 0.75, 3.25},
		{"minimum", []float64{1, 2, 3, 4}, 0, 1},
		{"maximum", []float64{1, 2, 3, 4}, 1, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, quantile(tt.sorted, tt.q), 1e-12)
		})
	}
}

func TestPearson(t *testing.T) {
	r, ok := pearson([]float64{1, 2, 3, 4}, []float64{2, 4, 6, 8})
	assert.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-12)

	r, ok = pearson([]float64{1, 2, 3, 4}, []float64{8, 6, 4, 2})
	assert.True(t, ok)
	assert.InDelta(t, -1.0, r, 1e-12)

	_, ok = pearson([]float64{1, 2, 3}, []float64{5, 5, 5})
	assert.False(t, ok, "zero variance has no correlation")

	_, ok = pearson([]float64{1}, []float64{2})
	assert.False(t, ok, "a single pair has no correlation")

	_, ok = pearson([]float64{1, 2}, []float64{1})
	assert.False(t, ok, "unpaired samples")
}
