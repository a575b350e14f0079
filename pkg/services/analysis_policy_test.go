package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemur-data/lemur-engine/pkg/config"
)

func defaultProfilingConfig() config.ProfilingConfig {
	return config.ProfilingConfig{
		IdentifierDistinctPct:  95,
		DatetimeParseRatio:     0.9,
		NumericParseRatio:      0.9,
		CategoricalDistinctPct: 50,
		CategoricalMaxDistinct: 50,
		TopK:                   10,
		CorrelationThreshold:   0.7,
		NullWeight:             0.4,
		DuplicateWeight:        0.3,
		LowVariancePenalty:     10,
		LowVarianceCap:         30,
		IdenticalNameBonus:     0.2,
		IdentifierBonus:        0.1,
	}
}

func TestPolicyFromConfig_Defaults(t *testing.T) {
	policy, err := PolicyFromConfig(defaultProfilingConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultAnalysisPolicy(), policy)
}

func TestPolicyFromConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.ProfilingConfig)
		want   string
	}{
		{"percentage above 100", func(c *config.ProfilingConfig) { c.IdentifierDistinctPct = 120 }, "identifier_distinct_pct"},
		{"ratio above 1", func(c *config.ProfilingConfig) { c.NumericParseRatio = 1.5 }, "numeric_parse_ratio"},
		{"negative weight", func(c *config.ProfilingConfig) { c.NullWeight = -1 }, "quality weights"},
		{"zero top k", func(c *config.ProfilingConfig) { c.TopK = 0 }, "top_k"},
		{"zero categorical max", func(c *config.ProfilingConfig) { c.CategoricalMaxDistinct = 0 }, "categorical_max_distinct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultProfilingConfig()
			tt.mutate(&cfg)

			_, err := PolicyFromConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "invalid profiling configuration")
		})
	}
}
