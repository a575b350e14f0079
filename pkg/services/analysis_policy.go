package services

import (
	"fmt"

	"github.com/lemur-data/lemur-engine/pkg/config"
)

// AnalysisPolicy holds the tunable thresholds used by the column analyzer,
// dataset profiler and relationship detector. The quality bands (good/fair/poor)
// are not part of the policy.
type AnalysisPolicy struct {
	// Column classification
	IdentifierDistinctPct  float64 // minimum distinct % for an identifier
	DatetimeParseRatio     float64 // share of non-null values that must parse as time
	NumericParseRatio      float64 // share of non-null values that must parse as numbers
	CategoricalDistinctPct float64 // maximum distinct % for a categorical column
	CategoricalMaxDistinct int     // maximum distinct count for a categorical column
	TopK                   int     // size of the categorical frequency table

	// Dataset profile
	CorrelationThreshold float64 // minimum |r| reported as highly correlated
	NullWeight           float64 // weight of average null % in the quality deduction
	DuplicateWeight      float64 // weight of duplicate-row % in the quality deduction
	LowVariancePenalty   float64 // points deducted per column with < 2 distinct values
	LowVarianceCap       float64 // cap on the low-variance deduction

	// Relationship detection
	IdenticalNameBonus float64
	IdentifierBonus    float64
}

// DefaultAnalysisPolicy returns the standard thresholds.
func DefaultAnalysisPolicy() AnalysisPolicy {
	return AnalysisPolicy{
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

// PolicyFromConfig converts the profiling configuration section into a validated policy.
func PolicyFromConfig(cfg config.ProfilingConfig) (AnalysisPolicy, error) {
	p := AnalysisPolicy{
		IdentifierDistinctPct:  cfg.IdentifierDistinctPct,
		DatetimeParseRatio:     cfg.DatetimeParseRatio,
		NumericParseRatio:      cfg.NumericParseRatio,
		CategoricalDistinctPct: cfg.CategoricalDistinctPct,
		CategoricalMaxDistinct: cfg.CategoricalMaxDistinct,
		TopK:                   cfg.TopK,
		CorrelationThreshold:   cfg.CorrelationThreshold,
		NullWeight:             cfg.NullWeight,
		DuplicateWeight:        cfg.DuplicateWeight,
		LowVariancePenalty:     cfg.LowVariancePenalty,
		LowVarianceCap:         cfg.LowVarianceCap,
		IdenticalNameBonus:     cfg.IdenticalNameBonus,
		IdentifierBonus:        cfg.IdentifierBonus,
	}
	if err := p.Validate(); err != nil {
		return AnalysisPolicy{}, fmt.Errorf("invalid profiling configuration: %w", err)
	}
	return p, nil
}

// Validate checks that ratios and percentages are in range and weights are non-negative.
func (p AnalysisPolicy) Validate() error {
	pcts := map[string]float64{
		"identifier_distinct_pct":  p.IdentifierDistinctPct,
		"categorical_distinct_pct": p.CategoricalDistinctPct,
	}
	for name, v := range pcts {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be within [0,100], got %v", name, v)
		}
	}

	ratios := map[string]float64{
		"datetime_parse_ratio":  p.DatetimeParseRatio,
		"numeric_parse_ratio":   p.NumericParseRatio,
		"correlation_threshold": p.CorrelationThreshold,
		"identical_name_bonus":  p.IdenticalNameBonus,
		"identifier_bonus":      p.IdentifierBonus,
	}
	for name, v := range ratios {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}

	if p.NullWeight < 0 || p.DuplicateWeight < 0 || p.LowVariancePenalty < 0 || p.LowVarianceCap < 0 {
		return fmt.Errorf("quality weights must be non-negative")
	}
	if p.CategoricalMaxDistinct < 1 {
		return fmt.Errorf("categorical_max_distinct must be at least 1, got %d", p.CategoricalMaxDistinct)
	}
	if p.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", p.TopK)
	}
	return nil
}
