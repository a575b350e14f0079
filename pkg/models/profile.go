package models

// ============================================================================
// Column Profiles
// ============================================================================

// ColumnProfile is the derived summary of one column. Exactly one of the
// role-specific summaries is set, matching Role; unknown and free-text columns
// may carry only the base counts (free-text also carries Text).
type ColumnProfile struct {
	Name          string     `json:"name"`
	Role          ColumnRole `json:"role"`
	RowCount      int        `json:"row_count"`
	NullCount     int        `json:"null_count"`
	NullPct       float64    `json:"null_pct"`
	DistinctCount int        `json:"distinct_count"`
	DistinctPct   float64    `json:"distinct_pct"`

	Identifier  *IdentifierSummary  `json:"identifier,omitempty"`
	Numeric     *NumericSummary     `json:"numeric,omitempty"`
	Datetime    *DatetimeSummary    `json:"datetime,omitempty"`
	Categorical *CategoricalSummary `json:"categorical,omitempty"`
	Text        *TextSummary        `json:"text,omitempty"`
}

// NonNullCount returns the number of non-null cells.
func (p *ColumnProfile) NonNullCount() int {
	return p.RowCount - p.NullCount
}

// IdentifierSummary describes a near-unique key column.
type IdentifierSummary struct {
	IsUnique   bool     `json:"is_unique"`
	Pattern    string   `json:"pattern,omitempty"` // numeric, prefixed, uuid
	Monotonic  bool     `json:"monotonic"`
	NameMatch  bool     `json:"name_match"`
	SampleKeys []string `json:"sample_keys"`
}

// NumericSummary holds statistics over the parsed numeric values, nulls ignored.
type NumericSummary struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
	StdDev    float64 `json:"stddev"` // population
	Q25       float64 `json:"q25"`
	Q75       float64 `json:"q75"`
	Zeros     int     `json:"zeros"`
	Negatives int     `json:"negatives"`
	Positives int     `json:"positives"`
	Outliers  int     `json:"outliers"` // outside 1.5 IQR, computed only when more than 4 values
	Parsed    int     `json:"parsed"`
}

// DatetimeFrequency is the modal spacing between consecutive distinct dates.
type DatetimeFrequency string

const (
	FrequencyDaily     DatetimeFrequency = "daily"
	FrequencyWeekly    DatetimeFrequency = "weekly"
	FrequencyMonthly   DatetimeFrequency = "monthly"
	FrequencyYearly    DatetimeFrequency = "yearly"
	FrequencyIrregular DatetimeFrequency = "irregular"
)

// DatetimeSummary holds the range of the parsed timestamps.
type DatetimeSummary struct {
	Min         string            `json:"min"`
	Max         string            `json:"max"`
	SpanDays    float64           `json:"span_days"`
	HasTime     bool              `json:"has_time"`
	UniqueDates int               `json:"unique_dates"`
	Frequency   DatetimeFrequency `json:"frequency"`
	Parsed      int               `json:"parsed"`
}

// ValueCount is one entry of a top-k frequency table.
type ValueCount struct {
	Value   Value   `json:"value"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// CategoricalSummary holds the most frequent values by descending count,
// ties in first-seen order.
type CategoricalSummary struct {
	TopValues []ValueCount `json:"top_values"`
}

// TextSummary describes string lengths of a free-text column.
type TextSummary struct {
	AvgLength float64 `json:"avg_length"`
	MinLength int     `json:"min_length"`
	MaxLength int     `json:"max_length"`
	AvgWords  float64 `json:"avg_words"`
	HasURLs   bool    `json:"has_urls"`
	HasEmails bool    `json:"has_emails"`
}

// ============================================================================
// Dataset Profile
// ============================================================================

// Assessment is the fixed quality band derived from the quality score.
type Assessment string

const (
	AssessmentGood Assessment = "good"
	AssessmentFair Assessment = "fair"
	AssessmentPoor Assessment = "poor"
)

// Correlation is a highly correlated pair of numeric columns.
type Correlation struct {
	ColumnA     string  `json:"column_a"`
	ColumnB     string  `json:"column_b"`
	Coefficient float64 `json:"coefficient"`
}

// ProfileHints are dataset-local suggestions for downstream analysis.
type ProfileHints struct {
	PotentialIDs         []string `json:"potential_ids"`
	PotentialForeignKeys []string `json:"potential_foreign_keys"`
	PotentialDates       []string `json:"potential_dates"`
	PotentialCategories  []string `json:"potential_categories"`
	PotentialTargets     []string `json:"potential_targets"`
}

// DatasetProfile aggregates the column profiles of one dataset.
type DatasetProfile struct {
	DatasetID     string          `json:"dataset_id"`
	RowCount      int             `json:"row_count"`
	ColumnCount   int             `json:"column_count"`
	Columns       []ColumnProfile `json:"columns"`
	DuplicateRows int             `json:"duplicate_rows"`
	DuplicatePct  float64         `json:"duplicate_pct"`
	CompleteRows  int             `json:"complete_rows"`
	CompletePct   float64         `json:"complete_pct"`
	MemoryBytes   int64           `json:"memory_bytes"`
	QualityScore  float64         `json:"quality_score"`
	Assessment    Assessment      `json:"assessment"`
	Issues        []string        `json:"issues"`
	Warnings      []string        `json:"warnings"`
	Correlations  []Correlation   `json:"correlations"`
	Hints         ProfileHints    `json:"hints"`
}

// Column returns the named column profile, or nil.
func (p *DatasetProfile) Column(name string) *ColumnProfile {
	for i := range p.Columns {
		if p.Columns[i].Name == name {
			return &p.Columns[i]
		}
	}
	return nil
}
