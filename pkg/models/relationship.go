package models

import "time"

// ============================================================================
// Provenance
// ============================================================================

// Provenance records where a relationship candidate came from.
// User declarations always outrank detected candidates.
type Provenance string

const (
	ProvenanceDetected Provenance = "detected"
	ProvenanceUser     Provenance = "user"
)

// ValidProvenances contains all valid provenance values.
var ValidProvenances = []Provenance{
	ProvenanceDetected,
	ProvenanceUser,
}

// IsValidProvenance checks if the given provenance is valid.
func IsValidProvenance(p Provenance) bool {
	for _, v := range ValidProvenances {
		if v == p {
			return true
		}
	}
	return false
}

// ============================================================================
// Relationship Candidate
// ============================================================================

// RelationshipCandidate is an undirected equality join between two datasets.
type RelationshipCandidate struct {
	ID              string     `json:"id"`
	SourceDatasetID string     `json:"source_dataset_id"`
	SourceColumn    string     `json:"source_column"`
	TargetDatasetID string     `json:"target_dataset_id"`
	TargetColumn    string     `json:"target_column"`
	Confidence      float64    `json:"confidence"`
	MatchingCount   int        `json:"matching_count"`
	SourceUnmatched int        `json:"source_unmatched"`
	TargetUnmatched int        `json:"target_unmatched"`
	Provenance      Provenance `json:"provenance"`
	CreatedAt       time.Time  `json:"created_at"`
}

// IsUserDeclared reports whether the candidate came from a user declaration.
func (c *RelationshipCandidate) IsUserDeclared() bool {
	return c.Provenance == ProvenanceUser
}

// Touches reports whether either side of the candidate references datasetID.
func (c *RelationshipCandidate) Touches(datasetID string) bool {
	return c.SourceDatasetID == datasetID || c.TargetDatasetID == datasetID
}

// SamePair reports whether both candidates join the same dataset/column pair,
// in either orientation.
func (c *RelationshipCandidate) SamePair(o *RelationshipCandidate) bool {
	if c.SourceDatasetID == o.SourceDatasetID && c.SourceColumn == o.SourceColumn &&
		c.TargetDatasetID == o.TargetDatasetID && c.TargetColumn == o.TargetColumn {
		return true
	}
	return c.SourceDatasetID == o.TargetDatasetID && c.SourceColumn == o.TargetColumn &&
		c.TargetDatasetID == o.SourceDatasetID && c.TargetColumn == o.SourceColumn
}

// ============================================================================
// Join Plan
// ============================================================================

// JoinStep is one left join executed by the resolver.
type JoinStep struct {
	Relationship RelationshipCandidate `json:"relationship"`
	LeftColumn   string                `json:"left_column"`
	RightDataset string                `json:"right_dataset_id"`
	RightColumn  string                `json:"right_column"`
	RowsBefore   int                   `json:"rows_before"`
	RowsAfter    int                   `json:"rows_after"`
	WeakMatch    bool                  `json:"weak_match"`
}

// JoinPlan is the ordered spanning tree over the required datasets.
type JoinPlan struct {
	AnchorDatasetID string                  `json:"anchor_dataset_id"`
	Edges           []RelationshipCandidate `json:"edges"`
}

// JoinTrace is the provenance attached to a joined dataset.
type JoinTrace struct {
	AnchorDatasetID string     `json:"anchor_dataset_id"`
	DatasetIDs      []string   `json:"dataset_ids"`
	Steps           []JoinStep `json:"steps"`
}

// HasWeakMatch reports whether any step fell back to string comparison.
func (t *JoinTrace) HasWeakMatch() bool {
	for _, s := range t.Steps {
		if s.WeakMatch {
			return true
		}
	}
	return false
}
