package services

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/models"
)

// relationshipNamespace seeds deterministic candidate ids.
var relationshipNamespace = uuid.MustParse("6f1c2a7e-3b0d-4a57-9e51-2d8c4b7f0a13")

// apparentType is the coarse value family used to decide whether two columns can be compared.
type apparentType int

const (
	apparentText apparentType = iota
	apparentNumeric
	apparentTemporal
)

// RelationshipDetector finds candidate join keys between two datasets.
type RelationshipDetector struct {
	policy   AnalysisPolicy
	analyzer *ColumnAnalyzer
}

// NewRelationshipDetector creates a detector using the given policy.
func NewRelationshipDetector(policy AnalysisPolicy) *RelationshipDetector {
	return &RelationshipDetector{
		policy:   policy,
		analyzer: NewColumnAnalyzer(policy),
	}
}

// MatchKey is the normalised form used when two key columns hold different kinds:
// numbers (or numeric strings) compare by canonical numeric form, everything else
// by trimmed string form.
func MatchKey(v models.Value) string {
	if f, ok := ParseNumber(v); ok {
		return "n:" + strconv.FormatFloat(f, 'f', -1, 64)
	}
	return "s:" + strings.TrimSpace(v.String())
}

// overlap holds the set statistics of two columns' distinct non-null values.
type overlap struct {
	matching        int
	sourceUnmatched int
	targetUnmatched int
}

func (o overlap) union() int {
	return o.matching + o.sourceUnmatched + o.targetUnmatched
}

// keyMatcher picks how two key columns compare. Columns of the same dominant kind
// compare by typed identity (Value.Key), so the strings "007" and "7" stay apart.
// Otherwise values compare by MatchKey and weak is true.
func keyMatcher(a, b []models.Value) (key func(models.Value) string, weak bool) {
	ka, kb := dominantKind(a), dominantKind(b)
	if ka == models.KindNull || kb == models.KindNull || ka == kb {
		return models.Value.Key, false
	}
	return MatchKey, true
}

func distinctKeys(values []models.Value, key func(models.Value) string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		set[key(v)] = struct{}{}
	}
	return set
}

func computeOverlap(a, b []models.Value) overlap {
	key, _ := keyMatcher(a, b)
	setA := distinctKeys(a, key)
	setB := distinctKeys(b, key)

	var o overlap
	for k := range setA {
		if _, ok := setB[k]; ok {
			o.matching++
		} else {
			o.sourceUnmatched++
		}
	}
	o.targetUnmatched = len(setB) - o.matching
	return o
}

// profiledColumn pairs a column with its role and apparent type.
type profiledColumn struct {
	index    int
	column   *models.Column
	role     models.ColumnRole
	apparent apparentType
}

func (d *RelationshipDetector) profileColumns(ds *models.Dataset) []profiledColumn {
	out := make([]profiledColumn, len(ds.Columns))
	for i := range ds.Columns {
		col := &ds.Columns[i]
		role := col.Role
		if role == "" {
			role = d.analyzer.Analyze(col.Name, col.Values).Role
		}
		out[i] = profiledColumn{
			index:    i,
			column:   col,
			role:     role,
			apparent: apparentTypeOf(role, col.Values),
		}
	}
	return out
}

func apparentTypeOf(role models.ColumnRole, values []models.Value) apparentType {
	switch role {
	case models.RoleNumeric:
		return apparentNumeric
	case models.RoleDatetime:
		return apparentTemporal
	}
	var nonNull []models.Value
	for _, v := range values {
		if !v.IsNull() {
			nonNull = append(nonNull, v)
		}
	}
	if len(nonNull) == 0 {
		return apparentText
	}
	if _, ratio := parseNumbers(nonNull); ratio >= 0.9 {
		return apparentNumeric
	}
	return apparentText
}

// candidatePairs selects the column pairs to compare: identical names first; only
// when there are none, identifier pairs and type-compatible non-free-text pairs.
func candidatePairs(colsA, colsB []profiledColumn) [][2]profiledColumn {
	var pairs [][2]profiledColumn
	for _, ca := range colsA {
		for _, cb := range colsB {
			if ca.column.Name == cb.column.Name {
				pairs = append(pairs, [2]profiledColumn{ca, cb})
			}
		}
	}
	if len(pairs) > 0 {
		return pairs
	}

	for _, ca := range colsA {
		for _, cb := range colsB {
			bothIdentifiers := ca.role == models.RoleIdentifier && cb.role == models.RoleIdentifier
			comparable := ca.role != models.RoleFreeText && cb.role != models.RoleFreeText &&
				ca.role != models.RoleUnknown && cb.role != models.RoleUnknown &&
				ca.apparent == cb.apparent
			if bothIdentifiers || comparable {
				pairs = append(pairs, [2]profiledColumn{ca, cb})
			}
		}
	}
	return pairs
}

// Detect returns candidates between a and b ordered by descending confidence.
// A candidate with no shared values is never emitted.
func (d *RelationshipDetector) Detect(a, b *models.Dataset) []models.RelationshipCandidate {
	candidates := []models.RelationshipCandidate{}
	if a.ID == b.ID {
		return candidates
	}

	type scored struct {
		candidate models.RelationshipCandidate
		ai, bi    int
	}
	var found []scored

	for _, pair := range candidatePairs(d.profileColumns(a), d.profileColumns(b)) {
		ca, cb := pair[0], pair[1]
		o := computeOverlap(ca.column.Values, cb.column.Values)
		if o.matching == 0 {
			continue
		}

		confidence := float64(o.matching) / math.Max(float64(o.union()), 1)
		if ca.column.Name == cb.column.Name {
			confidence += d.policy.IdenticalNameBonus
		}
		if ca.role == models.RoleIdentifier || cb.role == models.RoleIdentifier {
			confidence += d.policy.IdentifierBonus
		}
		confidence = math.Min(1, confidence)

		c := models.RelationshipCandidate{
			SourceDatasetID: a.ID,
			SourceColumn:    ca.column.Name,
			TargetDatasetID: b.ID,
			TargetColumn:    cb.column.Name,
			Confidence:      confidence,
			MatchingCount:   o.matching,
			SourceUnmatched: o.sourceUnmatched,
			TargetUnmatched: o.targetUnmatched,
			Provenance:      models.ProvenanceDetected,
		}
		c.ID = candidateID(&c)
		found = append(found, scored{candidate: c, ai: ca.index, bi: cb.index})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].candidate.Confidence != found[j].candidate.Confidence {
			return found[i].candidate.Confidence > found[j].candidate.Confidence
		}
		if found[i].ai != found[j].ai {
			return found[i].ai < found[j].ai
		}
		return found[i].bi < found[j].bi
	})

	for _, f := range found {
		candidates = append(candidates, f.candidate)
	}
	return candidates
}

// Declare builds a user relationship between a.columnA and b.columnB. Match statistics
// are attached for feedback only; zero matches do not reject the declaration.
func (d *RelationshipDetector) Declare(a *models.Dataset, columnA string, b *models.Dataset, columnB string) (*models.RelationshipCandidate, error) {
	if a.ID == b.ID {
		return nil, fmt.Errorf("%w: source and target dataset must differ", apperrors.ErrInvalidRelationship)
	}
	colA := a.Column(columnA)
	if colA == nil {
		return nil, &apperrors.ColumnNotFoundError{DatasetID: a.ID, Column: columnA}
	}
	colB := b.Column(columnB)
	if colB == nil {
		return nil, &apperrors.ColumnNotFoundError{DatasetID: b.ID, Column: columnB}
	}

	o := computeOverlap(colA.Values, colB.Values)
	c := &models.RelationshipCandidate{
		SourceDatasetID: a.ID,
		SourceColumn:    columnA,
		TargetDatasetID: b.ID,
		TargetColumn:    columnB,
		Confidence:      1.0,
		MatchingCount:   o.matching,
		SourceUnmatched: o.sourceUnmatched,
		TargetUnmatched: o.targetUnmatched,
		Provenance:      models.ProvenanceUser,
	}
	c.ID = candidateID(c)
	return c, nil
}

func candidateID(c *models.RelationshipCandidate) string {
	name := strings.Join([]string{
		string(c.Provenance),
		c.SourceDatasetID, c.SourceColumn,
		c.TargetDatasetID, c.TargetColumn,
	}, "\x00")
	return uuid.NewSHA1(relationshipNamespace, []byte(name)).String()
}
