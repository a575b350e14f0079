package services

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/models"
)

var joinNamespace = uuid.MustParse("b8d3e0f4-51a2-4c6e-8f7d-0a9b2c1e3d45")

// JoinResolver combines several datasets into one through a spanning tree of
// relationships. Every join is a left outer join anchored on the dataset with the
// lexicographically smallest id, so no anchor row is dropped.
type JoinResolver struct{}

// NewJoinResolver creates a join resolver.
func NewJoinResolver() *JoinResolver {
	return &JoinResolver{}
}

// SortRelationships orders candidates for edge selection: user declarations first,
// then descending confidence, then ascending (source id, source column) and
// (target id, target column).
func SortRelationships(rels []models.RelationshipCandidate) {
	sort.SliceStable(rels, func(i, j int) bool {
		a, b := rels[i], rels[j]
		if a.IsUserDeclared() != b.IsUserDeclared() {
			return a.IsUserDeclared()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.SourceDatasetID != b.SourceDatasetID {
			return a.SourceDatasetID < b.SourceDatasetID
		}
		if a.SourceColumn != b.SourceColumn {
			return a.SourceColumn < b.SourceColumn
		}
		if a.TargetDatasetID != b.TargetDatasetID {
			return a.TargetDatasetID < b.TargetDatasetID
		}
		return a.TargetColumn < b.TargetColumn
	})
}

// requiredSet dedupes and sorts the requested ids and checks they all exist.
func requiredSet(requiredIDs []string, datasets map[string]*models.Dataset) ([]string, error) {
	seen := make(map[string]bool, len(requiredIDs))
	var ids []string
	for _, id := range requiredIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one dataset id is required", apperrors.ErrInvalidRelationship)
	}
	for _, id := range ids {
		if _, ok := datasets[id]; !ok {
			return nil, &apperrors.DatasetNotFoundError{ID: id}
		}
	}
	return ids, nil
}

// usableRelationships keeps candidates whose datasets are both required and whose
// columns still exist, and drops detected candidates shadowed by a user declaration
// on the same dataset/column pair.
func usableRelationships(ids []string, datasets map[string]*models.Dataset, rels []models.RelationshipCandidate) []models.RelationshipCandidate {
	required := make(map[string]bool, len(ids))
	for _, id := range ids {
		required[id] = true
	}

	var declared []models.RelationshipCandidate
	var usable []models.RelationshipCandidate
	for _, r := range rels {
		if r.SourceDatasetID == r.TargetDatasetID || !required[r.SourceDatasetID] || !required[r.TargetDatasetID] {
			continue
		}
		if datasets[r.SourceDatasetID].Column(r.SourceColumn) == nil || datasets[r.TargetDatasetID].Column(r.TargetColumn) == nil {
			continue
		}
		if r.IsUserDeclared() {
			declared = append(declared, r)
		}
		usable = append(usable, r)
	}

	out := usable[:0]
	for _, r := range usable {
		shadowed := false
		if !r.IsUserDeclared() {
			for i := range declared {
				if declared[i].SamePair(&r) {
					shadowed = true
					break
				}
			}
		}
		if !shadowed {
			out = append(out, r)
		}
	}
	SortRelationships(out)
	return out
}

// Plan builds the spanning tree over the required datasets. It fails with
// DatasetNotFoundError for unknown ids and DisconnectedDatasetsError when the
// relationships cannot connect every required dataset.
func (r *JoinResolver) Plan(requiredIDs []string, datasets map[string]*models.Dataset, rels []models.RelationshipCandidate) (*models.JoinPlan, error) {
	ids, err := requiredSet(requiredIDs, datasets)
	if err != nil {
		return nil, err
	}

	plan := &models.JoinPlan{AnchorDatasetID: ids[0], Edges: []models.RelationshipCandidate{}}
	if len(ids) == 1 {
		return plan, nil
	}

	graph := NewDatasetGraph(ids...)
	for _, rel := range usableRelationships(ids, datasets, rels) {
		if len(plan.Edges) == len(ids)-1 {
			break
		}
		if graph.AddRelationship(rel) {
			plan.Edges = append(plan.Edges, rel)
		}
	}

	if len(plan.Edges) < len(ids)-1 {
		return nil, &apperrors.DisconnectedDatasetsError{Unreachable: unreachableFrom(graph, ids)}
	}
	return plan, nil
}

// unreachableFrom lists required datasets outside the anchor's component. When the
// anchor itself has no edges it is stranded as well and is included.
func unreachableFrom(graph *DatasetGraph, ids []string) []string {
	anchor := ids[0]
	component := graph.ComponentOf(anchor)
	var out []string
	if len(component) == 1 {
		out = append(out, anchor)
	}
	for _, id := range ids {
		if !graph.Connected(anchor, id) {
			out = append(out, id)
		}
	}
	return out
}

// Resolve plans and executes the join. A single required dataset is returned unchanged.
func (r *JoinResolver) Resolve(requiredIDs []string, datasets map[string]*models.Dataset, rels []models.RelationshipCandidate) (*models.Dataset, error) {
	plan, err := r.Plan(requiredIDs, datasets, rels)
	if err != nil {
		return nil, err
	}
	if len(plan.Edges) == 0 {
		return datasets[plan.AnchorDatasetID], nil
	}
	return r.Execute(plan, datasets)
}

// accumulator is the running left side of the join.
type accumulator struct {
	columns []models.Column
	rows    int
	names   map[string]bool
	// origin maps "datasetID\x00column" to the accumulated column index.
	origin map[string]int
}

func originKey(datasetID, column string) string {
	return datasetID + "\x00" + column
}

func newAccumulator(anchor *models.Dataset) *accumulator {
	acc := &accumulator{
		columns: make([]models.Column, len(anchor.Columns)),
		rows:    anchor.RowCount,
		names:   make(map[string]bool),
		origin:  make(map[string]int),
	}
	for i, c := range anchor.Columns {
		values := make([]models.Value, len(c.Values))
		copy(values, c.Values)
		acc.columns[i] = models.Column{Name: c.Name, Role: c.Role, Values: values}
		acc.names[c.Name] = true
		acc.origin[originKey(anchor.ID, c.Name)] = i
	}
	return acc
}

// uniqueName suffixes a colliding column with the contributing dataset's name.
func (a *accumulator) uniqueName(name string, ds *models.Dataset) string {
	if !a.names[name] {
		return name
	}
	base := name + "_" + datasetSuffix(ds)
	candidate := base
	for n := 2; a.names[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
	return candidate
}

func datasetSuffix(ds *models.Dataset) string {
	name := strings.TrimSuffix(ds.DisplayName, filepath.Ext(ds.DisplayName))
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return ds.ID
	}
	return b.String()
}

// Execute runs the plan's edges as successive left joins. An edge is executed once
// one of its datasets is already part of the accumulator, taking edges in plan order.
func (r *JoinResolver) Execute(plan *models.JoinPlan, datasets map[string]*models.Dataset) (*models.Dataset, error) {
	anchor, ok := datasets[plan.AnchorDatasetID]
	if !ok {
		return nil, &apperrors.DatasetNotFoundError{ID: plan.AnchorDatasetID}
	}

	acc := newAccumulator(anchor)
	joined := map[string]bool{anchor.ID: true}
	trace := &models.JoinTrace{
		AnchorDatasetID: anchor.ID,
		DatasetIDs:      []string{anchor.ID},
		Steps:           []models.JoinStep{},
	}

	pending := make([]models.RelationshipCandidate, len(plan.Edges))
	copy(pending, plan.Edges)

	for len(pending) > 0 {
		progressed := false
		for i, edge := range pending {
			var leftID, leftCol, rightID, rightCol string
			switch {
			case joined[edge.SourceDatasetID] && !joined[edge.TargetDatasetID]:
				leftID, leftCol, rightID, rightCol = edge.SourceDatasetID, edge.SourceColumn, edge.TargetDatasetID, edge.TargetColumn
			case joined[edge.TargetDatasetID] && !joined[edge.SourceDatasetID]:
				leftID, leftCol, rightID, rightCol = edge.TargetDatasetID, edge.TargetColumn, edge.SourceDatasetID, edge.SourceColumn
			default:
				continue
			}

			right, ok := datasets[rightID]
			if !ok {
				return nil, &apperrors.DatasetNotFoundError{ID: rightID}
			}
			leftIdx, ok := acc.origin[originKey(leftID, leftCol)]
			if !ok {
				return nil, &apperrors.ColumnNotFoundError{DatasetID: leftID, Column: leftCol}
			}
			if right.Column(rightCol) == nil {
				return nil, &apperrors.ColumnNotFoundError{DatasetID: rightID, Column: rightCol}
			}

			step := acc.leftJoin(leftIdx, right, rightCol)
			step.Relationship = edge
			step.LeftColumn = acc.columns[leftIdx].Name
			trace.Steps = append(trace.Steps, step)
			trace.DatasetIDs = append(trace.DatasetIDs, rightID)
			joined[rightID] = true

			pending = append(pending[:i], pending[i+1:]...)
			progressed = true
			break
		}
		if !progressed {
			// Plans from Plan are trees rooted at the anchor, so this means a hand-built plan.
			var stranded []string
			for _, e := range pending {
				for _, id := range []string{e.SourceDatasetID, e.TargetDatasetID} {
					if !joined[id] {
						stranded = append(stranded, id)
					}
				}
			}
			sort.Strings(stranded)
			return nil, &apperrors.DisconnectedDatasetsError{Unreachable: dedupeSorted(stranded)}
		}
	}

	names := make([]string, len(trace.DatasetIDs))
	for i, id := range trace.DatasetIDs {
		names[i] = datasets[id].DisplayName
	}

	return &models.Dataset{
		ID:          uuid.NewSHA1(joinNamespace, []byte(strings.Join(trace.DatasetIDs, "\x00"))).String(),
		ProjectID:   anchor.ProjectID,
		DisplayName: strings.Join(names, " + "),
		Columns:     acc.columns,
		RowCount:    acc.rows,
		CreatedAt:   anchor.CreatedAt,
		Trace:       trace,
	}, nil
}

// leftJoin joins right onto the accumulator on acc[leftIdx] = right[rightCol].
// Left rows with no match keep one row with nulls; rows with several matches fan out.
func (a *accumulator) leftJoin(leftIdx int, right *models.Dataset, rightCol string) models.JoinStep {
	rightKey := right.Column(rightCol)
	key, weak := keyMatcher(a.columns[leftIdx].Values, rightKey.Values)
	step := models.JoinStep{
		RightDataset: right.ID,
		RightColumn:  rightCol,
		RowsBefore:   a.rows,
		WeakMatch:    weak,
	}

	index := make(map[string][]int)
	for i, v := range rightKey.Values {
		if v.IsNull() {
			continue
		}
		k := key(v)
		index[k] = append(index[k], i)
	}

	// Pair each left row with its right matches; -1 marks "no match".
	type pair struct{ left, right int }
	var pairs []pair
	for i := 0; i < a.rows; i++ {
		v := a.columns[leftIdx].Values[i]
		var matches []int
		if !v.IsNull() {
			matches = index[key(v)]
		}
		if len(matches) == 0 {
			pairs = append(pairs, pair{i, -1})
			continue
		}
		for _, m := range matches {
			pairs = append(pairs, pair{i, m})
		}
	}

	// Rebuild the accumulated columns in the new row order.
	for c := range a.columns {
		old := a.columns[c].Values
		values := make([]models.Value, len(pairs))
		for i, p := range pairs {
			values[i] = old[p.left]
		}
		a.columns[c].Values = values
	}

	// The right key duplicates the left key when both share a name.
	dropKey := a.columns[leftIdx].Name == rightCol
	for _, col := range right.Columns {
		if dropKey && col.Name == rightCol {
			a.origin[originKey(right.ID, col.Name)] = leftIdx
			continue
		}
		name := a.uniqueName(col.Name, right)
		values := make([]models.Value, len(pairs))
		for i, p := range pairs {
			if p.right < 0 {
				values[i] = models.Null
			} else {
				values[i] = col.Values[p.right]
			}
		}
		a.columns = append(a.columns, models.Column{Name: name, Role: col.Role, Values: values})
		a.names[name] = true
		a.origin[originKey(right.ID, col.Name)] = len(a.columns) - 1
	}

	a.rows = len(pairs)
	step.RowsAfter = a.rows
	return step
}

// dominantKind is the most common non-null kind of a column, lowest kind on ties.
func dominantKind(values []models.Value) models.ValueKind {
	counts := make(map[models.ValueKind]int)
	for _, v := range values {
		if !v.IsNull() {
			counts[v.Kind]++
		}
	}
	best, bestN := models.KindNull, 0
	for _, k := range []models.ValueKind{models.KindString, models.KindNumber, models.KindBool, models.KindTime} {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best
}

func dedupeSorted(ids []string) []string {
	var out []string
	for i, id := range ids {
		if i == 0 || ids[i-1] != id {
			out = append(out, id)
		}
	}
	return out
}
