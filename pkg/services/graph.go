package services

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

// DatasetGraph tracks which datasets are connected by relationships.
// It is a union-find over dataset ids; edges are undirected.
type DatasetGraph struct {
	parent map[string]string
	rank   map[string]int
	order  []string
}

// NewDatasetGraph creates a graph holding the given datasets with no edges.
func NewDatasetGraph(datasetIDs ...string) *DatasetGraph {
	g := &DatasetGraph{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
	for _, id := range datasetIDs {
		g.AddDataset(id)
	}
	return g
}

// AddDataset adds a dataset without any edges. Adding an existing id is a no-op.
func (g *DatasetGraph) AddDataset(id string) {
	if _, ok := g.parent[id]; ok {
		return
	}
	g.parent[id] = id
	g.order = append(g.order, id)
}

// Has reports whether the dataset is in the graph.
func (g *DatasetGraph) Has(id string) bool {
	_, ok := g.parent[id]
	return ok
}

func (g *DatasetGraph) find(id string) string {
	root := id
	for g.parent[root] != root {
		root = g.parent[root]
	}
	// Path compression.
	for g.parent[id] != root {
		next := g.parent[id]
		g.parent[id] = root
		id = next
	}
	return root
}

// Union connects a and b. It returns false when they were already connected,
// meaning the edge would close a cycle.
func (g *DatasetGraph) Union(a, b string) bool {
	g.AddDataset(a)
	g.AddDataset(b)
	ra, rb := g.find(a), g.find(b)
	if ra == rb {
		return false
	}
	switch {
	case g.rank[ra] < g.rank[rb]:
		g.parent[ra] = rb
	case g.rank[ra] > g.rank[rb]:
		g.parent[rb] = ra
	default:
		g.parent[rb] = ra
		g.rank[ra]++
	}
	return true
}

// AddRelationship connects the two datasets of a relationship candidate.
func (g *DatasetGraph) AddRelationship(rel models.RelationshipCandidate) bool {
	return g.Union(rel.SourceDatasetID, rel.TargetDatasetID)
}

// Connected reports whether a and b are in the same component.
func (g *DatasetGraph) Connected(a, b string) bool {
	if !g.Has(a) || !g.Has(b) {
		return false
	}
	return g.find(a) == g.find(b)
}

// ComponentOf returns the sorted ids in the same component as id.
func (g *DatasetGraph) ComponentOf(id string) []string {
	if !g.Has(id) {
		return nil
	}
	root := g.find(id)
	var out []string
	for _, other := range g.order {
		if g.find(other) == root {
			out = append(out, other)
		}
	}
	sort.Strings(out)
	return out
}

// ConnectedComponent represents a group of datasets connected by relationships.
type ConnectedComponent struct {
	Datasets []string
	Size     int
}

// FindConnectedComponents returns multi-dataset components sorted by size (largest
// first, then by smallest id) and the sorted list of island datasets.
func (g *DatasetGraph) FindConnectedComponents() ([]ConnectedComponent, []string) {
	groups := make(map[string][]string)
	for _, id := range g.order {
		root := g.find(id)
		groups[root] = append(groups[root], id)
	}

	var components []ConnectedComponent
	var islands []string
	for _, members := range groups {
		sort.Strings(members)
		if len(members) == 1 {
			islands = append(islands, members[0])
			continue
		}
		components = append(components, ConnectedComponent{Datasets: members, Size: len(members)})
	}

	sort.Slice(components, func(i, j int) bool {
		if components[i].Size != components[j].Size {
			return components[i].Size > components[j].Size
		}
		return components[i].Datasets[0] < components[j].Datasets[0]
	})
	sort.Strings(islands)
	return components, islands
}

// LogConnectivity logs the connectivity of a project's datasets in a human-readable format.
func LogConnectivity(relationshipCount int, components []ConnectedComponent, islands []string, logger *zap.Logger) {
	logger.Debug("Dataset connectivity",
		zap.Int("relationships", relationshipCount),
		zap.Int("components", len(components)),
		zap.Int("islands", len(islands)))

	for i, comp := range components {
		preview := comp.Datasets
		suffix := ""
		if len(preview) > 5 {
			preview = preview[:5]
			suffix = fmt.Sprintf(", ... (%d more)", comp.Size-5)
		}
		logger.Debug(fmt.Sprintf("  Component %d (%d datasets): %v%s", i+1, comp.Size, preview, suffix))
	}

	if len(islands) > 0 {
		logger.Debug(fmt.Sprintf("  Island datasets (%d): %v", len(islands), islands))
	}
}
