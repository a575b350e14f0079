package repositories

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/models"
)

// memoryState is shared by the in-process repositories. Everything is lost on restart.
type memoryState struct {
	mu            sync.RWMutex
	projects      map[uuid.UUID]*models.Project
	datasets      map[uuid.UUID]map[string]*models.Dataset
	relationships map[uuid.UUID][]models.RelationshipCandidate
	conversations map[uuid.UUID][]models.ChatMessage
}

// NewMemoryStore creates a Store that keeps all state in process memory.
func NewMemoryStore() *Store {
	state := &memoryState{
		projects:      make(map[uuid.UUID]*models.Project),
		datasets:      make(map[uuid.UUID]map[string]*models.Dataset),
		relationships: make(map[uuid.UUID][]models.RelationshipCandidate),
		conversations: make(map[uuid.UUID][]models.ChatMessage),
	}
	return &Store{
		Projects:      &memoryProjects{state},
		Datasets:      &memoryDatasets{state},
		Relationships: &memoryRelationships{state},
		Conversations: &memoryConversations{state},
	}
}

// ============================================================================
// Projects
// ============================================================================

type memoryProjects struct{ *memoryState }

var _ ProjectRepository = (*memoryProjects)(nil)

func (r *memoryProjects) Create(ctx context.Context, project *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[project.ID]; ok {
		return apperrors.ErrConflict
	}
	p := *project
	r.projects[project.ID] = &p
	return nil
}

func (r *memoryProjects) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (r *memoryProjects) List(ctx context.Context) ([]*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	projects := make([]*models.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out := *p
		projects = append(projects, &out)
	}
	slices.SortFunc(projects, func(a, b *models.Project) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return projects, nil
}

func (r *memoryProjects) Update(ctx context.Context, project *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[project.ID]; !ok {
		return apperrors.ErrNotFound
	}
	p := *project
	r.projects[project.ID] = &p
	return nil
}

func (r *memoryProjects) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.projects, id)
	delete(r.datasets, id)
	delete(r.relationships, id)
	delete(r.conversations, id)
	return nil
}

// ============================================================================
// Datasets
// ============================================================================

type memoryDatasets struct{ *memoryState }

var _ DatasetRepository = (*memoryDatasets)(nil)

// Save stores the dataset pointer itself. Datasets are immutable once ingested.
func (r *memoryDatasets) Save(ctx context.Context, ds *models.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[ds.ProjectID]; !ok {
		return apperrors.ErrProjectNotFound
	}
	byID, ok := r.datasets[ds.ProjectID]
	if !ok {
		byID = make(map[string]*models.Dataset)
		r.datasets[ds.ProjectID] = byID
	}
	byID[ds.ID] = ds
	return nil
}

func (r *memoryDatasets) Get(ctx context.Context, projectID uuid.UUID, id string) (*models.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, ok := r.datasets[projectID][id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return ds, nil
}

func (r *memoryDatasets) List(ctx context.Context, projectID uuid.UUID) ([]*models.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Dataset, 0, len(r.datasets[projectID]))
	for _, ds := range r.datasets[projectID] {
		out = append(out, ds)
	}
	sortDatasets(out)
	return out, nil
}

func (r *memoryDatasets) Delete(ctx context.Context, projectID uuid.UUID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.datasets[projectID][id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.datasets[projectID], id)
	return nil
}

// sortDatasets orders by upload time, then id.
func sortDatasets(ds []*models.Dataset) {
	slices.SortFunc(ds, func(a, b *models.Dataset) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// ============================================================================
// Relationships
// ============================================================================

type memoryRelationships struct{ *memoryState }

var _ RelationshipRepository = (*memoryRelationships)(nil)

func (r *memoryRelationships) List(ctx context.Context, projectID uuid.UUID) ([]models.RelationshipCandidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.relationships[projectID]), nil
}

func (r *memoryRelationships) ReplaceDetected(ctx context.Context, projectID uuid.UUID, datasetA, datasetB string, candidates []models.RelationshipCandidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := slices.DeleteFunc(slices.Clone(r.relationships[projectID]), func(c models.RelationshipCandidate) bool {
		return !c.IsUserDeclared() && c.Touches(datasetA) && c.Touches(datasetB)
	})
	r.relationships[projectID] = append(kept, candidates...)
	return nil
}

func (r *memoryRelationships) SaveDeclared(ctx context.Context, projectID uuid.UUID, candidate *models.RelationshipCandidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rels := r.relationships[projectID]
	for i := range rels {
		if rels[i].ID == candidate.ID {
			rels[i] = *candidate
			return nil
		}
	}
	r.relationships[projectID] = append(rels, *candidate)
	return nil
}

func (r *memoryRelationships) DeleteTouching(ctx context.Context, projectID uuid.UUID, datasetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.relationships[projectID] = slices.DeleteFunc(slices.Clone(r.relationships[projectID]), func(c models.RelationshipCandidate) bool {
		return c.Touches(datasetID)
	})
	return nil
}

// ============================================================================
// Conversations
// ============================================================================

type memoryConversations struct{ *memoryState }

var _ ConversationRepository = (*memoryConversations)(nil)

func (r *memoryConversations) Append(ctx context.Context, projectID uuid.UUID, msg *models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[projectID]; !ok {
		return apperrors.ErrProjectNotFound
	}
	r.conversations[projectID] = append(r.conversations[projectID], *msg)
	return nil
}

func (r *memoryConversations) List(ctx context.Context, projectID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := r.conversations[projectID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return slices.Clone(msgs), nil
}
