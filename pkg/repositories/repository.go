// Package repositories persists projects, datasets, relationships and conversations.
package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

// ProjectRepository defines the interface for project data access.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	// Delete removes the project together with everything it owns.
	Delete(ctx context.Context, id uuid.UUID) error
}

// DatasetRepository stores immutable dataset values.
type DatasetRepository interface {
	Save(ctx context.Context, ds *models.Dataset) error
	Get(ctx context.Context, projectID uuid.UUID, id string) (*models.Dataset, error)
	List(ctx context.Context, projectID uuid.UUID) ([]*models.Dataset, error)
	Delete(ctx context.Context, projectID uuid.UUID, id string) error
}

// RelationshipRepository stores detected and user-declared relationship candidates.
type RelationshipRepository interface {
	List(ctx context.Context, projectID uuid.UUID) ([]models.RelationshipCandidate, error)

	// ReplaceDetected supersedes every detected candidate between the two datasets
	// (in either orientation) with candidates. User declarations are untouched.
	ReplaceDetected(ctx context.Context, projectID uuid.UUID, datasetA, datasetB string, candidates []models.RelationshipCandidate) error

	// SaveDeclared upserts a user declaration by id.
	SaveDeclared(ctx context.Context, projectID uuid.UUID, candidate *models.RelationshipCandidate) error

	// DeleteTouching removes every candidate, detected or declared, that references datasetID.
	DeleteTouching(ctx context.Context, projectID uuid.UUID, datasetID string) error
}

// ConversationRepository stores chat turns per project.
type ConversationRepository interface {
	Append(ctx context.Context, projectID uuid.UUID, msg *models.ChatMessage) error
	// List returns up to limit most recent messages in chronological order.
	List(ctx context.Context, projectID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

// Store bundles the repositories of one storage backend.
type Store struct {
	Projects      ProjectRepository
	Datasets      DatasetRepository
	Relationships RelationshipRepository
	Conversations ConversationRepository
}

// maxHistory bounds history reads that ask for no limit.
const maxHistory = 10000
