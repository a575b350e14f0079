package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/models"
	"github.com/lemur-data/lemur-engine/pkg/repositories"
)

// ProjectService defines the interface for project operations.
type ProjectService interface {
	Create(ctx context.Context, name string) (*models.Project, error)

	// Get returns apperrors.ErrProjectNotFound for unknown ids.
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)

	List(ctx context.Context) ([]*models.Project, error)

	// Delete tears the project down together with its datasets, relationships,
	// conversation and cached profiles.
	Delete(ctx context.Context, id uuid.UUID) error

	// UpdateContext replaces the free-text business context.
	UpdateContext(ctx context.Context, id uuid.UUID, content string) (*models.Project, error)

	GetContext(ctx context.Context, id uuid.UUID) (string, error)
}

type projectService struct {
	store  *repositories.Store
	cache  repositories.ProfileCache
	locks  *ProjectLocks
	now    func() time.Time
	logger *zap.Logger
}

var _ ProjectService = (*projectService)(nil)

// NewProjectService creates a new project service.
func NewProjectService(store *repositories.Store, cache repositories.ProfileCache, locks *ProjectLocks, logger *zap.Logger) ProjectService {
	return &projectService{
		store:  store,
		cache:  cache,
		locks:  locks,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.Named("projects"),
	}
}

func (s *projectService) Create(ctx context.Context, name string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", apperrors.ErrInvalidInput)
	}

	now := s.now()
	project := &models.Project{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Projects.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info("Project created", zap.String("project_id", project.ID.String()), zap.String("name", name))
	return project, nil
}

func (s *projectService) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	project, err := s.store.Projects.Get(ctx, id)
	if err != nil {
		return nil, projectLookupError(err)
	}
	return project, nil
}

func (s *projectService) List(ctx context.Context) ([]*models.Project, error) {
	projects, err := s.store.Projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

func (s *projectService) Delete(ctx context.Context, id uuid.UUID) error {
	lock := s.locks.For(id)
	lock.Lock()
	defer lock.Unlock()

	datasets, err := s.store.Datasets.List(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list datasets: %w", err)
	}

	if err := s.store.Projects.Delete(ctx, id); err != nil {
		return projectLookupError(err)
	}

	for _, ds := range datasets {
		if err := s.cache.Forget(ctx, ds.ID); err != nil {
			s.logger.Warn("Failed to evict cached profile",
				zap.String("dataset_id", ds.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("Project deleted",
		zap.String("project_id", id.String()),
		zap.Int("datasets", len(datasets)))
	return nil
}

func (s *projectService) UpdateContext(ctx context.Context, id uuid.UUID, content string) (*models.Project, error) {
	project, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	project.Context = content
	project.UpdatedAt = s.now()
	if err := s.store.Projects.Update(ctx, project); err != nil {
		return nil, projectLookupError(err)
	}
	return project, nil
}

func (s *projectService) GetContext(ctx context.Context, id uuid.UUID) (string, error) {
	project, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return project.Context, nil
}

// projectLookupError maps a repository miss to ErrProjectNotFound.
func projectLookupError(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.ErrProjectNotFound
	}
	return fmt.Errorf("failed to access project: %w", err)
}
