package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/models"
	"github.com/lemur-data/lemur-engine/pkg/repositories"
	"github.com/lemur-data/lemur-engine/pkg/storage"
)

// DefaultPreviewRows is used when a preview asks for no particular size.
const DefaultPreviewRows = 100

// MaxPreviewRows bounds preview and join previews.
const MaxPreviewRows = 1000

// DatasetService hosts the profiling engine for a project: ingestion, profiling,
// relationship detection and declaration, and join resolution.
type DatasetService interface {
	// Upload ingests a CSV document, profiles it, and re-runs detection for every
	// pair that includes the new dataset.
	Upload(ctx context.Context, projectID uuid.UUID, fileName string, data []byte) (*IngestResult, error)

	// IngestRecords is Upload for JSON records.
	IngestRecords(ctx context.Context, projectID uuid.UUID, name string, records []models.Record) (*IngestResult, error)

	// Replace ingests a new version of a dataset under a fresh id and removes the old one.
	// Every relationship touching the old id is dropped.
	Replace(ctx context.Context, projectID uuid.UUID, datasetID, fileName string, data []byte) (*IngestResult, error)

	Remove(ctx context.Context, projectID uuid.UUID, datasetID string) error
	List(ctx context.Context, projectID uuid.UUID) ([]models.DatasetSummary, error)
	Get(ctx context.Context, projectID uuid.UUID, datasetID string) (*models.Dataset, error)
	Preview(ctx context.Context, projectID uuid.UUID, datasetID string, limit int) (*DatasetPreview, error)

	// Profile returns the cached profile, computing it on a miss.
	Profile(ctx context.Context, projectID uuid.UUID, datasetID string) (*models.DatasetProfile, error)

	// DetectRelationships runs detection for one ordered pair and stores the result,
	// superseding earlier detected candidates for the pair.
	DetectRelationships(ctx context.Context, projectID uuid.UUID, sourceID, targetID string) ([]models.RelationshipCandidate, error)

	// DeclareRelationship records a user declaration. A missing column leaves the
	// relationship set unchanged.
	DeclareRelationship(ctx context.Context, projectID uuid.UUID, req DeclareRelationshipRequest) (*models.RelationshipCandidate, error)

	// ListRelationships returns declared and detected candidates in edge-selection order.
	ListRelationships(ctx context.Context, projectID uuid.UUID) ([]models.RelationshipCandidate, error)

	// ResolveJoin joins the required datasets over the project's relationships.
	// The result is not stored.
	ResolveJoin(ctx context.Context, projectID uuid.UUID, datasetIDs []string) (*models.Dataset, error)
}

// IngestResult is returned from Upload, IngestRecords and Replace.
type IngestResult struct {
	Dataset       models.DatasetSummary          `json:"dataset"`
	Profile       *models.DatasetProfile         `json:"profile"`
	Relationships []models.RelationshipCandidate `json:"relationships"`
	ReplacedID    string                         `json:"replaced_id,omitempty"`
}

// DatasetPreview holds the first rows of a dataset.
type DatasetPreview struct {
	DatasetID string          `json:"dataset_id"`
	Columns   []string        `json:"columns"`
	Rows      []models.Record `json:"rows"`
	TotalRows int             `json:"total_rows"`
}

// DeclareRelationshipRequest names the two columns of a user declaration.
type DeclareRelationshipRequest struct {
	SourceDatasetID string `json:"source_dataset_id"`
	SourceColumn    string `json:"source_column"`
	TargetDatasetID string `json:"target_dataset_id"`
	TargetColumn    string `json:"target_column"`
}

type datasetService struct {
	store    *repositories.Store
	cache    repositories.ProfileCache
	archive  storage.Archive
	locks    *ProjectLocks
	ingestor *Ingestor
	profiler *DatasetProfiler
	detector *RelationshipDetector
	resolver *JoinResolver
	logger   *zap.Logger
}

var _ DatasetService = (*datasetService)(nil)

// NewDatasetService creates a DatasetService using policy for every analysis.
func NewDatasetService(
	store *repositories.Store,
	cache repositories.ProfileCache,
	archive storage.Archive,
	locks *ProjectLocks,
	policy AnalysisPolicy,
	logger *zap.Logger,
) DatasetService {
	profiler := NewDatasetProfiler(policy)
	return &datasetService{
		store:    store,
		cache:    cache,
		archive:  archive,
		locks:    locks,
		ingestor: NewIngestor(profiler.Analyzer()),
		profiler: profiler,
		detector: NewRelationshipDetector(policy),
		resolver: NewJoinResolver(),
		logger:   logger.Named("datasets"),
	}
}

// ============================================================================
// Ingestion
// ============================================================================

func (s *datasetService) Upload(ctx context.Context, projectID uuid.UUID, fileName string, data []byte) (*IngestResult, error) {
	if err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	start := time.Now()
	ds, err := s.ingestor.IngestCSV(fileName, bytes.NewReader(data))
	if err != nil {
		s.logger.Info("Rejected upload",
			zap.String("project_id", projectID.String()),
			zap.String("file_name", fileName),
			zap.Error(err))
		return nil, err
	}
	ds.ProjectID = projectID
	s.archiveUpload(ctx, ds, fileName, data)

	result, err := s.add(ctx, ds, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("Dataset ingested",
		zap.String("project_id", projectID.String()),
		zap.String("dataset_id", ds.ID),
		zap.Int("rows", ds.RowCount),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("relationships", len(result.Relationships)),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (s *datasetService) IngestRecords(ctx context.Context, projectID uuid.UUID, name string, records []models.Record) (*IngestResult, error) {
	if err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	ds, err := s.ingestor.Ingest(name, records)
	if err != nil {
		return nil, err
	}
	ds.ProjectID = projectID

	result, err := s.add(ctx, ds, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("Dataset ingested from records",
		zap.String("project_id", projectID.String()),
		zap.String("dataset_id", ds.ID),
		zap.Int("rows", ds.RowCount))
	return result, nil
}

func (s *datasetService) Replace(ctx context.Context, projectID uuid.UUID, datasetID, fileName string, data []byte) (*IngestResult, error) {
	if err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	ds, err := s.ingestor.IngestCSV(fileName, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	ds.ProjectID = projectID

	result, err := s.add(ctx, ds, datasetID)
	if err != nil {
		return nil, err
	}
	s.archiveUpload(ctx, ds, fileName, data)

	s.logger.Info("Dataset replaced",
		zap.String("project_id", projectID.String()),
		zap.String("old_dataset_id", datasetID),
		zap.String("dataset_id", ds.ID))
	return result, nil
}

// add stores ds, re-runs detection for every pair that includes ds and then retires
// replaces, if set. Everything happens under the project's write lock. A failure after
// ds is saved rolls the project back to its state before the call.
func (s *datasetService) add(ctx context.Context, ds *models.Dataset, replaces string) (*IngestResult, error) {
	lock := s.locks.For(ds.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	var previous *models.Dataset
	if replaces != "" {
		old, err := s.getDataset(ctx, ds.ProjectID, replaces)
		if err != nil {
			return nil, err
		}
		previous = old
	}

	if err := s.store.Datasets.Save(ctx, ds); err != nil {
		return nil, fmt.Errorf("failed to save dataset: %w", err)
	}

	profile := s.profile(ctx, ds)

	others, err := s.store.Datasets.List(ctx, ds.ProjectID)
	if err != nil {
		return nil, s.rollback(ctx, ds, previous, fmt.Errorf("failed to list datasets: %w", err))
	}

	detected := []models.RelationshipCandidate{}
	for _, other := range others {
		if other.ID == ds.ID || other.ID == replaces {
			continue
		}
		// The earlier upload is the source side of the pair.
		candidates := s.detect(ctx, other, ds)
		if err := s.store.Relationships.ReplaceDetected(ctx, ds.ProjectID, other.ID, ds.ID, candidates); err != nil {
			return nil, s.rollback(ctx, ds, previous, fmt.Errorf("failed to store relationships: %w", err))
		}
		detected = append(detected, candidates...)
	}

	if replaces != "" {
		if err := s.retire(ctx, ds.ProjectID, replaces); err != nil {
			return nil, s.rollback(ctx, ds, previous, err)
		}
	}

	return &IngestResult{
		Dataset:       ds.Summary(),
		Profile:       profile,
		Relationships: detected,
		ReplacedID:    replaces,
	}, nil
}

// rollback undoes a failed add and returns cause. previous is restored if it was
// already deleted. Cleanup failures are logged, not returned.
func (s *datasetService) rollback(ctx context.Context, ds, previous *models.Dataset, cause error) error {
	if err := s.store.Relationships.DeleteTouching(ctx, ds.ProjectID, ds.ID); err != nil {
		s.logger.Warn("Rollback failed to delete relationships", zap.String("dataset_id", ds.ID), zap.Error(err))
	}
	if err := s.store.Datasets.Delete(ctx, ds.ProjectID, ds.ID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Warn("Rollback failed to delete dataset", zap.String("dataset_id", ds.ID), zap.Error(err))
	}
	if err := s.cache.Forget(ctx, ds.ID); err != nil {
		s.logger.Warn("Rollback failed to evict cached profile", zap.String("dataset_id", ds.ID), zap.Error(err))
	}
	if previous != nil {
		if _, err := s.store.Datasets.Get(ctx, previous.ProjectID, previous.ID); errors.Is(err, apperrors.ErrNotFound) {
			if err := s.store.Datasets.Save(ctx, previous); err != nil {
				s.logger.Warn("Rollback failed to restore dataset", zap.String("dataset_id", previous.ID), zap.Error(err))
			}
		}
	}
	s.logger.Error("Dataset add rolled back", zap.String("dataset_id", ds.ID), zap.Error(cause))
	return cause
}

// retire removes a dataset and everything that references it. Caller holds the write lock.
func (s *datasetService) retire(ctx context.Context, projectID uuid.UUID, datasetID string) error {
	if err := s.store.Datasets.Delete(ctx, projectID, datasetID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return &apperrors.DatasetNotFoundError{ID: datasetID}
		}
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	if err := s.store.Relationships.DeleteTouching(ctx, projectID, datasetID); err != nil {
		return fmt.Errorf("failed to delete relationships: %w", err)
	}
	if err := s.cache.Forget(ctx, datasetID); err != nil {
		s.logger.Warn("Failed to evict cached profile", zap.String("dataset_id", datasetID), zap.Error(err))
	}
	return nil
}

// archiveUpload keeps the raw bytes. Failures never fail the upload.
func (s *datasetService) archiveUpload(ctx context.Context, ds *models.Dataset, fileName string, data []byte) {
	key, err := s.archive.Put(ctx, ds.ProjectID, ds.ID, fileName, data)
	if err != nil {
		s.logger.Warn("Failed to archive upload",
			zap.String("dataset_id", ds.ID),
			zap.String("file_name", fileName),
			zap.Error(err))
		return
	}
	if key != "" {
		s.logger.Debug("Archived upload", zap.String("dataset_id", ds.ID), zap.String("key", key))
	}
}

func (s *datasetService) Remove(ctx context.Context, projectID uuid.UUID, datasetID string) error {
	lock := s.locks.For(projectID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.retire(ctx, projectID, datasetID); err != nil {
		return err
	}

	s.logger.Info("Dataset removed",
		zap.String("project_id", projectID.String()),
		zap.String("dataset_id", datasetID))
	return nil
}

// ============================================================================
// Reads
// ============================================================================

func (s *datasetService) List(ctx context.Context, projectID uuid.UUID) ([]models.DatasetSummary, error) {
	if err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	lock := s.locks.For(projectID)
	lock.RLock()
	datasets, err := s.store.Datasets.List(ctx, projectID)
	lock.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}

	out := make([]models.DatasetSummary, len(datasets))
	for i, ds := range datasets {
		out[i] = ds.Summary()
	}
	return out, nil
}

func (s *datasetService) Get(ctx context.Context, projectID uuid.UUID, datasetID string) (*models.Dataset, error) {
	lock := s.locks.For(projectID)
	lock.RLock()
	defer lock.RUnlock()
	return s.getDataset(ctx, projectID, datasetID)
}

func (s *datasetService) Preview(ctx context.Context, projectID uuid.UUID, datasetID string, limit int) (*DatasetPreview, error) {
	ds, err := s.Get(ctx, projectID, datasetID)
	if err != nil {
		return nil, err
	}
	limit = clampRows(limit)
	return &DatasetPreview{
		DatasetID: ds.ID,
		Columns:   ds.ColumnNames(),
		Rows:      ds.Rows(limit),
		TotalRows: ds.RowCount,
	}, nil
}

func (s *datasetService) Profile(ctx context.Context, projectID uuid.UUID, datasetID string) (*models.DatasetProfile, error) {
	ds, err := s.Get(ctx, projectID, datasetID)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, ds), nil
}

// profile consults the cache by dataset identity. Cache failures degrade to recomputation.
func (s *datasetService) profile(ctx context.Context, ds *models.Dataset) *models.DatasetProfile {
	cached, ok, err := s.cache.GetProfile(ctx, ds.ID)
	if err != nil {
		s.logger.Warn("Profile cache read failed", zap.String("dataset_id", ds.ID), zap.Error(err))
	}
	if ok {
		return cached
	}

	start := time.Now()
	profile := s.profiler.Profile(ds)
	s.logger.Debug("Dataset profiled",
		zap.String("dataset_id", ds.ID),
		zap.Float64("quality_score", profile.QualityScore),
		zap.Duration("elapsed", time.Since(start)))

	if err := s.cache.PutProfile(ctx, profile); err != nil {
		s.logger.Warn("Profile cache write failed", zap.String("dataset_id", ds.ID), zap.Error(err))
	}
	return profile
}

// ============================================================================
// Relationships
// ============================================================================

func (s *datasetService) DetectRelationships(ctx context.Context, projectID uuid.UUID, sourceID, targetID string) ([]models.RelationshipCandidate, error) {
	if sourceID == targetID {
		return nil, fmt.Errorf("%w: source and target dataset must differ", apperrors.ErrInvalidRelationship)
	}

	lock := s.locks.For(projectID)
	lock.Lock()
	defer lock.Unlock()

	source, err := s.getDataset(ctx, projectID, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := s.getDataset(ctx, projectID, targetID)
	if err != nil {
		return nil, err
	}

	candidates := s.detect(ctx, source, target)
	if err := s.store.Relationships.ReplaceDetected(ctx, projectID, sourceID, targetID, candidates); err != nil {
		return nil, fmt.Errorf("failed to store relationships: %w", err)
	}
	return candidates, nil
}

// detect consults the cache by ordered pair.
func (s *datasetService) detect(ctx context.Context, source, target *models.Dataset) []models.RelationshipCandidate {
	cached, ok, err := s.cache.GetDetection(ctx, source.ID, target.ID)
	if err != nil {
		s.logger.Warn("Detection cache read failed",
			zap.String("source_dataset_id", source.ID),
			zap.String("target_dataset_id", target.ID),
			zap.Error(err))
	}
	if ok {
		return cached
	}

	candidates := s.detector.Detect(source, target)
	s.logger.Debug("Relationships detected",
		zap.String("source_dataset_id", source.ID),
		zap.String("target_dataset_id", target.ID),
		zap.Int("candidates", len(candidates)))

	if err := s.cache.PutDetection(ctx, source.ID, target.ID, candidates); err != nil {
		s.logger.Warn("Detection cache write failed", zap.Error(err))
	}
	return candidates
}

func (s *datasetService) DeclareRelationship(ctx context.Context, projectID uuid.UUID, req DeclareRelationshipRequest) (*models.RelationshipCandidate, error) {
	lock := s.locks.For(projectID)
	lock.Lock()
	defer lock.Unlock()

	source, err := s.getDataset(ctx, projectID, req.SourceDatasetID)
	if err != nil {
		return nil, err
	}
	target, err := s.getDataset(ctx, projectID, req.TargetDatasetID)
	if err != nil {
		return nil, err
	}

	candidate, err := s.detector.Declare(source, req.SourceColumn, target, req.TargetColumn)
	if err != nil {
		return nil, err
	}
	candidate.CreatedAt = time.Now().UTC()

	if err := s.store.Relationships.SaveDeclared(ctx, projectID, candidate); err != nil {
		return nil, fmt.Errorf("failed to save relationship: %w", err)
	}

	s.logger.Info("Relationship declared",
		zap.String("project_id", projectID.String()),
		zap.String("source", req.SourceDatasetID+"."+req.SourceColumn),
		zap.String("target", req.TargetDatasetID+"."+req.TargetColumn),
		zap.Int("matching", candidate.MatchingCount))
	return candidate, nil
}

func (s *datasetService) ListRelationships(ctx context.Context, projectID uuid.UUID) ([]models.RelationshipCandidate, error) {
	if err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	lock := s.locks.For(projectID)
	lock.RLock()
	rels, err := s.store.Relationships.List(ctx, projectID)
	lock.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}

	SortRelationships(rels)
	return rels, nil
}

// ============================================================================
// Joins
// ============================================================================

func (s *datasetService) ResolveJoin(ctx context.Context, projectID uuid.UUID, datasetIDs []string) (*models.Dataset, error) {
	if len(datasetIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one dataset id is required", apperrors.ErrInvalidInput)
	}
	if err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	datasets, rels, err := s.snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	joined, err := s.resolver.Resolve(datasetIDs, datasets, rels)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Join resolved",
		zap.String("project_id", projectID.String()),
		zap.Strings("dataset_ids", datasetIDs),
		zap.Int("rows", joined.RowCount),
		zap.Int("columns", len(joined.Columns)),
		zap.Duration("elapsed", time.Since(start)))
	return joined, nil
}

// snapshot copies the project's dataset pointers and relationships under the read lock.
// Datasets are immutable, so the join runs without holding the lock.
func (s *datasetService) snapshot(ctx context.Context, projectID uuid.UUID) (map[string]*models.Dataset, []models.RelationshipCandidate, error) {
	lock := s.locks.For(projectID)
	lock.RLock()
	defer lock.RUnlock()

	list, err := s.store.Datasets.List(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	rels, err := s.store.Relationships.List(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list relationships: %w", err)
	}

	datasets := make(map[string]*models.Dataset, len(list))
	for _, ds := range list {
		datasets[ds.ID] = ds
	}
	return datasets, rels, nil
}

// ============================================================================
// Helpers
// ============================================================================

func (s *datasetService) requireProject(ctx context.Context, projectID uuid.UUID) error {
	if _, err := s.store.Projects.Get(ctx, projectID); err != nil {
		return projectLookupError(err)
	}
	return nil
}

func (s *datasetService) getDataset(ctx context.Context, projectID uuid.UUID, datasetID string) (*models.Dataset, error) {
	ds, err := s.store.Datasets.Get(ctx, projectID, datasetID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, &apperrors.DatasetNotFoundError{ID: datasetID}
		}
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return ds, nil
}

func clampRows(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPreviewRows
	case limit > MaxPreviewRows:
		return MaxPreviewRows
	}
	return limit
}
