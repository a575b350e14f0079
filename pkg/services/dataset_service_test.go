package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/models"
	"github.com/lemur-data/lemur-engine/pkg/repositories"
)

const (
	customersJSON = `[{"id": 1, "name": "x"}, {"id": 2, "name": "y"}]`
	paymentsJSON  = `[{"id": 1, "amt": 10}, {"id": 3, "amt": 20}]`
)

func TestDatasetService_Upload(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "uploads")

	result, err := svc.datasets.Upload(ctx, project.ID, "customers.csv", []byte("id,name\n1,x\n2,y\n"))
	require.NoError(t, err)

	assert.Equal(t, "customers.csv", result.Dataset.DisplayName)
	assert.Equal(t, 2, result.Dataset.RowCount)
	assert.Equal(t, []string{"id", "name"}, result.Dataset.Columns)
	require.NotNil(t, result.Profile)
	assert.Equal(t, result.Dataset.ID, result.Profile.DatasetID)
	assert.Empty(t, result.Relationships)

	require.Len(t, svc.archive.Keys, 1)
	assert.Contains(t, svc.archive.Keys[0], result.Dataset.ID)

	ds, err := svc.datasets.Get(ctx, project.ID, result.Dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, project.ID, ds.ProjectID)
}

func TestDatasetService_Upload_Malformed(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "uploads")

	_, err := svc.datasets.Upload(ctx, project.ID, "bad.csv", []byte("id,name\n1,x,extra\n"))

	var malformed *apperrors.MalformedTableError
	require.True(t, errors.As(err, &malformed), "expected MalformedTableError, got %v", err)
	assert.Equal(t, 0, malformed.Row)
	assert.Empty(t, svc.archive.Keys, "rejected uploads are not archived")

	list, err := svc.datasets.List(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDatasetService_Upload_UnknownProject(t *testing.T) {
	svc := newTestServices(t)

	_, err := svc.datasets.Upload(context.Background(), uuid.New(), "a.csv", []byte("id\n1\n"))
	assert.ErrorIs(t, err, apperrors.ErrProjectNotFound)
}

func TestDatasetService_Upload_ArchiveFailureIsNotFatal(t *testing.T) {
	svc := newTestServices(t)
	svc.archive.Err = errors.New("bucket unavailable")
	project := svc.mustProject(t, "uploads")

	result, err := svc.datasets.Upload(context.Background(), project.ID, "a.csv", []byte("id\n1\n2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Dataset.RowCount)
}

func TestDatasetService_IngestDetectsRelationshipsWithEarlierDatasets(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "shop")

	customers := svc.mustIngest(t, project.ID, "customers", customersJSON)
	payments := svc.mustIngest(t, project.ID, "payments", paymentsJSON)

	require.Len(t, payments.Relationships, 1)
	rel := payments.Relationships[0]
	assert.Equal(t, customers.Dataset.ID, rel.SourceDatasetID)
	assert.Equal(t, payments.Dataset.ID, rel.TargetDatasetID)
	assert.Equal(t, "id", rel.SourceColumn)
	assert.Equal(t, 1, rel.MatchingCount)

	rels, err := svc.datasets.ListRelationships(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, rel.ID, rels[0].ID)
}

func TestDatasetService_Preview(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "preview")
	result := svc.mustIngest(t, project.ID, "three", `[{"n": 1}, {"n": 2}, {"n": 3}]`)

	preview, err := svc.datasets.Preview(ctx, project.ID, result.Dataset.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, preview.Columns)
	assert.Len(t, preview.Rows, 2)
	assert.Equal(t, 3, preview.TotalRows)

	preview, err = svc.datasets.Preview(ctx, project.ID, result.Dataset.ID, 0)
	require.NoError(t, err)
	assert.Len(t, preview.Rows, 3)

	_, err = svc.datasets.Preview(ctx, project.ID, "missing", 10)
	var notFound *apperrors.DatasetNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.ID)
}

func TestClampRows(t *testing.T) {
	assert.Equal(t, DefaultPreviewRows, clampRows(0))
	assert.Equal(t, DefaultPreviewRows, clampRows(-5))
	assert.Equal(t, 25, clampRows(25))
	assert.Equal(t, MaxPreviewRows, clampRows(MaxPreviewRows+1))
}

func TestDatasetService_Profile_UsesCache(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "profiles")
	result := svc.mustIngest(t, project.ID, "customers", customersJSON)

	first, err := svc.datasets.Profile(ctx, project.ID, result.Dataset.ID)
	require.NoError(t, err)
	second, err := svc.datasets.Profile(ctx, project.ID, result.Dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, first.RowCount)
}

func TestDatasetService_CacheFailuresFallBackToComputation(t *testing.T) {
	store := repositories.NewMemoryStore()
	datasets := NewDatasetService(store, failingCache{}, &recordingArchive{}, NewProjectLocks(), DefaultAnalysisPolicy(), zap.NewNop())
	projects := NewProjectService(store, failingCache{}, NewProjectLocks(), zap.NewNop())
	ctx := context.Background()

	project, err := projects.Create(ctx, "flaky cache")
	require.NoError(t, err)

	_, err = datasets.IngestRecords(ctx, project.ID, "customers", mustRecords(t, customersJSON))
	require.NoError(t, err)
	result, err := datasets.IngestRecords(ctx, project.ID, "payments", mustRecords(t, paymentsJSON))
	require.NoError(t, err)

	assert.NotNil(t, result.Profile)
	assert.Len(t, result.Relationships, 1)
}

func TestDatasetService_DetectRelationships(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "detect")
	customers := svc.mustIngest(t, project.ID, "customers", customersJSON)
	payments := svc.mustIngest(t, project.ID, "payments", paymentsJSON)

	// Reversed orientation supersedes the pair detected at ingest.
	candidates, err := svc.datasets.DetectRelationships(ctx, project.ID, payments.Dataset.ID, customers.Dataset.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, payments.Dataset.ID, candidates[0].SourceDatasetID)

	rels, err := svc.datasets.ListRelationships(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, payments.Dataset.ID, rels[0].SourceDatasetID)

	_, err = svc.datasets.DetectRelationships(ctx, project.ID, customers.Dataset.ID, customers.Dataset.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRelationship)

	_, err = svc.datasets.DetectRelationships(ctx, project.ID, customers.Dataset.ID, "nope")
	assert.ErrorIs(t, err, apperrors.ErrDatasetNotFound)
}

func TestDatasetService_DeclareRelationship(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "declare")
	customers := svc.mustIngest(t, project.ID, "customers", customersJSON)
	payments := svc.mustIngest(t, project.ID, "payments", paymentsJSON)

	declared, err := svc.datasets.DeclareRelationship(ctx, project.ID, DeclareRelationshipRequest{
		SourceDatasetID: customers.Dataset.ID,
		SourceColumn:    "id",
		TargetDatasetID: payments.Dataset.ID,
		TargetColumn:    "id",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceUser, declared.Provenance)
	assert.Equal(t, 1.0, declared.Confidence)

	rels, err := svc.datasets.ListRelationships(ctx, project.ID)
	require.NoError(t, err)
	require.NotEmpty(t, rels)
	assert.True(t, rels[0].IsUserDeclared(), "declarations sort ahead of detected candidates")

	_, err = svc.datasets.DeclareRelationship(ctx, project.ID, DeclareRelationshipRequest{
		SourceDatasetID: customers.Dataset.ID,
		SourceColumn:    "missing",
		TargetDatasetID: payments.Dataset.ID,
		TargetColumn:    "id",
	})
	var colErr *apperrors.ColumnNotFoundError
	require.True(t, errors.As(err, &colErr))
	assert.Equal(t, "missing", colErr.Column)

	after, err := svc.datasets.ListRelationships(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, rels, after, "a failed declaration leaves the set unchanged")
}

func TestDatasetService_Replace(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "replace")
	customers := svc.mustIngest(t, project.ID, "customers", customersJSON)
	payments := svc.mustIngest(t, project.ID, "payments", paymentsJSON)

	_, err := svc.datasets.DeclareRelationship(ctx, project.ID, DeclareRelationshipRequest{
		SourceDatasetID: customers.Dataset.ID, SourceColumn: "id",
		TargetDatasetID: payments.Dataset.ID, TargetColumn: "id",
	})
	require.NoError(t, err)

	result, err := svc.datasets.Replace(ctx, project.ID, customers.Dataset.ID, "customers_v2.csv", []byte("id,name\n1,x\n3,z\n"))
	require.NoError(t, err)
	assert.Equal(t, customers.Dataset.ID, result.ReplacedID)
	assert.NotEqual(t, customers.Dataset.ID, result.Dataset.ID)

	_, err = svc.datasets.Get(ctx, project.ID, customers.Dataset.ID)
	assert.ErrorIs(t, err, apperrors.ErrDatasetNotFound)

	rels, err := svc.datasets.ListRelationships(ctx, project.ID)
	require.NoError(t, err)
	for _, r := range rels {
		assert.False(t, r.Touches(customers.Dataset.ID), "relationship %s still references the old dataset", r.ID)
		assert.False(t, r.IsUserDeclared())
	}
	require.Len(t, rels, 1)
	assert.Equal(t, 2, rels[0].MatchingCount)

	_, err = svc.datasets.Replace(ctx, project.ID, "missing", "x.csv", []byte("id\n1\n"))
	assert.ErrorIs(t, err, apperrors.ErrDatasetNotFound)
}

// failingRelationships wraps a repository so writes can be made to fail.
type failingRelationships struct {
	repositories.RelationshipRepository
	replaceErr error
	deleteErr  error
}

func (r *failingRelationships) ReplaceDetected(ctx context.Context, projectID uuid.UUID, a, b string, candidates []models.RelationshipCandidate) error {
	if r.replaceErr != nil {
		return r.replaceErr
	}
	return r.RelationshipRepository.ReplaceDetected(ctx, projectID, a, b, candidates)
}

func (r *failingRelationships) DeleteTouching(ctx context.Context, projectID uuid.UUID, datasetID string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.RelationshipRepository.DeleteTouching(ctx, projectID, datasetID)
}

func datasetIDs(t *testing.T, svc *testServices, projectID uuid.UUID) []string {
	t.Helper()
	list, err := svc.datasets.List(context.Background(), projectID)
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, d := range list {
		ids = append(ids, d.ID)
	}
	return ids
}

func TestDatasetService_IngestRollsBackWhenRelationshipsFail(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "rollback")
	customers := svc.mustIngest(t, project.ID, "customers", customersJSON)

	storeErr := errors.New("relationships unavailable")
	svc.store.Relationships = &failingRelationships{RelationshipRepository: svc.store.Relationships, replaceErr: storeErr}

	_, err := svc.datasets.IngestRecords(ctx, project.ID, "payments", mustRecords(t, paymentsJSON))
	require.ErrorIs(t, err, storeErr)

	assert.Equal(t, []string{customers.Dataset.ID}, datasetIDs(t, svc, project.ID))
}

func TestDatasetService_ReplaceRollsBackWhenRelationshipsFail(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "replace rollback")
	customers := svc.mustIngest(t, project.ID, "customers", customersJSON)
	payments := svc.mustIngest(t, project.ID, "payments", paymentsJSON)
	_, err := svc.datasets.DeclareRelationship(ctx, project.ID, DeclareRelationshipRequest{
		SourceDatasetID: customers.Dataset.ID, SourceColumn: "id",
		TargetDatasetID: payments.Dataset.ID, TargetColumn: "id",
	})
	require.NoError(t, err)

	before, err := svc.datasets.ListRelationships(ctx, project.ID)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	storeErr := errors.New("relationships unavailable")
	svc.store.Relationships = &failingRelationships{RelationshipRepository: svc.store.Relationships, replaceErr: storeErr}

	_, err = svc.datasets.Replace(ctx, project.ID, customers.Dataset.ID, "customers_v2.csv", []byte("id,name\n1,x\n3,z\n"))
	require.ErrorIs(t, err, storeErr)

	assert.ElementsMatch(t, []string{customers.Dataset.ID, payments.Dataset.ID}, datasetIDs(t, svc, project.ID))
	_, err = svc.datasets.Get(ctx, project.ID, customers.Dataset.ID)
	assert.NoError(t, err)

	after, err := svc.datasets.ListRelationships(ctx, project.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, before, after)
}

func TestDatasetService_ReplaceRestoresOldVersionWhenRetireFails(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "retire rollback")
	customers := svc.mustIngest(t, project.ID, "customers", customersJSON)

	storeErr := errors.New("relationships unavailable")
	svc.store.Relationships = &failingRelationships{RelationshipRepository: svc.store.Relationships, deleteErr: storeErr}

	_, err := svc.datasets.Replace(ctx, project.ID, customers.Dataset.ID, "customers_v2.csv", []byte("id,name\n1,x\n"))
	require.ErrorIs(t, err, storeErr)

	assert.Equal(t, []string{customers.Dataset.ID}, datasetIDs(t, svc, project.ID))
}

func TestDatasetService_Remove(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "remove")
	customers := svc.mustIngest(t, project.ID, "customers", customersJSON)
	svc.mustIngest(t, project.ID, "payments", paymentsJSON)

	require.NoError(t, svc.datasets.Remove(ctx, project.ID, customers.Dataset.ID))

	rels, err := svc.datasets.ListRelationships(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)

	_, cached, err := svc.cache.GetProfile(ctx, customers.Dataset.ID)
	require.NoError(t, err)
	assert.False(t, cached)

	assert.ErrorIs(t, svc.datasets.Remove(ctx, project.ID, customers.Dataset.ID), apperrors.ErrDatasetNotFound)
}

func TestDatasetService_ResolveJoin(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "joins")
	customers := svc.mustIngest(t, project.ID, "customers", customersJSON)
	payments := svc.mustIngest(t, project.ID, "payments", paymentsJSON)

	joined, err := svc.datasets.ResolveJoin(ctx, project.ID, []string{customers.Dataset.ID, payments.Dataset.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, joined.RowCount)
	require.NotNil(t, joined.Trace)
	assert.Equal(t, min(customers.Dataset.ID, payments.Dataset.ID), joined.Trace.AnchorDatasetID)
	assert.Len(t, joined.Trace.Steps, 1)

	list, err := svc.datasets.List(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2, "join results are not stored")
}

func TestDatasetService_ResolveJoin_Errors(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	project := svc.mustProject(t, "joins")
	customers := svc.mustIngest(t, project.ID, "customers", customersJSON)
	other := svc.mustIngest(t, project.ID, "weather", `[{"city": "Oslo", "temp": 3}, {"city": "Rome", "temp": 17}]`)

	_, err := svc.datasets.ResolveJoin(ctx, project.ID, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.datasets.ResolveJoin(ctx, project.ID, []string{customers.Dataset.ID, other.Dataset.ID})
	var disconnected *apperrors.DisconnectedDatasetsError
	require.True(t, errors.As(err, &disconnected), "expected DisconnectedDatasetsError, got %v", err)
	// Neither dataset has an edge, so the anchor is stranded too.
	assert.ElementsMatch(t, []string{customers.Dataset.ID, other.Dataset.ID}, disconnected.Unreachable)

	_, err = svc.datasets.ResolveJoin(ctx, project.ID, []string{"missing"})
	assert.ErrorIs(t, err, apperrors.ErrDatasetNotFound)
}
