package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/models"
	"github.com/lemur-data/lemur-engine/pkg/repositories"
	"github.com/lemur-data/lemur-engine/pkg/storage"
)

// mustRecords decodes a JSON array of objects into ordered records.
func mustRecords(t *testing.T, data string) []models.Record {
	t.Helper()
	var records []models.Record
	require.NoError(t, json.Unmarshal([]byte(data), &records))
	return records
}

// newTestIngestor returns an ingestor with a fixed clock that hands out the given ids in order.
func newTestIngestor(ids ...string) *Ingestor {
	in := NewIngestor(NewColumnAnalyzer(DefaultAnalysisPolicy()))
	in.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	next := 0
	in.newID = func() string {
		id := ids[next%len(ids)]
		next++
		return id
	}
	return in
}

// mustDataset ingests JSON records as a dataset with the given id and name.
func mustDataset(t *testing.T, id, name, data string) *models.Dataset {
	t.Helper()
	ds, err := newTestIngestor(id).Ingest(name, mustRecords(t, data))
	require.NoError(t, err)
	return ds
}

func numbers(xs ...float64) []models.Value {
	out := make([]models.Value, len(xs))
	for i, x := range xs {
		out[i] = models.NumberValue(x)
	}
	return out
}

func strs(xs ...string) []models.Value {
	out := make([]models.Value, len(xs))
	for i, x := range xs {
		out[i] = models.StringValue(x)
	}
	return out
}

func datasetMap(datasets ...*models.Dataset) map[string]*models.Dataset {
	m := make(map[string]*models.Dataset, len(datasets))
	for _, ds := range datasets {
		m[ds.ID] = ds
	}
	return m
}

// testServices wires the project and dataset services over in-memory backends.
type testServices struct {
	store    *repositories.Store
	cache    repositories.ProfileCache
	archive  *recordingArchive
	projects ProjectService
	datasets DatasetService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	store := repositories.NewMemoryStore()
	cache := repositories.NewMemoryProfileCache()
	archive := &recordingArchive{}
	locks := NewProjectLocks()
	return &testServices{
		store:    store,
		cache:    cache,
		archive:  archive,
		projects: NewProjectService(store, cache, locks, zap.NewNop()),
		datasets: NewDatasetService(store, cache, archive, locks, DefaultAnalysisPolicy(), zap.NewNop()),
	}
}

func (s *testServices) mustProject(t *testing.T, name string) *models.Project {
	t.Helper()
	project, err := s.projects.Create(context.Background(), name)
	require.NoError(t, err)
	return project
}

func (s *testServices) mustIngest(t *testing.T, projectID uuid.UUID, name, data string) *IngestResult {
	t.Helper()
	result, err := s.datasets.IngestRecords(context.Background(), projectID, name, mustRecords(t, data))
	require.NoError(t, err)
	return result
}

// recordingArchive remembers every Put. Err, when set, fails every call.
type recordingArchive struct {
	mu   sync.Mutex
	Keys []string
	Err  error
}

func (a *recordingArchive) Put(ctx context.Context, projectID uuid.UUID, datasetID, fileName string, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return "", a.Err
	}
	key := storage.ObjectKey(projectID, datasetID, fileName)
	a.Keys = append(a.Keys, key)
	return key, nil
}

func (a *recordingArchive) Delete(ctx context.Context, key string) error {
	return a.Err
}

// failingCache errors on every call so tests can check the services fall back to recomputation.
type failingCache struct{}

var errCacheDown = errors.New("cache down")

func (failingCache) GetProfile(ctx context.Context, datasetID string) (*models.DatasetProfile, bool, error) {
	return nil, false, errCacheDown
}

func (failingCache) PutProfile(ctx context.Context, profile *models.DatasetProfile) error {
	return errCacheDown
}

func (failingCache) GetDetection(ctx context.Context, sourceID, targetID string) ([]models.RelationshipCandidate, bool, error) {
	return nil, false, errCacheDown
}

func (failingCache) PutDetection(ctx context.Context, sourceID, targetID string, candidates []models.RelationshipCandidate) error {
	return errCacheDown
}

func (failingCache) Forget(ctx context.Context, datasetID string) error {
	return errCacheDown
}
