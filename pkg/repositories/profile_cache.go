package repositories

import (
	"context"
	"sync"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

// ProfileCache memoizes derived analysis results keyed by dataset identity.
// Datasets are immutable, so an entry stays valid until the dataset is removed.
type ProfileCache interface {
	GetProfile(ctx context.Context, datasetID string) (*models.DatasetProfile, bool, error)
	PutProfile(ctx context.Context, profile *models.DatasetProfile) error

	// Detection results are keyed by the ordered pair (sourceID, targetID).
	GetDetection(ctx context.Context, sourceID, targetID string) ([]models.RelationshipCandidate, bool, error)
	PutDetection(ctx context.Context, sourceID, targetID string, candidates []models.RelationshipCandidate) error

	// Forget drops the profile and every detection result involving datasetID.
	Forget(ctx context.Context, datasetID string) error
}

type detectionKey struct {
	source, target string
}

type memoryProfileCache struct {
	mu         sync.RWMutex
	profiles   map[string]*models.DatasetProfile
	detections map[detectionKey][]models.RelationshipCandidate
}

// NewMemoryProfileCache creates an unbounded in-process cache.
func NewMemoryProfileCache() ProfileCache {
	return &memoryProfileCache{
		profiles:   make(map[string]*models.DatasetProfile),
		detections: make(map[detectionKey][]models.RelationshipCandidate),
	}
}

var _ ProfileCache = (*memoryProfileCache)(nil)

func (c *memoryProfileCache) GetProfile(ctx context.Context, datasetID string) (*models.DatasetProfile, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.profiles[datasetID]
	return p, ok, nil
}

func (c *memoryProfileCache) PutProfile(ctx context.Context, profile *models.DatasetProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.profiles[profile.DatasetID] = profile
	return nil
}

func (c *memoryProfileCache) GetDetection(ctx context.Context, sourceID, targetID string) ([]models.RelationshipCandidate, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cands, ok := c.detections[detectionKey{sourceID, targetID}]
	return cands, ok, nil
}

func (c *memoryProfileCache) PutDetection(ctx context.Context, sourceID, targetID string, candidates []models.RelationshipCandidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.detections[detectionKey{sourceID, targetID}] = candidates
	return nil
}

func (c *memoryProfileCache) Forget(ctx context.Context, datasetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.profiles, datasetID)
	for k := range c.detections {
		if k.source == datasetID || k.target == datasetID {
			delete(c.detections, k)
		}
	}
	return nil
}
