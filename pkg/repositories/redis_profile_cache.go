package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

const redisKeyPrefix = "lemur:"

type redisProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProfileCache creates a ProfileCache stored in Redis. Entries expire after ttl
// (0 means never). Each dataset keeps an index set of the detection keys that mention it
// so Forget can find them.
func NewRedisProfileCache(client *redis.Client, ttl time.Duration) ProfileCache {
	return &redisProfileCache{client: client, ttl: ttl}
}

var _ ProfileCache = (*redisProfileCache)(nil)

func profileKey(datasetID string) string {
	return redisKeyPrefix + "profile:" + datasetID
}

func detectionCacheKey(sourceID, targetID string) string {
	return redisKeyPrefix + "detect:" + sourceID + ":" + targetID
}

func detectionIndexKey(datasetID string) string {
	return redisKeyPrefix + "detect-index:" + datasetID
}

func (c *redisProfileCache) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache key %s: %w", key, err)
	}
	return true, nil
}

func (c *redisProfileCache) GetProfile(ctx context.Context, datasetID string) (*models.DatasetProfile, bool, error) {
	var p models.DatasetProfile
	ok, err := c.getJSON(ctx, profileKey(datasetID), &p)
	if !ok || err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

func (c *redisProfileCache) PutProfile(ctx context.Context, profile *models.DatasetProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := c.client.Set(ctx, profileKey(profile.DatasetID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache profile: %w", err)
	}
	return nil
}

func (c *redisProfileCache) GetDetection(ctx context.Context, sourceID, targetID string) ([]models.RelationshipCandidate, bool, error) {
	var cands []models.RelationshipCandidate
	ok, err := c.getJSON(ctx, detectionCacheKey(sourceID, targetID), &cands)
	if !ok || err != nil {
		return nil, false, err
	}
	return cands, true, nil
}

func (c *redisProfileCache) PutDetection(ctx context.Context, sourceID, targetID string, candidates []models.RelationshipCandidate) error {
	if candidates == nil {
		candidates = []models.RelationshipCandidate{}
	}
	data, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Errorf("failed to encode detection result: %w", err)
	}

	key := detectionCacheKey(sourceID, targetID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, c.ttl)
		for _, id := range []string{sourceID, targetID} {
			pipe.SAdd(ctx, detectionIndexKey(id), key)
			if c.ttl > 0 {
				pipe.Expire(ctx, detectionIndexKey(id), c.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache detection result: %w", err)
	}
	return nil
}

func (c *redisProfileCache) Forget(ctx context.Context, datasetID string) error {
	indexKey := detectionIndexKey(datasetID)
	keys, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read detection index: %w", err)
	}

	keys = append(keys, profileKey(datasetID), indexKey)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to evict cache entries: %w", err)
	}
	return nil
}
