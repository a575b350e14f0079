//go:build integration

package repositories

import (
	"testing"
	"time"

	"github.com/lemur-data/lemur-engine/pkg/testhelpers"
)

func TestRedisProfileCache(t *testing.T) {
	client := testhelpers.GetTestRedis(t)
	runProfileCacheContract(t, NewRedisProfileCache(client, time.Minute))
}
