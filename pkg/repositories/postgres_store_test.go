//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/database"
	"github.com/lemur-data/lemur-engine/pkg/testhelpers"
)

func TestPostgresStore(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	runStoreContract(t, NewPostgresStore(engineDB.DB))
}

func TestPostgresStore_RejectsScopeForAnotherProject(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	store := NewPostgresStore(engineDB.DB)
	ctx := context.Background()

	p1 := testProject("scope-a", 0)
	p2 := testProject("scope-b", 0)
	require.NoError(t, store.Projects.Create(ctx, p1))
	require.NoError(t, store.Projects.Create(ctx, p2))
	t.Cleanup(func() {
		_ = store.Projects.Delete(ctx, p1.ID)
		_ = store.Projects.Delete(ctx, p2.ID)
	})
	require.NoError(t, store.Datasets.Save(ctx, testDataset(p1.ID, "secret", 0)))

	scope, err := engineDB.DB.WithTenant(ctx, p2.ID)
	require.NoError(t, err)
	defer scope.Close()

	scopedCtx := database.SetTenantScope(ctx, scope)
	_, err = store.Datasets.Get(scopedCtx, p1.ID, "secret")
	assert.Error(t, err)

	// The request-scoped connection is used when it matches.
	_, err = store.Datasets.Get(scopedCtx, p2.ID, "secret")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
