package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/repositories"
)

func TestProjectLocks_SameLockPerProject(t *testing.T) {
	locks := NewProjectLocks()
	a, b := uuid.New(), uuid.New()

	assert.Same(t, locks.For(a), locks.For(a))
	assert.NotSame(t, locks.For(a), locks.For(b))
}

func TestProjectLocks_LockSurvivesProjectDelete(t *testing.T) {
	ctx := context.Background()
	locks := NewProjectLocks()
	projects := NewProjectService(repositories.NewMemoryStore(), repositories.NewMemoryProfileCache(), locks, zap.NewNop())

	project, err := projects.Create(ctx, "short lived")
	require.NoError(t, err)

	held := locks.For(project.ID)
	require.NoError(t, projects.Delete(ctx, project.ID))

	// A caller that queued on the lock during Delete and one arriving afterwards
	// must contend on the same mutex.
	assert.Same(t, held, locks.For(project.ID))
	held.RLock()
	assert.False(t, locks.For(project.ID).TryLock())
	held.RUnlock()
}
