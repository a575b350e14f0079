package services

import (
	"sync"

	"github.com/google/uuid"
)

// ProjectLocks hands out one RWMutex per project. Mutations of a project's datasets
// and relationships hold the write lock; readers hold the read lock only while
// snapshotting immutable dataset values. Entries are never removed, so every caller
// of a project id, before or after the project is deleted, shares one mutex.
type ProjectLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.RWMutex
}

// NewProjectLocks creates an empty lock table.
func NewProjectLocks() *ProjectLocks {
	return &ProjectLocks{locks: make(map[uuid.UUID]*sync.RWMutex)}
}

// For returns the lock of projectID, creating it on first use.
func (l *ProjectLocks) For(projectID uuid.UUID) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[projectID]
	if !ok {
		lock = &sync.RWMutex{}
		l.locks[projectID] = lock
	}
	return lock
}
