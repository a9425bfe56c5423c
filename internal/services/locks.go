package services

import (
	"sync"

	"github.com/google/uuid"
)

// datasetLocks serializes mutating operations per dataset. The core's
// semantics assume single-writer execution per dataset; the HTTP server is
// multi-threaded, so each dataset's state is a critical section.
type datasetLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newDatasetLocks() *datasetLocks {
	return &datasetLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// lock acquires the dataset's mutex and returns the unlock function.
func (l *datasetLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
