package application

import "sync"

// LineLocks serializes operations per stock line key. Mutexes are created
// on first use and kept for the process lifetime; the key space is bounded
// by banks x groups x components.
type LineLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLineLocks creates an empty lock set
func NewLineLocks() *LineLocks {
	return &LineLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it if needed, and returns the
// matching unlock function.
func (k *LineLocks) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
