package service

import "sync"

// InflightGuard tracks callbacks currently being processed so that a
// duplicate delivery for the same testcase is rejected instead of queued.
// Scope is process-local; concurrent updates from other instances are
// serialized by the row lock inside the ingest transaction.
type InflightGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewInflightGuard creates an empty guard.
func NewInflightGuard() *InflightGuard {
	return &InflightGuard{
		active: make(map[string]struct{}),
	}
}

// TryAcquire marks the key as in flight. It returns false when the key is
// already held, in which case the caller must not call Release.
func (g *InflightGuard) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.active[key]; held {
		return false
	}
	g.active[key] = struct{}{}
	return true
}

// Release clears the key. Safe to call for a key that is not held.
func (g *InflightGuard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}
