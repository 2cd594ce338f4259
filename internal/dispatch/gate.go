// Package dispatch serializes concurrent requests per user and owns the
// typing-indicator lifecycle.
package dispatch

import "sync"

// Gate guarantees at most one in-flight generation per user. Locks are
// created lazily on first use and live for the process lifetime; requests
// from different users never block each other.
type Gate struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewGate() *Gate {
	return &Gate{locks: make(map[int64]*sync.Mutex)}
}

// WithUserLock runs fn while holding the user's lock. The lock is released
// on every exit path, including panics.
func (g *Gate) WithUserLock(userID int64, fn func()) {
	l := g.userLock(userID)
	l.Lock()
	defer l.Unlock()
	fn()
}

func (g *Gate) userLock(userID int64) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[userID] = l
	}
	return l
}
