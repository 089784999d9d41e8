package budget

import "sync"

// InitGuard makes a one-time bootstrap action run at most once per process
// even when triggered re-entrantly. The holder keeps the guard on success
// and releases it on failure so a later trigger can retry.
type InitGuard struct {
	mu   sync.Mutex
	held bool
}

// TryAcquire claims the guard. It returns false when the bootstrap already
// ran (or is running) in this process.
func (g *InitGuard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return false
	}
	g.held = true
	return true
}

// Release returns the guard so the bootstrap can be attempted again.
func (g *InitGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
}
