package tracker

import (
	"context"
	"sync"
)

// DownloadGuard holds a per-job lock so a second download for the same job
// is dropped while the first is still running.
type DownloadGuard struct {
	mu    sync.Mutex
	locks map[string]bool
}

func NewDownloadGuard() *DownloadGuard {
	return &DownloadGuard{locks: make(map[string]bool)}
}

// Do runs fn while holding the lock for id. If the lock is already held it
// returns (false, nil) without calling fn. The lock is released however fn
// returns, including by panic.
func (g *DownloadGuard) Do(ctx context.Context, id string, fn func(ctx context.Context) error) (bool, error) {
	g.mu.Lock()
	if g.locks[id] {
		g.mu.Unlock()
		return false, nil
	}
	g.locks[id] = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.locks, id)
		g.mu.Unlock()
	}()
	return true, fn(ctx)
}

func (g *DownloadGuard) InFlight(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locks[id]
}
