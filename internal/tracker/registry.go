package tracker

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/internhub/reportwatch/internal/metrics"
)

const persistTimeout = 5 * time.Second

// SnapshotRepository persists the active-job list. Implementations decide
// the medium (SQLite, memory, a file).
type SnapshotRepository interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, ids []string) error
}

// Registry is the ordered set of job ids currently being watched. Every
// mutation persists a full snapshot; persistence is best-effort.
type Registry struct {
	mu      sync.Mutex
	ids     []string
	version uint64

	repo   SnapshotRepository
	saveMu sync.Mutex
	saved  uint64
}

// NewRegistry rehydrates the registry from repo. A failed or corrupt load
// is logged and the registry starts empty.
func NewRegistry(ctx context.Context, repo SnapshotRepository) *Registry {
	r := &Registry{repo: repo}
	if repo == nil {
		return r
	}

	ids, err := repo.Load(ctx)
	if err != nil {
		slog.Warn("registry: load snapshot", "error", err)
		return r
	}
	for _, id := range ids {
		if id != "" && !slices.Contains(r.ids, id) {
			r.ids = append(r.ids, id)
		}
	}
	metrics.SetActiveJobs(len(r.ids))
	return r
}

// Add inserts id if absent and persists. It reports whether id was added.
func (r *Registry) Add(id string) bool {
	r.mu.Lock()
	if slices.Contains(r.ids, id) {
		r.mu.Unlock()
		return false
	}
	r.ids = append(r.ids, id)
	version, snap := r.bumpLocked()
	r.mu.Unlock()

	r.persist(version, snap)
	return true
}

// Remove deletes id if present and persists. It reports whether id was removed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	i := slices.Index(r.ids, id)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	r.ids = slices.Delete(r.ids, i, i+1)
	version, snap := r.bumpLocked()
	r.mu.Unlock()

	r.persist(version, snap)
	return true
}

// Snapshot returns the ids in insertion order.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.ids)
}

func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.ids, id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func (r *Registry) bumpLocked() (uint64, []string) {
	r.version++
	metrics.SetActiveJobs(len(r.ids))
	return r.version, slices.Clone(r.ids)
}

// persist writes snap unless a newer snapshot has already been written.
func (r *Registry) persist(version uint64, snap []string) {
	if r.repo == nil {
		return
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	if version <= r.saved {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.repo.Save(ctx, snap); err != nil {
		slog.Warn("registry: save snapshot", "ids", len(snap), "error", err)
		return
	}
	r.saved = version
}
