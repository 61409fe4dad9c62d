package tracker

import "sync"

// Deduplicator remembers which jobs already produced a terminal
// notification. Entries live for the whole session and are never pruned,
// so a backend that reused a job id would never notify for it again.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

func (d *Deduplicator) HasNotified(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

func (d *Deduplicator) MarkNotified(id string) {
	d.TryMark(id)
}

// TryMark marks id and reports whether this call was the one that marked
// it. Exactly one of any number of concurrent callers gets true.
func (d *Deduplicator) TryMark(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}
