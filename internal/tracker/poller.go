package tracker

import (
	"context"
	"log/slog"

	"github.com/internhub/reportwatch/internal/metrics"
)

// runBadge is the low-frequency poller behind the always-visible
// active-jobs badge.
func (t *Tracker) runBadge() {
	defer t.wg.Done()

	t.PollActive(t.ctx)
	ticker := t.clock.NewTicker(t.opts.BadgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.PollActive(t.ctx)
		}
	}
}

// PollActive polls every registered job once. Jobs whose status surface is
// open are left to the monitor poller, and jobs already waiting for
// eviction are skipped. A failed poll leaves the job registered for the
// next round.
func (t *Tracker) PollActive(ctx context.Context) {
	for _, id := range t.registry.Snapshot() {
		if ctx.Err() != nil {
			return
		}
		if t.monitoring(id) || t.evictionPending(id) {
			continue
		}
		j, err := t.backend.Status(ctx, id)
		if err != nil {
			metrics.IncPollError(string(SourceBadge))
			slog.Warn("tracker: poll status", "source", SourceBadge, "job_id", id, "error", err)
			continue
		}
		t.Observe(j, SourceBadge)
	}
}

// OpenStatus opens the status-detail surface for id, replacing any surface
// already open, and starts the high-frequency poller for it.
func (t *Tracker) OpenStatus(id string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.stopMonitorLocked()
	t.monitorGen++
	m := &monitorState{
		view: MonitorView{JobID: id, Polling: true},
		gen:  t.monitorGen,
		stop: make(chan struct{}),
	}
	t.monitor = m
	t.wg.Add(1)
	t.mu.Unlock()

	go t.runMonitor(id, m.gen, m.stop)
}

// CloseStatus closes the status surface and stops its poller. A response
// already in flight is discarded when it arrives.
func (t *Tracker) CloseStatus() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopMonitorLocked()
}

func (t *Tracker) stopMonitorLocked() {
	if t.monitor == nil {
		return
	}
	close(t.monitor.stop)
	t.monitor = nil
}

// Monitor returns the open status surface, if any.
func (t *Tracker) Monitor() (MonitorView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.monitor == nil {
		return MonitorView{}, false
	}
	v := t.monitor.view
	if v.Job != nil {
		j := *v.Job
		v.Job = &j
	}
	return v, true
}

func (t *Tracker) monitoring(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.monitor != nil && t.monitor.view.JobID == id
}

func (t *Tracker) runMonitor(id string, gen uint64, stop <-chan struct{}) {
	defer t.wg.Done()

	if t.pollMonitor(id, gen) {
		return
	}
	ticker := t.clock.NewTicker(t.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if t.pollMonitor(id, gen) {
				return
			}
		}
	}
}

// pollMonitor polls id once for the surface generation gen and reports
// whether polling should stop.
func (t *Tracker) pollMonitor(id string, gen uint64) bool {
	j, err := t.backend.Status(t.ctx, id)

	t.mu.Lock()
	if t.monitor == nil || t.monitor.gen != gen {
		t.mu.Unlock()
		return true
	}
	if err != nil {
		t.monitor.view.Error = err.Error()
		t.mu.Unlock()
		metrics.IncPollError(string(SourceMonitor))
		slog.Warn("tracker: poll status", "source", SourceMonitor, "job_id", id, "error", err)
		return t.ctx.Err() != nil
	}
	t.monitor.view.Job = j
	t.monitor.view.Error = ""
	terminal := j.Status.IsTerminal()
	if terminal {
		t.monitor.view.Polling = false
	}
	t.mu.Unlock()

	t.Observe(j, SourceMonitor)
	return terminal
}
