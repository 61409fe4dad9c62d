// Package tracker follows asynchronous report-generation jobs for one user
// session: it submits jobs, keeps the active set across restarts, polls for
// completion from two observers, and turns terminal states into exactly one
// notification per job.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/internhub/reportwatch/internal/clock"
	"github.com/internhub/reportwatch/internal/metrics"
	"github.com/internhub/reportwatch/internal/notify"
	"github.com/internhub/reportwatch/internal/report"
)

const (
	DefaultRefreshDebounce = 500 * time.Millisecond
	DefaultSuccessGrace    = 3 * time.Second
	DefaultFailureGrace    = 2 * time.Second
	DefaultBadgeInterval   = 10 * time.Second
	DefaultMonitorInterval = 2 * time.Second
	DefaultPageSize        = 10
)

var (
	ErrNotConfirmed = errors.New("delete not confirmed")
	ErrClosed       = errors.New("tracker closed")
)

// Source names the observer that saw a status.
type Source string

const (
	SourceBadge   Source = "badge"
	SourceMonitor Source = "monitor"
)

// Notifier is the toast surface.
type Notifier interface {
	Success(jobID, message string) notify.Notification
	Error(jobID, message string) notify.Notification
}

// Confirmation asks the user to confirm a destructive action.
type Confirmation func(job report.Job) bool

type Options struct {
	Backend  report.Backend
	Repo     SnapshotRepository
	Notifier Notifier
	Saver    Saver
	Clock    clock.Clock

	BadgeInterval   time.Duration
	MonitorInterval time.Duration
	RefreshDebounce time.Duration
	SuccessGrace    time.Duration
	FailureGrace    time.Duration
	PageSize        int
}

func (o *Options) setDefaults() {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.BadgeInterval <= 0 {
		o.BadgeInterval = DefaultBadgeInterval
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = DefaultMonitorInterval
	}
	if o.RefreshDebounce <= 0 {
		o.RefreshDebounce = DefaultRefreshDebounce
	}
	if o.SuccessGrace <= 0 {
		o.SuccessGrace = DefaultSuccessGrace
	}
	if o.FailureGrace <= 0 {
		o.FailureGrace = DefaultFailureGrace
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Saver == nil {
		o.Saver = DirSaver{Dir: "downloads"}
	}
}

// MonitorView is the state of the open status-detail surface.
type MonitorView struct {
	JobID   string      `json:"jobId"`
	Job     *report.Job `json:"job,omitempty"`
	Error   string      `json:"error,omitempty"`
	Polling bool        `json:"polling"`
}

// HistoryView is the visible window of the report history.
type HistoryView struct {
	Jobs       []report.Job      `json:"jobs"`
	Pagination report.Pagination `json:"pagination"`
	Loading    bool              `json:"loading"`
}

// DownloadResult describes the outcome of Download.
type DownloadResult struct {
	Path    string `json:"path,omitempty"`
	Skipped bool   `json:"skipped"`
}

type monitorState struct {
	view MonitorView
	gen  uint64
	stop chan struct{}
}

// Tracker is the job-tracking service for one session. Create it with New,
// call Start to begin badge polling and Close on logout.
type Tracker struct {
	opts     Options
	backend  report.Backend
	notifier Notifier
	clock    clock.Clock

	registry  *Registry
	dedup     *Deduplicator
	refresher *Refresher
	downloads *DownloadGuard

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	started    bool
	evictions  map[string]*clock.Timer
	monitor    *monitorState
	monitorGen uint64

	histMu  sync.Mutex
	history HistoryView
	pageSeq uint64
}

// New builds a Tracker and rehydrates the active-job registry.
func New(ctx context.Context, opts Options) (*Tracker, error) {
	if opts.Backend == nil {
		return nil, errors.New("tracker: backend is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("tracker: notifier is required")
	}
	opts.setDefaults()

	t := &Tracker{
		opts:      opts,
		backend:   opts.Backend,
		notifier:  opts.Notifier,
		clock:     opts.Clock,
		registry:  NewRegistry(ctx, opts.Repo),
		dedup:     NewDeduplicator(),
		downloads: NewDownloadGuard(),
		evictions: make(map[string]*clock.Timer),
		history: HistoryView{
			Jobs:       []report.Job{},
			Pagination: report.Pagination{Limit: opts.PageSize},
		},
	}
	t.refresher = NewRefresher(opts.Clock, opts.RefreshDebounce, t.fetchHistory)
	t.ctx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))
	return t, nil
}

// Start launches the badge poller, which also resumes tracking of jobs
// restored from the previous run. Calling Start more than once has no effect.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.closed {
		return
	}
	t.started = true
	t.wg.Add(1)
	go t.runBadge()
}

// Close stops both pollers and all timers. Pending evictions are dropped;
// the registry snapshot keeps those ids so the next session resumes them.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.stopMonitorLocked()
	for id, timer := range t.evictions {
		timer.Stop()
		delete(t.evictions, id)
	}
	t.mu.Unlock()

	t.refresher.Stop()
	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Active returns the ids shown in the active-jobs badge.
func (t *Tracker) Active() []string {
	return t.registry.Snapshot()
}

// Submit starts a report generation, registers the new job and opens its
// status surface. On failure nothing is registered.
func (t *Tracker) Submit(ctx context.Context, sel report.Selection) (*report.Job, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}
	if err := sel.Validate(); err != nil {
		t.notifier.Error("", "Invalid report selection: "+err.Error())
		return nil, err
	}

	j, err := t.backend.Submit(ctx, sel)
	if err != nil {
		label := (&report.Job{ReportType: sel.ReportType, ReportName: sel.ReportName}).Label()
		t.notifier.Error("", fmt.Sprintf("Failed to generate %s: %v", label, err))
		return nil, fmt.Errorf("submit report: %w", err)
	}

	t.cancelEviction(j.ID)
	t.registry.Add(j.ID)
	slog.Info("tracker: job submitted", "job_id", j.ID, "report_type", j.ReportType)
	t.OpenStatus(j.ID)
	return j, nil
}

// Observe handles a status seen by either poller. Terminal states go
// through the dedup gate, request a history refresh and schedule eviction
// from the registry after the grace delay.
func (t *Tracker) Observe(j *report.Job, src Source) {
	if j == nil || !j.Status.IsTerminal() {
		return
	}

	grace := t.opts.SuccessGrace
	if j.Status == report.StatusFailed {
		grace = t.opts.FailureGrace
	}

	if t.dedup.TryMark(j.ID) {
		if j.Status == report.StatusCompleted {
			t.notifier.Success(j.ID, j.Label()+" is ready")
		} else {
			msg := j.ErrorMessage
			if msg == "" {
				msg = "unknown error"
			}
			t.notifier.Error(j.ID, fmt.Sprintf("%s failed: %s", j.Label(), msg))
		}
	} else {
		metrics.IncDuplicateSuppressed(string(src))
		slog.Debug("tracker: notification already sent", "job_id", j.ID, "source", src)
	}

	t.refresher.Schedule()
	t.scheduleEviction(j.ID, grace)
}

func (t *Tracker) scheduleEviction(id string, grace time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if _, pending := t.evictions[id]; pending {
		return
	}
	if !t.registry.Contains(id) {
		return
	}
	t.evictions[id] = t.clock.AfterFunc(grace, func() {
		t.mu.Lock()
		delete(t.evictions, id)
		t.mu.Unlock()
		t.registry.Remove(id)
		slog.Debug("tracker: evicted job", "job_id", id)
	})
}

func (t *Tracker) cancelEviction(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.evictions[id]; ok {
		timer.Stop()
		delete(t.evictions, id)
	}
}

func (t *Tracker) evictionPending(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.evictions[id]
	return ok
}

// View fetches the current state of a job.
func (t *Tracker) View(ctx context.Context, id string) (*report.Job, error) {
	j, err := t.backend.Status(ctx, id)
	if err != nil {
		t.notifier.Error(id, fmt.Sprintf("Failed to load report: %v", err))
		return nil, fmt.Errorf("view report %s: %w", id, err)
	}
	return j, nil
}

// Retry asks the backend to run a failed report again and tracks the
// resulting job.
func (t *Tracker) Retry(ctx context.Context, id string) (*report.Job, error) {
	j, err := t.backend.Retry(ctx, id)
	if err != nil {
		t.notifier.Error(id, fmt.Sprintf("Failed to retry report: %v", err))
		return nil, fmt.Errorf("retry report %s: %w", id, err)
	}
	t.cancelEviction(j.ID)
	t.registry.Add(j.ID)
	t.refresher.Schedule()
	return j, nil
}

// Delete removes a report after the user confirms. Nothing is removed
// locally unless the backend call succeeds. Only j.ID is required; the
// label falls back to the loaded history.
func (t *Tracker) Delete(ctx context.Context, j report.Job, confirm Confirmation) error {
	if confirm == nil || !confirm(j) {
		return ErrNotConfirmed
	}

	label := t.labelFor(j)
	if err := t.backend.Delete(ctx, j.ID); err != nil {
		t.notifier.Error(j.ID, fmt.Sprintf("Failed to delete %s: %v", label, err))
		return fmt.Errorf("delete report %s: %w", j.ID, err)
	}

	t.cancelEviction(j.ID)
	t.registry.Remove(j.ID)
	t.notifier.Success(j.ID, label+" deleted")
	// A failed reload is already surfaced by fetchHistory.
	_, _ = t.refresher.RefreshNow(ctx)
	return nil
}

// labelFor names j for a toast, using the visible history when the caller
// only knows the id.
func (t *Tracker) labelFor(j report.Job) string {
	if j.ReportName != "" || j.ReportType != "" {
		return j.Label()
	}
	t.histMu.Lock()
	defer t.histMu.Unlock()
	for i := range t.history.Jobs {
		if t.history.Jobs[i].ID == j.ID {
			return t.history.Jobs[i].Label()
		}
	}
	return j.Label()
}

// Download saves a finished report locally. A second call for a job whose
// download is still running returns Skipped without touching the backend.
func (t *Tracker) Download(ctx context.Context, j report.Job) (DownloadResult, error) {
	var path string
	ran, err := t.downloads.Do(ctx, j.ID, func(ctx context.Context) error {
		body, err := t.backend.Download(ctx, j.ID)
		if err != nil {
			return err
		}
		defer body.Close()
		path, err = t.opts.Saver.Save(ctx, report.DownloadFilename(&j), body)
		return err
	})
	if !ran {
		metrics.IncDownload("skipped")
		return DownloadResult{Skipped: true}, nil
	}
	if err != nil {
		metrics.IncDownload("error")
		t.notifier.Error(j.ID, fmt.Sprintf("Failed to download %s: %v", j.Label(), err))
		return DownloadResult{}, fmt.Errorf("download report %s: %w", j.ID, err)
	}
	metrics.IncDownload("ok")
	return DownloadResult{Path: path}, nil
}

// DownloadInFlight reports whether a download for id is running.
func (t *Tracker) DownloadInFlight(id string) bool {
	return t.downloads.InFlight(id)
}
