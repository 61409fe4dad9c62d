package tracker

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/internhub/reportwatch/internal/clock"
	"github.com/internhub/reportwatch/internal/notify"
	"github.com/internhub/reportwatch/internal/report"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeBackend is an in-memory report.Backend. Status and Download can be
// made to block on a gate per job id.
type fakeBackend struct {
	mu sync.Mutex

	jobs        map[string]*report.Job
	statusErr   map[string]error
	statusGate  map[string]chan struct{}
	statusCalls map[string]int

	submitErr error
	nextID    string

	historyCalls int
	historyErr   error
	historyGate  map[int]chan struct{} // keyed by offset
	lastLimit    int
	lastOffset   int

	downloadGate  chan struct{}
	downloadErr   error
	downloadCalls int

	deleteErr   error
	deleteCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		jobs:        make(map[string]*report.Job),
		statusErr:   make(map[string]error),
		statusGate:  make(map[string]chan struct{}),
		statusCalls: make(map[string]int),
		historyGate: make(map[int]chan struct{}),
	}
}

func (b *fakeBackend) setStatus(id string, status report.Status, errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[id]
	if !ok {
		j = &report.Job{ID: id, ReportType: "student_attendance", Format: report.FormatPDF}
		b.jobs[id] = j
	}
	j.Status = status
	j.ErrorMessage = errMsg
}

func (b *fakeBackend) calls(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusCalls[id]
}

func (b *fakeBackend) Submit(_ context.Context, sel report.Selection) (*report.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	j := &report.Job{
		ID:         b.nextID,
		Status:     report.StatusQueued,
		ReportType: sel.ReportType,
		ReportName: sel.ReportName,
		Format:     sel.Format,
	}
	if existing, ok := b.jobs[j.ID]; ok {
		j.Status = existing.Status
		j.ErrorMessage = existing.ErrorMessage
	}
	b.jobs[j.ID] = j
	cp := *j
	return &cp, nil
}

func (b *fakeBackend) Status(ctx context.Context, id string) (*report.Job, error) {
	b.mu.Lock()
	b.statusCalls[id]++
	gate := b.statusGate[id]
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.statusErr[id]; err != nil {
		return nil, err
	}
	j, ok := b.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *j
	return &cp, nil
}

func (b *fakeBackend) History(ctx context.Context, limit, offset int) (*report.Page, error) {
	b.mu.Lock()
	b.historyCalls++
	b.lastLimit, b.lastOffset = limit, offset
	gate := b.historyGate[offset]
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.historyErr != nil {
		return nil, b.historyErr
	}
	p := &report.Page{Total: len(b.jobs)}
	for _, j := range b.jobs {
		p.Jobs = append(p.Jobs, *j)
	}
	return p, nil
}

func (b *fakeBackend) historyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.historyCalls
}

func (b *fakeBackend) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	b.mu.Lock()
	b.downloadCalls++
	gate := b.downloadGate
	err := b.downloadErr
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader("%PDF-1.7 " + id)), nil
}

func (b *fakeBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteCalls++
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.jobs, id)
	return nil
}

func (b *fakeBackend) Retry(_ context.Context, id string) (*report.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	old, ok := b.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	j := *old
	j.ID = id + "-retry"
	j.Status = report.StatusQueued
	j.ErrorMessage = ""
	b.jobs[j.ID] = &j
	cp := j
	return &cp, nil
}

// recordingNotifier captures toasts.
type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (n *recordingNotifier) Success(jobID, message string) notify.Notification {
	return n.add(notify.KindSuccess, jobID, message)
}

func (n *recordingNotifier) Error(jobID, message string) notify.Notification {
	return n.add(notify.KindError, jobID, message)
}

func (n *recordingNotifier) add(kind notify.Kind, jobID, message string) notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	rec := notify.Notification{Kind: kind, JobID: jobID, Message: message}
	n.got = append(n.got, rec)
	return rec
}

func (n *recordingNotifier) all() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.got...)
}

func (n *recordingNotifier) count(kind notify.Kind) int {
	c := 0
	for _, rec := range n.all() {
		if rec.Kind == kind {
			c++
		}
	}
	return c
}

type trackerFixture struct {
	tracker  *Tracker
	backend  *fakeBackend
	notifier *recordingNotifier
	clock    *clock.FakeClock
}

func newFixture(t *testing.T, repo SnapshotRepository) *trackerFixture {
	t.Helper()
	f := &trackerFixture{
		backend:  newFakeBackend(),
		notifier: &recordingNotifier{},
		clock:    clock.Fake(epoch),
	}
	tr, err := New(context.Background(), Options{
		Backend:  f.backend,
		Repo:     repo,
		Notifier: f.notifier,
		Saver:    DirSaver{Dir: t.TempDir()},
		Clock:    f.clock,
	})
	require.NoError(t, err)
	f.tracker = tr
	t.Cleanup(tr.Close)
	return f
}
