package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/internhub/reportwatch/internal/clock"
	"github.com/internhub/reportwatch/internal/metrics"
)

const refreshTimeout = 30 * time.Second

// FetchFunc reloads the report history.
type FetchFunc func(ctx context.Context) error

// Refresher coalesces "history may have changed" signals into one delayed
// refetch and never lets two refetches overlap.
type Refresher struct {
	clock clock.Clock
	delay time.Duration
	fetch FetchFunc

	mu       sync.Mutex
	timer    *clock.Timer
	inFlight bool
	stopped  bool
}

func NewRefresher(clk clock.Clock, delay time.Duration, fetch FetchFunc) *Refresher {
	if delay <= 0 {
		delay = DefaultRefreshDebounce
	}
	return &Refresher{clock: clk, delay: delay, fetch: fetch}
}

// Schedule restarts the debounce window. When it elapses with no further
// calls, exactly one refetch runs.
func (r *Refresher) Schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armLocked()
}

func (r *Refresher) armLocked() {
	if r.stopped {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = r.clock.AfterFunc(r.delay, r.fire)
}

func (r *Refresher) fire() {
	r.mu.Lock()
	r.timer = nil
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if r.inFlight {
		// Try again after the running refetch instead of overlapping it.
		r.armLocked()
		r.mu.Unlock()
		return
	}
	r.inFlight = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	r.run(ctx, "debounced")
}

// RefreshNow refetches immediately. It returns false without fetching when
// a refetch is already in flight.
func (r *Refresher) RefreshNow(ctx context.Context) (bool, error) {
	r.mu.Lock()
	if r.inFlight || r.stopped {
		r.mu.Unlock()
		return false, nil
	}
	r.inFlight = true
	r.mu.Unlock()

	return true, r.run(ctx, "immediate")
}

func (r *Refresher) run(ctx context.Context, mode string) error {
	defer func() {
		r.mu.Lock()
		r.inFlight = false
		r.mu.Unlock()
	}()

	metrics.IncHistoryRefetch(mode)
	err := r.fetch(ctx)
	if err != nil {
		slog.Warn("refresh: history refetch", "mode", mode, "error", err)
	}
	return err
}

// Pending reports whether a debounced refetch is waiting to fire.
func (r *Refresher) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

// Stop cancels any pending refetch; later Schedule and RefreshNow calls
// are ignored.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
