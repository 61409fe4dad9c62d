package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/internhub/reportwatch/internal/metrics"
	"github.com/internhub/reportwatch/internal/report"
)

// History returns the visible history window.
func (t *Tracker) History() HistoryView {
	t.histMu.Lock()
	defer t.histMu.Unlock()
	v := t.history
	v.Jobs = append([]report.Job(nil), t.history.Jobs...)
	return v
}

// RefreshNow reloads the current history window immediately. It returns
// false when a reload was already running and this call was ignored.
func (t *Tracker) RefreshNow(ctx context.Context) (bool, error) {
	return t.refresher.RefreshNow(ctx)
}

// ChangePage loads a different history window. It bypasses the debouncer
// and shows a loading state until the fetch completes. The visible window
// only moves once its rows have arrived, and only the latest page change
// may apply its result or end the loading state.
func (t *Tracker) ChangePage(ctx context.Context, page, pageSize int) error {
	if pageSize <= 0 {
		pageSize = t.opts.PageSize
	}
	want := report.PaginationFor(page, pageSize)

	t.histMu.Lock()
	t.pageSeq++
	seq := t.pageSeq
	t.history.Loading = true
	t.histMu.Unlock()

	metrics.IncHistoryRefetch("page")
	p, err := t.backend.History(ctx, want.Limit, want.Offset)

	t.histMu.Lock()
	latest := seq == t.pageSeq
	if latest {
		t.history.Loading = false
		if err == nil {
			t.applyPageLocked(want, p)
		}
	}
	t.histMu.Unlock()

	if err != nil {
		t.notifier.Error("", fmt.Sprintf("Failed to load report history: %v", err))
		return fmt.Errorf("load history page %d: %w", want.Page(), err)
	}
	if !latest {
		slog.Debug("tracker: dropped superseded history page", "page", want.Page())
	}
	return nil
}

// fetchHistory reloads the current window for the refresher. A result for
// a window the user has since navigated away from is dropped.
func (t *Tracker) fetchHistory(ctx context.Context) error {
	t.histMu.Lock()
	want := t.history.Pagination
	t.histMu.Unlock()

	p, err := t.backend.History(ctx, want.Limit, want.Offset)
	if err != nil {
		t.notifier.Error("", fmt.Sprintf("Failed to refresh report history: %v", err))
		return fmt.Errorf("refresh history: %w", err)
	}

	t.histMu.Lock()
	defer t.histMu.Unlock()
	cur := t.history.Pagination
	if cur.Limit == want.Limit && cur.Offset == want.Offset {
		t.applyPageLocked(want, p)
	}
	return nil
}

func (t *Tracker) applyPageLocked(window report.Pagination, p *report.Page) {
	jobs := p.Jobs
	if jobs == nil {
		jobs = []report.Job{}
	}
	t.history.Jobs = jobs
	t.history.Pagination = report.Pagination{
		Total:  p.Total,
		Limit:  window.Limit,
		Offset: window.Offset,
	}
}
