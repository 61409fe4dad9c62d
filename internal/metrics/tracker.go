package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(notificationsTotal, duplicatesSuppressedTotal, historyRefetchesTotal,
		downloadsTotal, pollErrorsTotal, activeJobs)
}

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportwatch_notifications_total",
			Help: "Toast notifications emitted, labeled by kind.",
		},
		[]string{"kind"}, // 'success', 'error'
	)

	duplicatesSuppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportwatch_duplicate_notifications_suppressed_total",
			Help: "Terminal observations whose notification was already emitted by another observer.",
		},
		[]string{"source"}, // 'badge', 'monitor'
	)

	historyRefetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportwatch_history_refetches_total",
			Help: "History refetches issued, labeled by mode.",
		},
		[]string{"mode"}, // 'debounced', 'immediate', 'page'
	)

	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportwatch_downloads_total",
			Help: "Report downloads, labeled by result.",
		},
		[]string{"result"}, // 'ok', 'error', 'skipped'
	)

	pollErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportwatch_poll_errors_total",
			Help: "Failed status polls, labeled by observer.",
		},
		[]string{"source"},
	)

	activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reportwatch_active_jobs",
			Help: "Job ids currently held in the active-job registry.",
		},
	)
)

func IncNotification(kind string) {
	notificationsTotal.WithLabelValues(norm(kind)).Inc()
}

func IncDuplicateSuppressed(source string) {
	duplicatesSuppressedTotal.WithLabelValues(norm(source)).Inc()
}

func IncHistoryRefetch(mode string) {
	historyRefetchesTotal.WithLabelValues(norm(mode)).Inc()
}

func IncDownload(result string) {
	downloadsTotal.WithLabelValues(norm(result)).Inc()
}

func IncPollError(source string) {
	pollErrorsTotal.WithLabelValues(norm(source)).Inc()
}

func SetActiveJobs(n int) {
	activeJobs.Set(float64(n))
}
