package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// notification pipeline.
type Metrics struct {
	PollsTotal   prometheus.Counter
	PollErrors   prometheus.Counter
	PollsSkipped prometheus.Counter
	PollDuration prometheus.Histogram

	RecordsNormalized prometheus.Counter
	RecordsSkipped    prometheus.Counter

	NotificationsAdded  prometheus.Counter
	NotificationsTotal  prometheus.Gauge
	NotificationsUnread prometheus.Gauge

	PersistFailures prometheus.Counter
	PublishErrors   prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "traffic_notify",
			Name:      "polls_total",
			Help:      "Total completed poll ticks, successful or not.",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "traffic_notify",
			Name:      "poll_errors_total",
			Help:      "Poll ticks that failed to fetch or decode the feed.",
		}),
		PollsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "traffic_notify",
			Name:      "polls_skipped_total",
			Help:      "Ticks skipped because the previous fetch was still in flight.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "traffic_notify",
			Name:      "poll_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-merge-persist cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		RecordsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "traffic_notify",
			Name:      "records_normalized_total",
			Help:      "Raw incident records successfully normalized.",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "traffic_notify",
			Name:      "records_skipped_total",
			Help:      "Raw incident records dropped as malformed.",
		}),
		NotificationsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "traffic_notify",
			Name:      "notifications_added_total",
			Help:      "Notifications newly introduced by a merge.",
		}),
		NotificationsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "traffic_notify",
			Name:      "notifications",
			Help:      "Current size of the notification collection.",
		}),
		NotificationsUnread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "traffic_notify",
			Name:      "notifications_unread",
			Help:      "Current number of unread notifications.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "traffic_notify",
			Name:      "persist_failures_total",
			Help:      "Cache writes that failed and were swallowed.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "traffic_notify",
			Name:      "publish_errors_total",
			Help:      "Kafka publishes of new notifications that failed.",
		}),
	}

	prometheus.MustRegister(
		m.PollsTotal,
		m.PollErrors,
		m.PollsSkipped,
		m.PollDuration,
		m.RecordsNormalized,
		m.RecordsSkipped,
		m.NotificationsAdded,
		m.NotificationsTotal,
		m.NotificationsUnread,
		m.PersistFailures,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		PollsTotal:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "traffic_notify", Name: "polls_total"}),
		PollErrors:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "traffic_notify", Name: "poll_errors_total"}),
		PollsSkipped:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "traffic_notify", Name: "polls_skipped_total"}),
		PollDuration:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "traffic_notify", Name: "poll_duration_seconds"}),
		RecordsNormalized:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "traffic_notify", Name: "records_normalized_total"}),
		RecordsSkipped:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "traffic_notify", Name: "records_skipped_total"}),
		NotificationsAdded:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "traffic_notify", Name: "notifications_added_total"}),
		NotificationsTotal:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "traffic_notify", Name: "notifications"}),
		NotificationsUnread: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "traffic_notify", Name: "notifications_unread"}),
		PersistFailures:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "traffic_notify", Name: "persist_failures_total"}),
		PublishErrors:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "traffic_notify", Name: "publish_errors_total"}),
	}
}
