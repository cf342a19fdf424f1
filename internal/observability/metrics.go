// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tracker.
type Metrics struct {
	// Feed metrics
	FeedMessagesReceived prometheus.Counter
	FeedReconnects       prometheus.Counter
	FeedConnectionState  prometheus.Gauge

	// Classification metrics
	MessagesClassified *prometheus.CounterVec
	DuplicatesDropped  prometheus.Counter

	// Enrichment metrics
	EnrichmentAttempts  *prometheus.CounterVec
	EnrichmentDuration  prometheus.Histogram
	RefreshSweepRecords prometheus.Counter

	// Store metrics
	GraduatesTracked  prometheus.Gauge
	PersistenceErrors prometheus.Counter

	// Fan-out metrics
	Subscribers    prometheus.Gauge
	BroadcastsSent prometheus.Counter

	// Notification metrics
	NotificationsSent  prometheus.Counter
	NotificationErrors prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pump_graduates"
	}

	return &Metrics{
		FeedMessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_received_total",
			Help:      "Total number of feed messages received",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of feed reconnect attempts",
		}),
		FeedConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connection_state",
			Help:      "Feed connection state (0=disconnected, 1=connecting, 2=connected)",
		}),

		MessagesClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_classified_total",
			Help:      "Total number of feed messages by classification outcome",
		}, []string{"outcome"}),
		DuplicatesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duplicates_dropped_total",
			Help:      "Total number of duplicate graduation events dropped",
		}),

		EnrichmentAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "attempts_total",
			Help:      "Total number of enrichment lookups by result",
		}, []string{"result"}),
		EnrichmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "lookup_duration_seconds",
			Help:      "Market-data lookup duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RefreshSweepRecords: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "refresh_sweep_records_total",
			Help:      "Total number of records refreshed by the periodic sweep",
		}),

		GraduatesTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "graduates_tracked",
			Help:      "Current number of graduation records in the store",
		}),
		PersistenceErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "persistence_errors_total",
			Help:      "Total number of snapshot persistence failures",
		}),

		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Current number of live push subscribers",
		}),
		BroadcastsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcast events sent",
		}),

		NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total number of notifications delivered",
		}),
		NotificationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "errors_total",
			Help:      "Total number of notification delivery failures",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFeedMessage increments the feed messages received counter.
func RecordFeedMessage() {
	DefaultMetrics.FeedMessagesReceived.Inc()
}

// RecordFeedReconnect increments the reconnect attempts counter.
func RecordFeedReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}

// UpdateFeedState updates the connection state gauge.
func UpdateFeedState(state int) {
	DefaultMetrics.FeedConnectionState.Set(float64(state))
}

// RecordClassification records one classification outcome.
func RecordClassification(outcome string) {
	DefaultMetrics.MessagesClassified.WithLabelValues(outcome).Inc()
}

// RecordDuplicateDropped increments the dedup drop counter.
func RecordDuplicateDropped() {
	DefaultMetrics.DuplicatesDropped.Inc()
}

// RecordEnrichmentAttempt records one lookup by result
// (hit, miss, error).
func RecordEnrichmentAttempt(result string, seconds float64) {
	DefaultMetrics.EnrichmentAttempts.WithLabelValues(result).Inc()
	DefaultMetrics.EnrichmentDuration.Observe(seconds)
}

// RecordRefreshSweep adds to the sweep record counter.
func RecordRefreshSweep(records int) {
	DefaultMetrics.RefreshSweepRecords.Add(float64(records))
}

// UpdateGraduateCount updates the tracked records gauge.
func UpdateGraduateCount(n int) {
	DefaultMetrics.GraduatesTracked.Set(float64(n))
}

// RecordPersistenceError increments the snapshot failure counter.
func RecordPersistenceError() {
	DefaultMetrics.PersistenceErrors.Inc()
}

// UpdateSubscriberCount updates the subscriber gauge.
func UpdateSubscriberCount(n int) {
	DefaultMetrics.Subscribers.Set(float64(n))
}

// RecordBroadcast increments the broadcast counter.
func RecordBroadcast() {
	DefaultMetrics.BroadcastsSent.Inc()
}

// RecordNotification records a delivery attempt outcome.
func RecordNotification(err error) {
	if err != nil {
		DefaultMetrics.NotificationErrors.Inc()
		return
	}
	DefaultMetrics.NotificationsSent.Inc()
}
