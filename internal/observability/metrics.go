package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the release pipeline.
type Metrics struct {
	// Failure events reported to the sink
	EventsTotal *prometheus.CounterVec

	// Detail queue
	QueueJobsTotal *prometheus.CounterVec
	QueueDepth     prometheus.Gauge

	// Library sync
	SyncsTotal        *prometheus.CounterVec
	SyncedArtistTotal prometheus.Counter

	// Release scan
	ScansTotal           *prometheus.CounterVec
	ReleasesChangedTotal prometheus.Counter
	PendingFlagsTotal    prometheus.Counter

	// Notifications
	NotificationsTotal *prometheus.CounterVec
}

// DefaultMetrics creates metrics registered with the default registerer.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates a new set of pipeline metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotifier_events_total",
				Help: "Failure events reported by pipeline components",
			},
			[]string{"kind"},
		),

		QueueJobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotifier_detail_jobs_total",
				Help: "Artist detail jobs by outcome",
			},
			[]string{"status"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "spotifier_detail_queue_depth",
				Help: "Artist detail jobs waiting to run",
			},
		),

		SyncsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotifier_library_syncs_total",
				Help: "Library syncs by outcome",
			},
			[]string{"status"},
		),
		SyncedArtistTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "spotifier_library_artists_assigned_total",
				Help: "Artists newly assigned to a user library",
			},
		),

		ScansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotifier_release_scans_total",
				Help: "Release scans by outcome",
			},
			[]string{"status"},
		),
		ReleasesChangedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "spotifier_releases_changed_total",
				Help: "Artist releases replaced by a newer release",
			},
		),
		PendingFlagsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "spotifier_pending_flags_total",
				Help: "Pending release flags added to users",
			},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotifier_notifications_total",
				Help: "Release notification groups by outcome",
			},
			[]string{"status"},
		),
	}
}
