package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the audit subsystem. One struct
// so wiring stays explicit and tests can pass nil.
type Metrics struct {
	RecordsWritten       prometheus.Counter
	RecordsDropped       prometheus.Counter
	WriteFailures        prometheus.Counter
	ViewsCoalesced       prometheus.Counter
	NotificationsCreated prometheus.Counter
	NotificationFailures prometheus.Counter
	NotificationsExpired prometheus.Counter
	RecordsPurged        prometheus.Counter
	ForwarderPublished   prometheus.Counter
	ForwarderFailures    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RecordsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_audit_records_written_total",
			Help: "Total number of action records persisted",
		}),
		RecordsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_audit_records_dropped_total",
			Help: "Total number of ingestion attempts dropped by validation",
		}),
		WriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_audit_write_failures_total",
			Help: "Total number of swallowed persistence failures on the ingestion path",
		}),
		ViewsCoalesced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_audit_views_coalesced_total",
			Help: "Total number of viewed-logs events folded into an existing record",
		}),
		NotificationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_notifications_created_total",
			Help: "Total number of critical-event notifications created",
		}),
		NotificationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_notification_failures_total",
			Help: "Total number of swallowed notification persistence failures",
		}),
		NotificationsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_notifications_expired_total",
			Help: "Total number of notifications auto-dismissed past their expiry",
		}),
		RecordsPurged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_audit_records_purged_total",
			Help: "Total number of action records removed by retention purges",
		}),
		ForwarderPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_forwarder_published_total",
			Help: "Total number of critical records published to Kafka",
		}),
		ForwarderFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_forwarder_failures_total",
			Help: "Total number of failed Kafka publishes of critical records",
		}),
	}
}
