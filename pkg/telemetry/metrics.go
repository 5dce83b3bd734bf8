package telemetry

import "github.com/prometheus/client_golang/prometheus"

// ingestion results
const (
	resultAccepted  = "accepted"
	resultMalformed = "malformed"
	resultAuth      = "auth_failed"
	resultRevoked   = "revoked"
	resultError     = "error"
)

var (
	eventsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "telemetry",
		Name:      "events_total",
		Help:      "Telemetry submissions, by kind and result.",
	}, []string{"kind", "result"})

	eventsOutOfOrder = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "telemetry",
		Name:      "out_of_order_total",
		Help:      "Accepted events flagged as out of order.",
	})

	baselineUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "telemetry",
		Name:      "baseline_updates_total",
		Help:      "Accepted events by whether they updated the baseline.",
	}, []string{"updated"})

	severityClassified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "telemetry",
		Name:      "severity_total",
		Help:      "Accepted events by severity.",
	}, []string{"severity"})
)

// Collectors returns the metrics of this package for registration
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{eventsIngested, eventsOutOfOrder, baselineUpdates, severityClassified}
}
