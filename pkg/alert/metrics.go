package alert

import "github.com/prometheus/client_golang/prometheus"

var (
	alertsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "alert",
		Name:      "published_total",
		Help:      "Alerts published on the bus, by reason.",
	}, []string{"reason"})

	alertsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "alert",
		Name:      "dropped_total",
		Help:      "Alerts evicted from slow subscriber queues.",
	})

	subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aegis",
		Subsystem: "alert",
		Name:      "subscribers",
		Help:      "Currently attached subscribers.",
	})
)

// Collectors returns the metrics of this package for registration
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{alertsPublished, alertsDropped, subscribers}
}
