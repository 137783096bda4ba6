package notify

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	notifyDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "notify",
		Name:      "delivered_total",
		Help:      "Total notifications delivered by sink and kind.",
	}, []string{"sink", "kind"})

	notifyFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Total notification delivery failures by sink and kind.",
	}, []string{"sink", "kind"})

	notifyDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "notify",
		Name:      "dropped_total",
		Help:      "Total notifications dropped because the queue was full.",
	}, []string{"kind"})

	notifyQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Subsystem: "notify",
		Name:      "queue_depth",
		Help:      "Number of notifications waiting in the queue.",
	})
)

func init() {
	prometheus.MustRegister(
		notifyDelivered,
		notifyFailures,
		notifyDropped,
		notifyQueueDepth,
	)
}
