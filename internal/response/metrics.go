package response

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	responsesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "response",
		Name:      "dispatches_total",
		Help:      "Total risk-level dispatches by level and outcome.",
	}, []string{"level", "outcome"}) // "ok", "blocked", "breaker_open", "action_failed"

	actionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "response",
		Name:      "action_failures_total",
		Help:      "Total response action failures by action.",
	}, []string{"action"})

	blockedUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Subsystem: "response",
		Name:      "blocked_users",
		Help:      "Number of users currently on the blocklist.",
	})
)

func init() {
	prometheus.MustRegister(
		responsesTotal,
		actionFailures,
		blockedUsers,
	)
}
