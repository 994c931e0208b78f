// Package metrics exposes Prometheus instrumentation for the Ember control
// plane: lifecycle throughput counters and agent reliability signals,
// served on the standard /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ServerCreates counts successfully provisioned servers.
	ServerCreates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_server_creates_total",
			Help: "Total number of successful server create flows",
		},
	)

	// PowerActions counts confirmed start/stop/restart actions.
	PowerActions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_power_actions_total",
			Help: "Total number of confirmed power actions",
		},
	)

	// WatchdogSyncs counts authoritative status updates applied from node
	// watchdog callbacks.
	WatchdogSyncs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_watchdog_syncs_total",
			Help: "Total number of applied watchdog status syncs",
		},
	)

	// AgentFailures counts agent calls that timed out, were refused, or
	// returned a non-2xx response.
	AgentFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_agent_failures_total",
			Help: "Total number of failed outbound agent calls",
		},
	)

	// ConsoleSessions counts established console relay bridges.
	ConsoleSessions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_console_sessions_total",
			Help: "Total number of established console relay sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(ServerCreates)
	prometheus.MustRegister(PowerActions)
	prometheus.MustRegister(WatchdogSyncs)
	prometheus.MustRegister(AgentFailures)
	prometheus.MustRegister(ConsoleSessions)
}

// Handler returns the HTTP handler serving the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
