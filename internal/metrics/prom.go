package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "agbridge_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "daemon"},
		},
		[]string{"date", "sha", "version"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agbridge_sessions_active",
			Help: "Connected websocket sessions",
		},
	)

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agbridge_requests_total",
			Help: "JSON-RPC requests by method and response code",
		},
		[]string{"method", "code"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agbridge_request_duration_seconds",
			Help:    "Request handling duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	authRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agbridge_auth_rejections_total",
			Help: "Upgrade attempts rejected for a missing or wrong token",
		},
	)

	workspaceEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agbridge_workspace_events_total",
			Help: "Workspace events broadcast to sessions",
		},
		[]string{"type"},
	)

	hostCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agbridge_host_commands_total",
			Help: "IDE command invocations by outcome",
		},
		[]string{"command", "outcome"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, sessionsActive, requests, requestDuration, authRejections, workspaceEvents, hostCommands)
}

// SetBuildInfo sets the build info metric for the daemon.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// SessionOpened increments the active session gauge.
func SessionOpened() { sessionsActive.Inc() }

// SessionClosed decrements the active session gauge.
func SessionClosed() { sessionsActive.Dec() }

// RecordRequest counts a handled request and observes its duration. code is
// "ok" for successes or the symbolic error code name.
func RecordRequest(method, code string, d time.Duration) {
	requests.WithLabelValues(method, code).Inc()
	requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordAuthRejection counts a rejected upgrade.
func RecordAuthRejection() { authRejections.Inc() }

// RecordWorkspaceEvent counts a broadcast workspace event.
func RecordWorkspaceEvent(kind string) {
	workspaceEvents.WithLabelValues(kind).Inc()
}

// RecordHostCommand counts an IDE command outcome.
func RecordHostCommand(command, outcome string) {
	hostCommands.WithLabelValues(command, outcome).Inc()
}
