package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cpddns"

// Metrics collects the outcome of a single run.
//
// The process is short-lived, so nothing is served over HTTP;
// WriteTextfile hands the values to node_exporter's textfile collector instead.
type Metrics struct {
	registry     *prometheus.Registry
	runs         *prometheus.CounterVec // runs by action, dry run and status
	lastDuration prometheus.Gauge       // seconds spent in the last run
	lastSuccess  prometheus.Gauge       // unix time of the last successful run
	httpRequests *prometheus.CounterVec // outbound requests by code and method
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of update runs",
		}, []string{"action", "dry_run", "status"}),

		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last update run",
		}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful update run",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total outbound HTTP requests to the IP service and cPanel",
		}, []string{"code", "method"}),
	}

	registry.MustRegister(
		m.runs,
		m.lastDuration,
		m.lastSuccess,
		m.httpRequests,
	)
	return m
}

// ObserveRun records a finished run. action is the ddns.Action string.
// Dry runs are labeled so planned changes are not mistaken for applied ones.
func (m *Metrics) ObserveRun(action string, dryRun bool, err error, duration time.Duration) {
	m.runs.WithLabelValues(action, strconv.FormatBool(dryRun), boolToResult(err == nil)).Inc()
	m.lastDuration.Set(duration.Seconds())
	if err == nil {
		m.lastSuccess.SetToCurrentTime()
	}
}

// InstrumentTransport counts the requests sent through next.
func (m *Metrics) InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperCounter(m.httpRequests, next)
}

// WriteTextfile writes all metrics in the text exposition format to path, replacing it atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return errors.New("metrics textfile path is empty")
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}
