// Package metrics holds the Prometheus instruments shared by the remote
// client, the update orchestrator, and the sync service. Collectors are
// registered with the global registry in init.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wrms_remote_requests_total",
			Help: "Remote management API requests by endpoint, namespace, and outcome",
		},
		[]string{"endpoint", "namespace", "outcome"},
	)

	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wrms_remote_request_duration_seconds",
			Help:    "Remote management API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	UpdateItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wrms_update_items_total",
			Help: "Core, plugin, and theme update items by outcome",
		},
		[]string{"type", "outcome"},
	)

	WebsiteConnectionStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wrms_website_connection_status",
			Help: "Websites by connection status as of the last fleet sync",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		RemoteRequestsTotal,
		RemoteRequestDuration,
		UpdateItemsTotal,
		WebsiteConnectionStatus,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures one operation for a histogram.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on the labelled histogram.
func (t *Timer) ObserveDuration(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
