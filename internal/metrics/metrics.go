package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application.
// Each collector owns its registry so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// MEL metrics
	Versions   *prometheus.CounterVec
	ChatTurns  *prometheus.CounterVec
	DupNumbers prometheus.Counter

	// Upstream metrics
	UpstreamErrors   *prometheus.CounterVec
	UpstreamDuration prometheus.Histogram
}

// NewCollector creates a new metrics collector with the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	versions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mel_versions_total",
			Help:      "Accepted MEL document versions by provenance",
		},
		[]string{"provenance"},
	)

	chatTurns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Completed chat turns by resulting action",
		},
		[]string{"action"},
	)

	dupNumbers := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mel_duplicate_numbers_total",
			Help:      "Merges that addressed a sequence number shared by several injects",
		},
	)

	upstreamErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed chat-completion calls by status",
		},
		[]string{"status"},
	)

	upstreamDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Chat-completion call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)

	registry.MustRegister(
		httpRequests,
		httpDuration,
		versions,
		chatTurns,
		dupNumbers,
		upstreamErrors,
		upstreamDuration,
	)

	return &Collector{
		registry:         registry,
		HTTPRequests:     httpRequests,
		HTTPDuration:     httpDuration,
		Versions:         versions,
		ChatTurns:        chatTurns,
		DupNumbers:       dupNumbers,
		UpstreamErrors:   upstreamErrors,
		UpstreamDuration: upstreamDuration,
	}
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordVersion counts an accepted document version.
func (c *Collector) RecordVersion(provenance string) {
	if c == nil {
		return
	}
	c.Versions.WithLabelValues(provenance).Inc()
}

// RecordChatTurn counts a completed chat turn. action is "merge", "replace" or "none".
func (c *Collector) RecordChatTurn(action string) {
	if c == nil {
		return
	}
	c.ChatTurns.WithLabelValues(action).Inc()
}

// RecordDuplicateNumbers counts a merge that hit duplicated sequence numbers.
func (c *Collector) RecordDuplicateNumbers() {
	if c == nil {
		return
	}
	c.DupNumbers.Inc()
}

// ObserveUpstream records one chat-completion call. status 0 means a transport failure.
func (c *Collector) ObserveUpstream(status int, d time.Duration) {
	if c == nil {
		return
	}
	c.UpstreamDuration.Observe(d.Seconds())
	if status < 200 || status >= 300 {
		c.UpstreamErrors.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
