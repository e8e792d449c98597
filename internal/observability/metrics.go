package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the ingestion pipeline and the
// query API.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec
	eventsConsumedTotal       *prometheus.CounterVec
	eventsMalformedTotal      *prometheus.CounterVec
	duplicatesSuppressedTotal prometheus.Counter
	recordsEvictedTotal       prometheus.Counter
	persistFailuresTotal      prometheus.Counter
	storeSize                 prometheus.Gauge
	classifyDuration          prometheus.Histogram
	classifyFailuresTotal     *prometheus.CounterVec
	classifiedTotal           *prometheus.CounterVec
	backendForwardFailures    prometheus.Counter
	reconcileMergedTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seenotify_agent",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "seenotify_agent",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		eventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seenotify_agent",
				Name:      "events_consumed_total",
				Help:      "Total number of raw notification events consumed by kind.",
			},
			[]string{"kind"},
		),
		eventsMalformedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seenotify_agent",
				Name:      "events_malformed_total",
				Help:      "Total number of raw events dropped as malformed by kind.",
			},
			[]string{"kind"},
		),
		duplicatesSuppressedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "seenotify_agent",
				Name:      "duplicates_suppressed_total",
				Help:      "Total number of duplicate records suppressed on ingestion.",
			},
		),
		recordsEvictedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "seenotify_agent",
				Name:      "records_evicted_total",
				Help:      "Total number of records evicted by the store capacity cap.",
			},
		),
		persistFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "seenotify_agent",
				Name:      "persist_failures_total",
				Help:      "Total number of failed write-through persistence attempts.",
			},
		),
		storeSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "seenotify_agent",
				Name:      "store_size",
				Help:      "Current number of records held by the store.",
			},
		),
		classifyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "seenotify_agent",
				Name:      "classify_duration_seconds",
				Help:      "Classifier call duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		classifyFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seenotify_agent",
				Name:      "classify_failures_total",
				Help:      "Total number of failed classifier calls by reason.",
			},
			[]string{"reason"},
		),
		classifiedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seenotify_agent",
				Name:      "classified_total",
				Help:      "Total number of successful classifications by verdict.",
			},
			[]string{"verdict"},
		),
		backendForwardFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "seenotify_agent",
				Name:      "backend_forward_failures_total",
				Help:      "Total number of failed fire-and-forget backend forwards.",
			},
		),
		reconcileMergedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seenotify_agent",
				Name:      "reconcile_merged_total",
				Help:      "Total number of records merged by spam reconciliation by mode.",
			},
			[]string{"mode"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.eventsConsumedTotal,
		m.eventsMalformedTotal,
		m.duplicatesSuppressedTotal,
		m.recordsEvictedTotal,
		m.persistFailuresTotal,
		m.storeSize,
		m.classifyDuration,
		m.classifyFailuresTotal,
		m.classifiedTotal,
		m.backendForwardFailures,
		m.reconcileMergedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncEventConsumed(kind string) {
	if m == nil {
		return
	}
	m.eventsConsumedTotal.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncEventMalformed(kind string) {
	if m == nil {
		return
	}
	m.eventsMalformedTotal.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncDuplicateSuppressed() {
	if m == nil {
		return
	}
	m.duplicatesSuppressedTotal.Inc()
}

func (m *Metrics) IncRecordEvicted() {
	if m == nil {
		return
	}
	m.recordsEvictedTotal.Inc()
}

func (m *Metrics) IncPersistFailure() {
	if m == nil {
		return
	}
	m.persistFailuresTotal.Inc()
}

func (m *Metrics) SetStoreSize(size int) {
	if m == nil {
		return
	}
	m.storeSize.Set(float64(size))
}

func (m *Metrics) ObserveClassifyDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.classifyDuration.Observe(seconds)
}

func (m *Metrics) IncClassifyFailure(reason string) {
	if m == nil {
		return
	}
	m.classifyFailuresTotal.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncClassified(spam bool) {
	if m == nil {
		return
	}
	verdict := "ham"
	if spam {
		verdict = "spam"
	}
	m.classifiedTotal.WithLabelValues(verdict).Inc()
}

func (m *Metrics) IncBackendForwardFailure() {
	if m == nil {
		return
	}
	m.backendForwardFailures.Inc()
}

func (m *Metrics) IncReconcileMerged(mode string) {
	if m == nil {
		return
	}
	m.reconcileMergedTotal.WithLabelValues(normalizeLabel(mode)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
