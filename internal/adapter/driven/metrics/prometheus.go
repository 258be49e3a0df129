// Package metrics exposes Notion call, cache and rate limiter telemetry in
// Prometheus format.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
	"github.com/ericfisherdev/notionvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CallObserver = (*Recorder)(nil)

const namespace = "notionvault"

// StatsSource is polled on every scrape for cache and limiter gauges.
type StatsSource interface {
	Stats() model.ServiceStats
}

// Recorder owns a private registry so tests and multiple instances never
// collide on the global default registry.
type Recorder struct {
	registry *prometheus.Registry

	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with Go runtime and process collectors
// registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notion",
				Name:      "calls_total",
				Help:      "Total Notion API calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "notion",
				Name:      "call_duration_seconds",
				Help:      "Notion API call duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"op"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Response cache lookups by operation and result",
			},
			[]string{"op", "result"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	r.registry.MustRegister(
		r.calls,
		r.callDuration,
		r.cacheLookups,
		r.httpRequests,
		r.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// WatchStats registers gauges read from src at scrape time.
func (r *Recorder) WatchStats(src StatsSource) {
	r.registry.MustRegister(&statsCollector{src: src})
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveCall records one remote call.
func (r *Recorder) ObserveCall(op string, err error, elapsed time.Duration) {
	r.calls.WithLabelValues(op, outcome(err)).Inc()
	r.callDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveCacheLookup records one cache lookup.
func (r *Recorder) ObserveCacheLookup(op string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(op, result).Inc()
}

// ObserveRequest records one inbound HTTP request. route is the matched mux
// pattern, not the raw path, to keep label cardinality bounded.
func (r *Recorder) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// outcome classifies an error into a low-cardinality label value.
func outcome(err error) string {
	var (
		apiErr     *model.RemoteAPIError
		netErr     *model.NetworkError
		invalidErr *model.InvalidResponseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &apiErr):
		return string(apiErr.Kind())
	case errors.As(err, &netErr):
		return "network_error"
	case errors.As(err, &invalidErr):
		return "invalid_response"
	default:
		return "error"
	}
}

var (
	cacheEntriesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "entries"),
		"Response cache entries by state",
		[]string{"state"}, nil,
	)
	limiterRequestsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "ratelimit", "requests_in_window"),
		"Requests in the current sliding window per app and workspace",
		[]string{"key"}, nil,
	)
	limiterUsageDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "ratelimit", "usage_percent"),
		"Sliding window usage as a percentage of the limit",
		[]string{"key"}, nil,
	)
	activeServicesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "active_services"),
		"Workspace services currently held by the provider",
		nil, nil,
	)
)

// statsCollector turns a ServiceStats snapshot into const gauges.
type statsCollector struct {
	src StatsSource
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cacheEntriesDesc
	ch <- limiterRequestsDesc
	ch <- limiterUsageDesc
	ch <- activeServicesDesc
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.src.Stats()

	ch <- prometheus.MustNewConstMetric(cacheEntriesDesc, prometheus.GaugeValue, float64(stats.Cache.Active), "active")
	ch <- prometheus.MustNewConstMetric(cacheEntriesDesc, prometheus.GaugeValue, float64(stats.Cache.Expired), "expired")
	ch <- prometheus.MustNewConstMetric(activeServicesDesc, prometheus.GaugeValue, float64(stats.ActiveServices))

	for key, s := range stats.RateLimits {
		ch <- prometheus.MustNewConstMetric(limiterRequestsDesc, prometheus.GaugeValue, float64(s.RequestsInWindow), key)
		ch <- prometheus.MustNewConstMetric(limiterUsageDesc, prometheus.GaugeValue, s.LimitPercent, key)
	}
}
