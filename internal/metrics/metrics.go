// Package metrics exposes Prometheus collectors for the API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its own registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	publishTotal        *prometheus.CounterVec
	publishDuration     *prometheus.HistogramVec
	rateLimited         *prometheus.CounterVec
	invitesAccepted     prometheus.Counter
}

func New(serviceName string) *Collector {
	prefix := strings.ReplaceAll(serviceName, "-", "_")
	c := &Collector{registry: prometheus.NewRegistry()}

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	c.publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_publish_total",
			Help: "Publish attempts by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)
	c.publishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_publish_platform_seconds",
			Help:    "Time spent in the platform adapter",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"platform"},
	)
	c.rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"operation"},
	)
	c.invitesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_invites_accepted_total",
		Help: "Team invitations accepted",
	})

	c.registry.MustRegister(
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.publishTotal,
		c.publishDuration,
		c.rateLimited,
		c.invitesAccepted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	route := RouteLabel(path)
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObservePublish records one dispatcher outcome, e.g. "success", "no_content".
func (c *Collector) ObservePublish(platform, outcome string, adapterTime time.Duration) {
	if c == nil {
		return
	}
	c.publishTotal.WithLabelValues(platform, outcome).Inc()
	if adapterTime > 0 {
		c.publishDuration.WithLabelValues(platform).Observe(adapterTime.Seconds())
	}
}

func (c *Collector) RateLimited(operation string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(operation).Inc()
}

func (c *Collector) InviteAccepted() {
	if c == nil {
		return
	}
	c.invitesAccepted.Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

var staticSegments = map[string]struct{}{
	"api": {}, "health": {}, "ready": {}, "publish": {}, "teams": {}, "members": {},
	"content": {}, "status": {}, "share": {}, "activity": {}, "platform-accounts": {},
	"invites": {}, "invite": {}, "accept": {}, "annotations": {}, "annotation-comments": {},
	"platforms": {}, "dev-connect": {}, "metrics": {}, "twitter": {}, "linkedin": {},
}

// RouteLabel collapses ids in a request path so label cardinality stays bounded.
func RouteLabel(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	for i, part := range parts {
		if _, ok := staticSegments[part]; !ok {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}
