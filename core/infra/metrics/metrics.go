package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SecurityMetrics counts security decisions, events and policy refreshes.
type SecurityMetrics interface {
	IncSecurityEvent(eventType, severity string)
	IncPipelineDecision(operation, decision string)
	IncRateLimited(route string)
	IncPolicyLoad(source string)
}

// GatewayMetrics captures request metrics for the API gateway.
type GatewayMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements SecurityMetrics and GatewayMetrics without emitting anything.
type Noop struct{}

func (Noop) IncSecurityEvent(string, string)                {}
func (Noop) IncPipelineDecision(string, string)             {}
func (Noop) IncRateLimited(string)                          {}
func (Noop) IncPolicyLoad(string)                           {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements SecurityMetrics backed by Prometheus counters.
type Prom struct {
	securityEvents *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
	policyLoads    *prometheus.CounterVec
	once           sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Security events by type and severity",
		}, []string{"type", "severity"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_decisions_total",
			Help:      "Request security pipeline decisions by operation",
		}, []string{"operation", "decision"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter per route",
		}, []string{"route"}),
		policyLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_loads_total",
			Help:      "Policy resolutions by source (cache, store, default, stale)",
		}, []string{"source"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.securityEvents, p.decisions, p.rateLimited, p.policyLoads)
	})
}

func (p *Prom) IncSecurityEvent(eventType, severity string) {
	p.securityEvents.WithLabelValues(eventType, severity).Inc()
}

func (p *Prom) IncPipelineDecision(operation, decision string) {
	p.decisions.WithLabelValues(operation, decision).Inc()
}

func (p *Prom) IncRateLimited(route string) {
	p.rateLimited.WithLabelValues(route).Inc()
}

func (p *Prom) IncPolicyLoad(source string) {
	p.policyLoads.WithLabelValues(source).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Gateway metrics ---

type gatewayProm struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	once     sync.Once
}

// NewGatewayProm constructs a GatewayMetrics with counters/histograms.
func NewGatewayProm(namespace string) GatewayMetrics {
	g := &gatewayProm{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	g.once.Do(func() {
		prometheus.MustRegister(g.requests, g.latency)
	})
	return g
}

func (g *gatewayProm) ObserveRequest(method, route, status string, durationSeconds float64) {
	g.requests.WithLabelValues(method, route, status).Inc()
	g.latency.WithLabelValues(method, route).Observe(durationSeconds)
}
