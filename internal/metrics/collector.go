// Package metrics exposes Prometheus instrumentation for the tone
// service: request outcomes, cache effectiveness, and upstream cost.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// 📊 Prometheus 指标收集器
// =============================================================================

// Collector 服务指标集合
type Collector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal prometheus.Counter
	cacheFailOpens   prometheus.Counter
	upstreamDuration prometheus.Histogram
	upstreamTokens   prometheus.Counter
}

// NewCollector 创建并注册指标收集器
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toneflow",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toneflow",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		cacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toneflow",
			Name:      "cache_hits_total",
			Help:      "Cache hits by resolved scope (owner or global).",
		}, []string{"scope"}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "toneflow",
			Name:      "cache_misses_total",
			Help:      "Cache misses.",
		}),
		cacheFailOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "toneflow",
			Name:      "cache_fail_open_total",
			Help:      "Lookups that fell through to upstream because the store was unavailable.",
		}),
		upstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "toneflow",
			Name:      "upstream_duration_seconds",
			Help:      "Upstream completion latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		upstreamTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "toneflow",
			Name:      "upstream_tokens_total",
			Help:      "Total tokens consumed by upstream completions.",
		}),
	}

	reg.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.cacheHitsTotal,
		c.cacheMissesTotal,
		c.cacheFailOpens,
		c.upstreamDuration,
		c.upstreamTokens,
	)
	return c
}

// ObserveRequest 记录一次 HTTP 请求
func (c *Collector) ObserveRequest(route, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(route, status).Inc()
	c.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordCacheHit 实现 tone.Recorder
func (c *Collector) RecordCacheHit(scope string) {
	c.cacheHitsTotal.WithLabelValues(scope).Inc()
}

// RecordCacheMiss 实现 tone.Recorder
func (c *Collector) RecordCacheMiss() {
	c.cacheMissesTotal.Inc()
}

// RecordCacheFailOpen 实现 tone.Recorder
func (c *Collector) RecordCacheFailOpen() {
	c.cacheFailOpens.Inc()
}

// RecordUpstream 实现 tone.Recorder
func (c *Collector) RecordUpstream(duration time.Duration, totalTokens int) {
	c.upstreamDuration.Observe(duration.Seconds())
	c.upstreamTokens.Add(float64(totalTokens))
}
