// Package metrics implements the performance monitor: request, cache hit,
// miss, and error counters plus latency tracking, exported through a
// Prometheus registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels"`
}

// Snapshot is a point-in-time view of the monitor's counters, shaped for
// UI consumption.
type Snapshot struct {
	Requests       uint64        `json:"requests"`
	CacheHits      uint64        `json:"cache_hits"`
	CacheMisses    uint64        `json:"cache_misses"`
	Errors         uint64        `json:"errors"`
	StaleFallbacks uint64        `json:"stale_fallbacks"`
	AvgLatency     time.Duration `json:"avg_latency"`
	HitRate        float64       `json:"hit_rate"`
}

// Collector counts requests, cache hits/misses, and errors, and tracks
// average remote-call latency.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	// Prometheus metrics
	requestCounter  *prometheus.CounterVec
	cacheHitCounter *prometheus.CounterVec
	errorCounter    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	queueDepth      prometheus.GaugeFunc

	// Internal tracking for the UI snapshot
	requests       uint64
	hits           uint64
	misses         uint64
	errors         uint64
	staleFallbacks uint64
	totalLatency   time.Duration
	latencySamples uint64
}

// NewCollector creates a performance monitor. queueDepth may be nil; when
// set it is sampled on every scrape.
func NewCollector(config *Config, queueDepth func() float64) *Collector {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Namespace: "sheetsync",
		}
	}
	if config.Namespace == "" {
		config.Namespace = "sheetsync"
	}

	c := &Collector{
		config:   config,
		registry: prometheus.NewRegistry(),
	}

	c.requestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "requests_total",
		Help:        "Total remote provider requests by collection and operation",
		ConstLabels: config.Labels,
	}, []string{"collection", "operation"})

	c.cacheHitCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "cache_lookups_total",
		Help:        "Cache lookups by collection and result (hit, miss, stale)",
		ConstLabels: config.Labels,
	}, []string{"collection", "result"})

	c.errorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "errors_total",
		Help:        "Remote provider errors by collection and error code",
		ConstLabels: config.Labels,
	}, []string{"collection", "code"})

	c.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   config.Namespace,
		Name:        "request_duration_seconds",
		Help:        "Remote provider request latency",
		ConstLabels: config.Labels,
		Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"collection", "operation"})

	c.registry.MustRegister(c.requestCounter, c.cacheHitCounter, c.errorCounter, c.requestDuration)

	if queueDepth != nil {
		c.queueDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "queue_active_tasks",
			Help:        "Tasks currently running in the request queue",
			ConstLabels: config.Labels,
		}, queueDepth)
		c.registry.MustRegister(c.queueDepth)
	}

	return c
}

// Registry returns the Prometheus registry for HTTP exposition.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRequest records one remote call and its latency.
func (c *Collector) RecordRequest(collection, operation string, duration time.Duration) {
	c.requestCounter.WithLabelValues(collection, operation).Inc()
	c.requestDuration.WithLabelValues(collection, operation).Observe(duration.Seconds())

	c.mu.Lock()
	c.requests++
	c.totalLatency += duration
	c.latencySamples++
	c.mu.Unlock()
}

// RecordCacheHit records a cache hit for a collection.
func (c *Collector) RecordCacheHit(collection string) {
	c.cacheHitCounter.WithLabelValues(collection, "hit").Inc()

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

// RecordCacheMiss records a cache miss for a collection.
func (c *Collector) RecordCacheMiss(collection string) {
	c.cacheHitCounter.WithLabelValues(collection, "miss").Inc()

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// RecordStaleFallback records a response served from stale cache after a
// failed refresh.
func (c *Collector) RecordStaleFallback(collection string) {
	c.cacheHitCounter.WithLabelValues(collection, "stale").Inc()

	c.mu.Lock()
	c.staleFallbacks++
	c.mu.Unlock()
}

// RecordError records a remote call failure.
func (c *Collector) RecordError(collection, code string) {
	c.errorCounter.WithLabelValues(collection, code).Inc()

	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// Snapshot returns current counter values.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Requests:       c.requests,
		CacheHits:      c.hits,
		CacheMisses:    c.misses,
		Errors:         c.errors,
		StaleFallbacks: c.staleFallbacks,
	}

	if c.latencySamples > 0 {
		snap.AvgLatency = c.totalLatency / time.Duration(c.latencySamples)
	}
	total := c.hits + c.misses
	if total > 0 {
		snap.HitRate = float64(c.hits) / float64(total)
	}

	return snap
}
