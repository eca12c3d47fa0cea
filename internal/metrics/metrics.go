package metrics

import (
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests."},
		[]string{"handler", "method", "code"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms..~10s
		},
		[]string{"handler", "method"},
	)
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "channel_rate_limited_total", Help: "Channel calls rejected by the rate limiter."},
	)

	// Channel
	ChannelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "channel_calls_total", Help: "Channel calls by method and outcome."},
		[]string{"method", "status"}, // success | error | notImplemented
	)
	ChannelDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "channel_call_duration_seconds",
			Help:    "Channel call latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms..~8s
		},
		[]string{"method"},
	)
	ChannelErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "channel_errors_total", Help: "Typed channel errors."},
		[]string{"code"}, // PERMISSION_DENIED | SMS_READ_ERROR | INTERNAL_ERROR
	)

	// Store
	StoreRowsRead = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "store_rows_read",
			Help:    "Messages returned per inbox read.",
			Buckets: prometheus.LinearBuckets(0, 100, 11), // 0,100,...,1000
		},
	)

	// Permission
	PermissionPrompts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "permission_prompts_total", Help: "Resolved permission prompts."},
		[]string{"outcome"}, // granted | denied | error
	)
)

var registerOnce sync.Once

// MustRegister registers the bridge collectors with the default registry
// once per process. The default registry already carries the Go and process
// collectors.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequests, HTTPDuration, RateLimited,
			ChannelCalls, ChannelDuration, ChannelErrors,
			StoreRowsRead, PermissionPrompts,
		)
	})
}

// PromptOutcome maps a resolved prompt to its label.
func PromptOutcome(granted bool, failed bool) string {
	switch {
	case failed:
		return "error"
	case granted:
		return "granted"
	default:
		return "denied"
	}
}

// PGXPoolStats exports pgxpool stats for the postgres store.
type PGXPoolStats struct {
	pool *pgxpool.Pool

	conns          prometheus.Gauge
	idle           prometheus.Gauge
	acquireCount   prometheus.Gauge
	acquireLatency prometheus.Gauge
}

func NewPGXPoolStats(reg prometheus.Registerer, pool *pgxpool.Pool) *PGXPoolStats {
	m := &PGXPoolStats{
		pool: pool,
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_conns", Help: "Total connections in pool.",
		}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_idle_conns", Help: "Idle connections in pool.",
		}),
		acquireCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_acquires", Help: "Cumulative pool acquires.",
		}),
		acquireLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_acquire_seconds", Help: "Cumulative acquire latency.",
		}),
	}
	reg.MustRegister(m.conns, m.idle, m.acquireCount, m.acquireLatency)
	return m
}

// Start samples the pool every interval until stop closes.
func (m *PGXPoolStats) Start(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			m.Sample()
		}
	}
}

func (m *PGXPoolStats) Sample() {
	s := m.pool.Stat()
	m.conns.Set(float64(s.TotalConns()))
	m.idle.Set(float64(s.IdleConns()))
	// pgxpool reports running totals, so these are gauges of the total.
	m.acquireCount.Set(float64(s.AcquireCount()))
	m.acquireLatency.Set(s.AcquireDuration().Seconds())
}
