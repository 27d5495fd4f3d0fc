package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once 用来保证指标只注册一次。
	// Prometheus 的 registry 不允许重复注册同名指标，否则会直接 panic。
	once sync.Once

	// HTTPRequestsTotal：累计请求数（Counter）。
	//
	// labels：
	// - method：HTTP 方法，例如 GET/POST
	// - route：路由模板（例如 /api/url/:token；不要用真实 path，否则会产生无限 label）
	// - status：HTTP 状态码字符串
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds：请求耗时分布（Histogram），用于 P95/P99。
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// CacheOperations：缓存操作计数。
	//
	// labels：
	// - layer：local / redis / bloom
	// - op：get / set / check
	// - result：hit / miss / error / ok / reject
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_cache_operations_total",
			Help: "Cache operations by layer, op and result.",
		},
		[]string{"layer", "op", "result"},
	)

	// Resolutions：解析结果。source 为 cache / store / none。
	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_resolutions_total",
			Help: "Token resolutions by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	// Creations：创建结果，outcome 为 ok / conflict / invalid / error。
	Creations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_creations_total",
			Help: "Short link creations by outcome.",
		},
		[]string{"outcome"},
	)

	// ClickEvents：点击事件流水线。stage 为 collected / dropped / flushed / failed。
	ClickEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_click_events_total",
			Help: "Click events by pipeline stage.",
		},
		[]string{"stage"},
	)

	ClickFlushDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shortlink_click_flush_duration_seconds",
			Help:    "Latency of click batch flushes.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			CacheOperations,
			Resolutions,
			Creations,
			ClickEvents,
			ClickFlushDurationSeconds,
		)
	})
}
