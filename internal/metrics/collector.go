// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// Job 指标
	jobsSubmitted    *prometheus.CounterVec
	jobsFinished     *prometheus.CounterVec
	jobsRunning      *prometheus.GaugeVec
	jobDuration      *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	partialSnapshots *prometheus.CounterVec

	// 分析服务指标
	analyzerRequestsTotal   *prometheus.CounterVec
	analyzerRequestDuration *prometheus.HistogramVec
	analyzerPromptTokens    *prometheus.CounterVec
	analyzerFeatures        *prometheus.CounterVec

	// 虚拟运镜指标
	virtualMotionTotal *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// Job 指标
	c.jobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of submitted analysis jobs",
		},
		[]string{"mode"},
	)

	c.jobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of analysis jobs reaching a terminal status",
		},
		[]string{"mode", "status", "error_kind"},
	)

	c.jobsRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Number of analysis jobs currently running",
		},
		[]string{"mode"},
	)

	c.jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Analysis job wall time in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"mode", "status"},
	)

	c.stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"mode", "stage", "status"},
	)

	c.partialSnapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_snapshots_total",
			Help:      "Total number of partial result snapshots written",
		},
		[]string{"mode"},
	)

	// 分析服务指标
	c.analyzerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyzer_requests_total",
			Help:      "Total number of multimodal analyzer requests",
		},
		[]string{"model", "call", "status"},
	)

	c.analyzerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analyzer_request_duration_seconds",
			Help:      "Multimodal analyzer request duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"model", "call"},
	)

	c.analyzerPromptTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyzer_prompt_tokens_total",
			Help:      "Estimated text prompt tokens sent to the analyzer",
		},
		[]string{"model", "call"},
	)

	c.analyzerFeatures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyzer_features_total",
			Help:      "Normalized features returned by the analyzer",
		},
		[]string{"category"},
	)

	// 虚拟运镜指标
	c.virtualMotionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "virtual_motion_jobs_total",
			Help:      "Total number of virtual motion preview jobs by final status",
		},
		[]string{"status", "mock"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🎬 Job 指标记录
// =============================================================================

// RecordJobSubmitted 记录任务提交，并将运行中任务数加一
func (c *Collector) RecordJobSubmitted(mode string) {
	c.jobsSubmitted.WithLabelValues(mode).Inc()
	c.jobsRunning.WithLabelValues(mode).Inc()
}

// RecordJobFinished 记录任务进入终态；errorKind 在成功时为空
func (c *Collector) RecordJobFinished(mode, status, errorKind string, duration time.Duration) {
	c.jobsFinished.WithLabelValues(mode, status, errorKind).Inc()
	c.jobsRunning.WithLabelValues(mode).Dec()
	c.jobDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
}

// RecordStage 记录单个阶段耗时
func (c *Collector) RecordStage(mode, stage, status string, duration time.Duration) {
	c.stageDuration.WithLabelValues(mode, stage, status).Observe(duration.Seconds())
}

// RecordPartialSnapshot 记录一次部分结果写入
func (c *Collector) RecordPartialSnapshot(mode string) {
	c.partialSnapshots.WithLabelValues(mode).Inc()
}

// =============================================================================
// 🤖 分析服务指标记录
// =============================================================================

// RecordAnalyzerRequest 记录一次分析服务调用；call 为 boundaries 或 features
func (c *Collector) RecordAnalyzerRequest(model, call, status string, duration time.Duration, promptTokens int) {
	c.analyzerRequestsTotal.WithLabelValues(model, call, status).Inc()
	c.analyzerRequestDuration.WithLabelValues(model, call).Observe(duration.Seconds())
	if promptTokens > 0 {
		c.analyzerPromptTokens.WithLabelValues(model, call).Add(float64(promptTokens))
	}
}

// RecordFeatures 按类别累计规范化后的特征数
func (c *Collector) RecordFeatures(category string, n int) {
	c.analyzerFeatures.WithLabelValues(category).Add(float64(n))
}

// RecordVirtualMotion 记录虚拟运镜子任务结果
func (c *Collector) RecordVirtualMotion(status string, mock bool) {
	m := "false"
	if mock {
		m = "true"
	}
	c.virtualMotionTotal.WithLabelValues(status, m).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
