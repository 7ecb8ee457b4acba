// Package metrics 注册协调器的 Prometheus 指标，/metrics 由 promhttp 暴露。
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chathub"

var (
	// OnlineSessions 在线会话数
	OnlineSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "online_sessions",
		Help:      "Number of users with an active session.",
	})

	// ActiveCalls 进行中的通话数
	ActiveCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_calls",
		Help:      "Number of call sessions with at least one member.",
	})

	// MessagesRelayed 消息转发结果，result=delivered|stored
	MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_relayed_total",
		Help:      "Messages persisted by the relay, split by live delivery.",
	}, []string{"result"})

	// SignalsRelayed 信令转发结果，result=forwarded|dropped
	SignalsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_relayed_total",
		Help:      "Signaling payloads by kind and outcome.",
	}, []string{"kind", "result"})

	// Frames 上行帧处理结果，result=ok|error|limited
	Frames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_frames_total",
		Help:      "Inbound websocket frames by type and outcome.",
	}, []string{"type", "result"})

	// ProjectionFailures 在线状态投影失败次数，target=store|cache
	ProjectionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "presence_projection_failures_total",
		Help:      "Best-effort presence projection writes that failed.",
	}, []string{"target"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// GinMiddleware 统计 HTTP 请求数与耗时，按路由模板聚合避免高基数
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
