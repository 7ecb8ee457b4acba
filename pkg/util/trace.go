package util

import (
	"ChatHub/pkg/ctxmeta"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderXRequestID = "X-Request-ID"

// TraceLogger 追踪中间件，生成或获取 trace_id 并存入 Gin 上下文
func TraceLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 优先沿用上游（Nginx/网关）传入的请求 ID
		traceId := c.GetHeader(HeaderXRequestID)

		// 2. 没有就自己生成
		if traceId == "" {
			traceId = uuid.New().String()
		}

		// 3. 放入 Gin 上下文与请求 ctx，供 handler 和日志使用
		c.Set(ctxmeta.KeyTraceID, traceId)
		c.Request = c.Request.WithContext(ctxmeta.WithTraceID(c.Request.Context(), traceId))

		// 4. 回写响应头，方便客户端带着 ID 排障
		c.Header(HeaderXRequestID, traceId)

		c.Next()
	}
}

// NewUUID 生成新的 UUID
func NewUUID() string {
	return uuid.New().String()
}
