// Package ctxmeta 统一管理 context 中透传的链路元数据。
// 日志、异步任务、重试消息都从这里取 trace_id/user_uuid/conn_id，避免各处手写 key。
package ctxmeta

import (
	"context"

	"github.com/gin-gonic/gin"
)

const (
	KeyTraceID  = "trace_id"
	KeyUserUUID = "user_uuid"
	KeyConnID   = "conn_id"
	KeyClientIP = "client_ip"
)

type ctxKey string

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey(KeyTraceID), traceID)
}

func WithUserUUID(ctx context.Context, userUUID string) context.Context {
	return context.WithValue(ctx, ctxKey(KeyUserUUID), userUUID)
}

func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, ctxKey(KeyConnID), connID)
}

func WithClientIP(ctx context.Context, clientIP string) context.Context {
	return context.WithValue(ctx, ctxKey(KeyClientIP), clientIP)
}

func TraceID(ctx context.Context) string  { return get(ctx, KeyTraceID) }
func UserUUID(ctx context.Context) string { return get(ctx, KeyUserUUID) }
func ConnID(ctx context.Context) string   { return get(ctx, KeyConnID) }
func ClientIP(ctx context.Context) string { return get(ctx, KeyClientIP) }

// TraceIDFromGin 读取 TraceLogger 中间件写入 gin.Context 的 trace_id。
func TraceIDFromGin(c *gin.Context) string {
	return c.GetString(KeyTraceID)
}

// FromGin 把 gin.Context 上的元数据搬到请求 ctx 上，供 service 层使用。
func FromGin(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if traceID := c.GetString(KeyTraceID); traceID != "" {
		ctx = WithTraceID(ctx, traceID)
	}
	if userUUID := c.GetString(KeyUserUUID); userUUID != "" {
		ctx = WithUserUUID(ctx, userUUID)
	}
	if clientIP := c.GetString(KeyClientIP); clientIP != "" {
		ctx = WithClientIP(ctx, clientIP)
	}
	return ctx
}

// Detach 复制链路元数据到一个不会被取消的新 ctx。
// 用于异步任务：请求结束后父 ctx 会被取消，但日志仍需要 trace_id。
func Detach(parent context.Context) context.Context {
	ctx := context.Background()
	if parent == nil {
		return ctx
	}
	if v := TraceID(parent); v != "" {
		ctx = WithTraceID(ctx, v)
	}
	if v := UserUUID(parent); v != "" {
		ctx = WithUserUUID(ctx, v)
	}
	if v := ConnID(parent); v != "" {
		ctx = WithConnID(ctx, v)
	}
	return ctx
}

func get(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ctxKey(key)).(string)
	return v
}
