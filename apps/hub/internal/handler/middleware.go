package handler

import (
	"net"
	"net/http"
	"strings"
	"time"

	"ChatHub/apps/hub/internal/svc"
	"ChatHub/consts"
	"ChatHub/pkg/ctxmeta"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/result"

	"github.com/gin-gonic/gin"
)

const (
	headerXRealIP       = "X-Real-IP"
	headerXForwardedFor = "X-Forwarded-For"
	headerXClientIP     = "X-Client-IP"

	// KeyUsername 登录用户名在 gin.Context 中的 key
	KeyUsername = "username"
)

// JWTAuth 校验 Authorization: Bearer <token>，通过后写入 user_uuid / username
func JWTAuth(tokens svc.TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			result.Abort(c, http.StatusUnauthorized, consts.CodeUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			result.Abort(c, http.StatusUnauthorized, consts.CodeUnauthorized)
			return
		}

		// 过期与签名错误都属于正常业务流程，不记录日志
		claims, err := tokens.Parse(parts[1])
		if err != nil {
			result.Abort(c, http.StatusUnauthorized, consts.CodeInvalidToken)
			return
		}

		c.Set(ctxmeta.KeyUserUUID, claims.UserUUID)
		c.Set(KeyUsername, claims.Username)
		c.Request = c.Request.WithContext(ctxmeta.WithUserUUID(c.Request.Context(), claims.UserUUID))
		c.Next()
	}
}

// CurrentUser 当前登录用户 UUID，JWTAuth 之后可用
func CurrentUser(c *gin.Context) string {
	return c.GetString(ctxmeta.KeyUserUUID)
}

// Cors 跨域：回显 Origin 并允许携带凭据
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// GetClientIP 客户端真实 IP
// 优先级：X-Real-IP > X-Forwarded-For 第一跳 > X-Client-IP > RemoteAddr
func GetClientIP(c *gin.Context) string {
	if ip := strings.TrimSpace(c.GetHeader(headerXRealIP)); ip != "" {
		return ip
	}
	if xff := c.GetHeader(headerXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := c.GetHeader(headerXClientIP); ip != "" && net.ParseIP(ip) != nil {
		return ip
	}
	return c.ClientIP()
}

// ClientIP 把客户端 IP 注入 gin.Context 与请求 ctx
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := GetClientIP(c)
		c.Set(ctxmeta.KeyClientIP, ip)
		c.Request = c.Request.WithContext(ctxmeta.WithClientIP(c.Request.Context(), ip))
		c.Next()
	}
}

// GinLogger 记录请求开始；只对 5xx 与超过 2s 的慢请求额外告警
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		ctx := ctxmeta.FromGin(c)

		logger.Debug(ctx, "请求开始",
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.String("query", query),
		)

		c.Next()

		cost := time.Since(start)
		status := c.Writer.Status()
		if status >= http.StatusInternalServerError || cost > 2*time.Second {
			logger.Warn(ctxmeta.FromGin(c), "慢请求或服务端错误",
				logger.Int("status", status),
				logger.String("method", c.Request.Method),
				logger.String("path", path),
				logger.String("query", query),
				logger.String("user-agent", c.Request.UserAgent()),
				logger.String("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()),
				logger.Duration("cost", cost),
			)
		}
	}
}
