package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"ChatHub/apps/hub/internal/handler"
	"ChatHub/apps/hub/internal/metrics"
	"ChatHub/apps/hub/internal/svc"
	"ChatHub/config"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

// Deps 组装路由所需的处理器
type Deps struct {
	WS        *handler.WSHandler
	API       *handler.APIHandler
	Tokens    svc.TokenParser
	Limiter   *handler.RedisRateLimiter // 可为 nil
	Blacklist *handler.Blacklist        // 可为 nil
}

// Server 同时承载 HTTP（REST + /ws + /metrics）与内部 gRPC 健康检查
type Server struct {
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	grpcAddr   string
}

// New 构建 Gin 路由：
//   - GET /health   健康检查
//   - GET /metrics  Prometheus 拉取
//   - GET /ws       WebSocket 接入
//   - /api/v1/...   REST，按 IP 限流
func New(cfg config.HubConfig, d Deps) *Server {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "" {
		ginMode = gin.ReleaseMode
	}
	gin.SetMode(ginMode)

	hs := health.NewServer()
	hs.SetServingStatus("", healthgrpc.HealthCheckResponse_SERVING)
	gs := grpc.NewServer()
	healthgrpc.RegisterHealthServer(gs, hs)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewEngine(d),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		grpcServer: gs,
		health:     hs,
		grpcAddr:   cfg.GRPCAddr,
	}
}

// NewEngine 只构建路由，便于测试直接驱动
func NewEngine(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(util.TraceLogger())
	r.Use(handler.ClientIP())
	r.Use(handler.GinLogger())
	r.Use(metrics.GinMiddleware())
	r.Use(handler.Cors())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", d.WS.ServeWS)

	api := r.Group("/api/v1", handler.IPRateLimit(d.Limiter, d.Blacklist))
	d.API.RegisterRoutes(api, handler.JWTAuth(d.Tokens))
	return r
}

// Start 启动 gRPC（配置了地址时）与 HTTP 监听，阻塞到 HTTP 退出。
// 正常关闭时返回 http.ErrServerClosed。
func (s *Server) Start(ctx context.Context) error {
	if s.grpcAddr != "" {
		lis, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info(ctx, "gRPC 健康检查服务启动",
				logger.String("addr", s.grpcAddr),
			)
			if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Error(ctx, "gRPC 服务异常退出",
					logger.ErrorField("error", err),
				)
			}
		}()
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown 先把健康状态置为 NOT_SERVING，再停 gRPC 与 HTTP。
// 调用方需要传入带超时的 ctx。
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	return s.httpServer.Shutdown(ctx)
}
