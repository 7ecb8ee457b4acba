package handler

import (
	"context"
	"errors"
	"net/http"

	"ChatHub/apps/hub/internal/coordinator"
	"ChatHub/apps/hub/internal/manager"
	"ChatHub/apps/hub/internal/svc"
	"ChatHub/config"
	"ChatHub/consts"
	"ChatHub/pkg/ctxmeta"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/result"
	"ChatHub/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 浏览器、桌面端与本地调试页面来源各异，来源校验交给前置网关
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// WSHandler 处理 /ws 接入：握手鉴权、升级、连接生命周期。
// 上行帧交给 coordinator，本层只负责限流与连接注册。
type WSHandler struct {
	connManager *manager.ConnectionManager
	connectSvc  *svc.ConnectService
	coord       *coordinator.Coordinator
	opts        manager.ClientOptions
	frameRate   rate.Limit
	frameBurst  int
}

// NewWSHandler 创建 WebSocket 入口处理器
func NewWSHandler(connManager *manager.ConnectionManager, connectSvc *svc.ConnectService, coord *coordinator.Coordinator, cfg config.HubConfig) *WSHandler {
	opts := manager.DefaultClientOptions()
	if cfg.SendQueueSize > 0 {
		opts.SendQueueSize = cfg.SendQueueSize
	}
	if cfg.MaxFrameBytes > 0 {
		opts.MaxFrameBytes = cfg.MaxFrameBytes
	}
	limit, burst := rate.Inf, cfg.FrameBurst
	if cfg.FrameRate > 0 {
		limit = rate.Limit(cfg.FrameRate)
	}
	if burst <= 0 {
		burst = 1
	}
	return &WSHandler{
		connManager: connManager,
		connectSvc:  connectSvc,
		coord:       coord,
		opts:        opts,
		frameRate:   limit,
		frameBurst:  burst,
	}
}

// ServeWS 握手流程：
//  1. token 取自 query，缺省时读 Authorization 头；
//  2. 鉴权失败以 HTTP 响应返回，此时尚未升级；
//  3. 升级后进入连接主循环，直到断开。
func (h *WSHandler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = c.GetHeader("Authorization")
	}
	clientIP := c.GetString(ctxmeta.KeyClientIP)
	if clientIP == "" {
		clientIP = GetClientIP(c)
	}

	session, err := h.connectSvc.Authenticate(c.Request.Context(), token, clientIP)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	connID := util.NewUUID()
	connCtx := context.Background()
	if traceID := ctxmeta.TraceIDFromGin(c); traceID != "" {
		connCtx = ctxmeta.WithTraceID(connCtx, traceID)
	}
	connCtx = ctxmeta.WithUserUUID(connCtx, session.UserUUID)
	connCtx = ctxmeta.WithConnID(connCtx, connID)
	connCtx = ctxmeta.WithClientIP(connCtx, session.ClientIP)

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(connCtx, "WebSocket 升级失败",
			logger.ErrorField("error", err),
		)
		return
	}

	h.handleConnection(connCtx, manager.NewClient(conn, connID, session.UserUUID, session.ClientIP, h.opts))
}

// handleConnection 承载单个连接的完整生命周期。
// 同一用户允许多条物理连接并存，在线注册表只认最后一次 join 的那条。
func (h *WSHandler) handleConnection(ctx context.Context, client *manager.Client) {
	if !h.connManager.Register(client) {
		logger.Warn(ctx, "服务关闭中，拒绝新连接")
		client.Close()
		return
	}

	logger.Info(ctx, "WebSocket 连接已建立",
		logger.String("client_ip", client.ClientIP()),
		logger.Int("conn_count", h.connManager.Count()),
	)

	limiter := rate.NewLimiter(h.frameRate, h.frameBurst)
	client.Run(ctx, func(raw []byte) {
		if !limiter.Allow() {
			h.coord.Throttle(ctx, client, raw)
			return
		}
		h.coord.HandleFrame(ctx, client, raw)
	}, func() {
		h.connManager.Unregister(client)
		h.coord.Disconnect(ctx, client)
		logger.Info(ctx, "WebSocket 连接已断开",
			logger.Int("conn_count", h.connManager.Count()),
		)
	})
}

// writeAuthError 握手阶段还是 HTTP，鉴权错误直接以 JSON 返回
func (h *WSHandler) writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, svc.ErrTokenRequired):
		result.Abort(c, http.StatusUnauthorized, consts.CodeUnauthorized)
	case errors.Is(err, svc.ErrTokenInvalid):
		result.Abort(c, http.StatusUnauthorized, consts.CodeInvalidToken)
	default:
		logger.Error(ctxmeta.FromGin(c), "WebSocket 鉴权异常",
			logger.ErrorField("error", err),
		)
		result.Abort(c, http.StatusInternalServerError, consts.CodeInternalError)
	}
}
