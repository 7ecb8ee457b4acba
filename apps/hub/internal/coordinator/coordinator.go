// Package coordinator 把 /ws 上行帧映射到各核心组件，并负责断线清理。
//
// 任何失败都以 error 帧回给发起连接，不会中断连接，也不会把 panic 抛出连接边界。
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"ChatHub/apps/hub/internal/apperr"
	"ChatHub/apps/hub/internal/call"
	"ChatHub/apps/hub/internal/friend"
	"ChatHub/apps/hub/internal/metrics"
	"ChatHub/apps/hub/internal/presence"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/apps/hub/internal/relay"
	"ChatHub/apps/hub/internal/repository"
	"ChatHub/apps/hub/internal/signaling"
	"ChatHub/model"
	"ChatHub/pkg/ctxmeta"
	"ChatHub/pkg/keylock"
	"ChatHub/pkg/logger"
)

// MaxStatusLength 状态文本最大长度（字符）
const MaxStatusLength = 100

// errJoinRequired 通话与信令只对已 join 的当前连接开放
var errJoinRequired = apperr.Validation("join before calls or signaling")

// Conn 已通过握手认证的连接
type Conn interface {
	presence.Handle
	// UserID 握手时认证出的用户身份
	UserID() string
}

// Deps 协调器依赖的组件
type Deps struct {
	Users     repository.IUserRepository
	Presence  *presence.Registry
	Relay     *relay.MessageRelay
	Friends   *friend.Workflow
	Calls     *call.Manager
	Signaling *signaling.Relay
}

// Coordinator 在线协调器
type Coordinator struct {
	users     repository.IUserRepository
	presence  *presence.Registry
	relay     *relay.MessageRelay
	friends   *friend.Workflow
	calls     *call.Manager
	signaling *signaling.Relay
	sessions  *keylock.KeyLock // 按用户串行 join、断线清理与入会
	now       func() time.Time
}

// New 创建协调器
func New(d Deps) *Coordinator {
	return &Coordinator{
		users:     d.Users,
		presence:  d.Presence,
		relay:     d.Relay,
		friends:   d.Friends,
		calls:     d.Calls,
		signaling: d.Signaling,
		sessions:  keylock.New(),
		now:       time.Now,
	}
}

func (c *Coordinator) Presence() *presence.Registry { return c.presence }
func (c *Coordinator) Relay() *relay.MessageRelay    { return c.relay }
func (c *Coordinator) Friends() *friend.Workflow     { return c.friends }
func (c *Coordinator) Calls() *call.Manager          { return c.calls }

// HandleFrame 解析并处理一帧原始数据，失败时向 conn 回 error 帧
func (c *Coordinator) HandleFrame(ctx context.Context, conn Conn, raw []byte) {
	env, err := protocol.ParseEnvelope(raw)
	if err != nil {
		metrics.Frames.WithLabelValues("invalid", "error").Inc()
		c.replyError(ctx, conn, "", apperr.Validation("malformed frame: "+err.Error()))
		return
	}
	c.Dispatch(ctx, conn, env)
}

// Dispatch 处理一个已解析的上行帧
func (c *Coordinator) Dispatch(ctx context.Context, conn Conn, env *protocol.Envelope) {
	ctx = ctxmeta.WithConnID(ctxmeta.WithUserUUID(ctx, conn.UserID()), conn.ID())
	label := frameLabel(env.Type)

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "处理上行帧 panic",
				logger.String("type", env.Type),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			metrics.Frames.WithLabelValues(label, "error").Inc()
			c.replyError(ctx, conn, env.Type, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := c.route(ctx, conn, env); err != nil {
		metrics.Frames.WithLabelValues(label, "error").Inc()
		c.replyError(ctx, conn, env.Type, err)
		return
	}
	metrics.Frames.WithLabelValues(label, "ok").Inc()
}

func (c *Coordinator) route(ctx context.Context, conn Conn, env *protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeJoin:
		return c.join(ctx, conn, env)
	case protocol.TypeSendMessage:
		var d protocol.SendMessageData
		if err := decode(env, &d); err != nil {
			return err
		}
		_, err := c.relay.Send(ctx, conn.UserID(), d.ReceiverID, d.Body)
		return err
	case protocol.TypeMarkRead:
		var d protocol.MarkReadData
		if err := decode(env, &d); err != nil {
			return err
		}
		_, err := c.relay.MarkRead(ctx, conn.UserID(), d.PeerID)
		return err
	case protocol.TypeStartCall:
		var d protocol.StartCallData
		if err := decode(env, &d); err != nil {
			return err
		}
		return c.enterCall(conn, func(userID string) error {
			_, err := c.calls.Start(ctx, userID, d.CalleeID)
			return err
		})
	case protocol.TypeJoinCall:
		var d protocol.JoinCallData
		if err := decode(env, &d); err != nil {
			return err
		}
		return c.enterCall(conn, func(userID string) error {
			_, err := c.calls.Join(ctx, d.CallID, userID)
			return err
		})
	case protocol.TypeLeaveCall:
		callID, ok := c.calls.Leave(ctx, conn.UserID())
		if !ok {
			return apperr.ErrNotInCall
		}
		c.reply(conn, protocol.TypeCallLeft, protocol.CallLeftData{CallID: callID})
		return nil
	case protocol.TypeSignal, protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeCandidate:
		var d protocol.SignalData
		if err := decode(env, &d); err != nil {
			return err
		}
		if env.Type != protocol.TypeSignal {
			d.Kind = env.Type
		}
		if _, current := c.presence.IsCurrent(conn); !current {
			return errJoinRequired
		}
		_, err := c.signaling.Relay(ctx, d.Kind, conn.UserID(), d.ToID, d.Payload)
		return err
	case protocol.TypeUpdateStatus:
		var d protocol.UpdateStatusData
		if err := decode(env, &d); err != nil {
			return err
		}
		return c.UpdateStatus(ctx, conn.UserID(), d.Status)
	case protocol.TypeHeartbeat:
		c.reply(conn, protocol.TypeHeartbeatAck, protocol.HeartbeatAckData{Timestamp: c.now().UnixMilli()})
		return nil
	default:
		return apperr.ErrUnsupportedFrame
	}
}

// enterCall 在用户锁内确认 conn 仍是当前会话后再入会，
// 保证断线清理时通话成员一定有对应的在线会话
func (c *Coordinator) enterCall(conn Conn, enter func(userID string) error) error {
	unlock := c.sessions.Lock(conn.UserID())
	defer unlock()
	userID, current := c.presence.IsCurrent(conn)
	if !current {
		return errJoinRequired
	}
	return enter(userID)
}

// join 绑定连接与用户。帧内 userId 必须与握手身份一致。
func (c *Coordinator) join(ctx context.Context, conn Conn, env *protocol.Envelope) error {
	var d protocol.JoinData
	if err := decode(env, &d); err != nil {
		return err
	}
	userID := conn.UserID()
	if userID == "" {
		return apperr.Validation("connection is not authenticated")
	}
	if d.UserID != "" && d.UserID != userID {
		return apperr.Validation("userId does not match authenticated identity")
	}

	u, err := c.users.GetByUUID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return apperr.ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}
	profile := presence.Profile{
		Username: u.Username,
		Avatar:   u.Avatar,
		Status:   u.Status,
		Level:    u.Level,
	}
	if p := d.Profile; p != nil {
		if profile.Avatar == "" {
			profile.Avatar = p.Avatar
		}
		if p.Status != "" {
			profile.Status = p.Status
		}
	}

	unlock := c.sessions.Lock(userID)
	replaced := c.presence.Join(ctx, userID, conn, profile)
	unlock()
	if replaced != nil {
		logger.Info(ctx, "旧连接被新连接取代",
			logger.String("old_conn_id", replaced.ID()),
		)
	}
	c.reply(conn, protocol.TypeJoined, protocol.JoinedData{
		UserID:      userID,
		OnlineUsers: c.presence.OnlineUserIDs(),
	})
	return nil
}

// UpdateStatus 持久化状态文本，更新在线快照并广播 profileUpdated
func (c *Coordinator) UpdateStatus(ctx context.Context, userID, status string) error {
	status = strings.TrimSpace(status)
	if userID == "" || status == "" {
		return apperr.Validation("status is required")
	}
	if utf8.RuneCountInString(status) > MaxStatusLength {
		return apperr.Validation(fmt.Sprintf("status must be at most %d characters", MaxStatusLength))
	}

	if err := c.users.UpdateProfile(ctx, userID, repository.ProfilePatch{Status: &status}); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return apperr.ErrUserNotFound
		}
		return fmt.Errorf("update status: %w", err)
	}
	c.presence.UpdateProfile(userID, func(p *presence.Profile) { p.Status = status })
	c.presence.Broadcast(protocol.Frame{
		Type: protocol.TypeProfileUpdated,
		Data: protocol.ProfileUpdatedData{UserID: userID, Status: status},
	})
	return nil
}

// IsOnline 用户是否在线
func (c *Coordinator) IsOnline(userID string) bool {
	return c.presence.IsOnline(userID)
}

// SyncProfile 资料经 REST 修改后同步到在线快照；状态文本变化时广播 profileUpdated
func (c *Coordinator) SyncProfile(ctx context.Context, u *model.UserInfo) {
	var statusChanged bool
	online := c.presence.UpdateProfile(u.Uuid, func(p *presence.Profile) {
		statusChanged = p.Status != u.Status
		p.Username = u.Username
		p.Avatar = u.Avatar
		p.Status = u.Status
		p.Level = u.Level
	})
	if online && statusChanged {
		c.presence.Broadcast(protocol.Frame{
			Type: protocol.TypeProfileUpdated,
			Data: protocol.ProfileUpdatedData{UserID: u.Uuid, Status: u.Status},
		})
		logger.Debug(ctx, "资料变更已广播",
			logger.String("user_uuid", u.Uuid),
		)
	}
}

// Disconnect 连接断开时同步清理。
// 当前会话断开：先退出通话再下线。过期连接断开：用户已无任何在线会话时同样退出通话，
// 否则通话成员归属新连接，保持不动。整个过程持有用户锁，不会与同一用户的 join 交错。
func (c *Coordinator) Disconnect(ctx context.Context, conn Conn) {
	userID := conn.UserID()
	unlock := c.sessions.Lock(userID)
	defer unlock()

	if _, current := c.presence.IsCurrent(conn); current {
		c.leaveCall(ctx, userID)
		c.presence.Leave(ctx, conn)
		return
	}

	c.presence.Leave(ctx, conn)
	if userID != "" && !c.presence.IsOnline(userID) {
		c.leaveCall(ctx, userID)
		return
	}
	logger.Debug(ctx, "过期连接断开，跳过清理",
		logger.String("conn_id", conn.ID()),
		logger.String("user_uuid", userID),
	)
}

func (c *Coordinator) leaveCall(ctx context.Context, userID string) {
	if callID, ok := c.calls.Leave(ctx, userID); ok {
		logger.Info(ctx, "断线退出通话",
			logger.String("user_uuid", userID),
			logger.String("call_id", callID),
		)
	}
}

func (c *Coordinator) reply(conn Conn, frameType string, data any) {
	raw, err := protocol.Encode(protocol.Frame{Type: frameType, Data: data})
	if err != nil {
		logger.Error(context.Background(), "回复帧序列化失败",
			logger.String("type", frameType),
			logger.ErrorField("error", err),
		)
		return
	}
	conn.Push(raw)
}

func (c *Coordinator) replyError(ctx context.Context, conn Conn, requestType string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		logger.Error(ctx, "处理上行帧失败",
			logger.String("type", requestType),
			logger.ErrorField("error", err),
		)
	} else {
		logger.Debug(ctx, "上行帧被拒绝",
			logger.String("type", requestType),
			logger.ErrorField("error", err),
		)
	}
	c.reply(conn, protocol.TypeError, protocol.ErrorData{
		Code:        apperr.CodeOf(err),
		Message:     apperr.MessageOf(err),
		RequestType: requestType,
	})
}

// Throttle 传输层限流时调用：帧不进入路由，只计数并回 error 帧
func (c *Coordinator) Throttle(ctx context.Context, conn Conn, raw []byte) {
	requestType := ""
	if env, err := protocol.ParseEnvelope(raw); err == nil {
		requestType = env.Type
	}
	metrics.Frames.WithLabelValues(frameLabel(requestType), "limited").Inc()
	c.replyError(ctx, conn, requestType, apperr.ErrRateLimited)
}

func decode(env *protocol.Envelope, v any) error {
	if err := env.Decode(v); err != nil {
		return apperr.Validation("invalid data for " + env.Type + ": " + err.Error())
	}
	return nil
}

var knownTypes = map[string]struct{}{
	protocol.TypeJoin: {}, protocol.TypeSendMessage: {}, protocol.TypeMarkRead: {},
	protocol.TypeStartCall: {}, protocol.TypeJoinCall: {}, protocol.TypeLeaveCall: {},
	protocol.TypeSignal: {}, protocol.TypeOffer: {}, protocol.TypeAnswer: {},
	protocol.TypeCandidate: {}, protocol.TypeUpdateStatus: {}, protocol.TypeHeartbeat: {},
}

// frameLabel 未知类型统一归为 unknown，避免指标高基数
func frameLabel(t string) string {
	if _, ok := knownTypes[t]; ok {
		return t
	}
	return "unknown"
}
