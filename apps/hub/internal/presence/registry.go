// Package presence 维护“谁此刻在线”：用户 ↔ 连接句柄的进程内注册表。
//
// 同一用户以最后一次 join 为准，旧连接不会被关闭，只是不再接收推送；
// 旧连接断开时按句柄身份判断，不会把新会话标记为离线。
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"ChatHub/apps/hub/internal/metrics"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/pkg/logger"
)

// Handle 一条在线连接。实现必须可比较（通常是指针），注册表按句柄身份区分连接。
type Handle interface {
	// ID 连接唯一标识，只用于日志与投影
	ID() string
	// Push 非阻塞投递一帧，连接不可写或队列满时返回 false
	Push(frame []byte) bool
}

// Profile 会话上的资料快照
type Profile struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Status   string `json:"status,omitempty"`
	Level    int    `json:"level"`
}

// Projector 在线状态的持久化投影，必须不阻塞调用方
type Projector interface {
	Online(ctx context.Context, userID, connID string, at time.Time)
	Offline(ctx context.Context, userID string, at time.Time)
}

type session struct {
	handle  Handle
	profile Profile
}

// Registry 在线会话注册表
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session // userID → session
	owners   map[Handle]string   // handle → userID

	projector Projector
	now       func() time.Time
}

// NewRegistry 创建注册表，projector 可为 nil
func NewRegistry(projector Projector) *Registry {
	return &Registry{
		sessions:  make(map[string]*session),
		owners:    make(map[Handle]string),
		projector: projector,
		now:       time.Now,
	}
}

// Join 注册或替换 userID 的会话，向所有会话广播上线。
// 返回被替换的旧句柄（没有时为 nil）。同一句柄此前绑定的其他用户会先被下线。
func (r *Registry) Join(ctx context.Context, userID string, h Handle, profile Profile) (replaced Handle) {
	profile.UserID = userID

	r.mu.Lock()
	var evicted string
	if prev, ok := r.owners[h]; ok && prev != userID {
		if s := r.sessions[prev]; s != nil && s.handle == h {
			delete(r.sessions, prev)
			evicted = prev
		}
	}
	if old, ok := r.sessions[userID]; ok && old.handle != h {
		replaced = old.handle
		delete(r.owners, old.handle)
	}
	r.sessions[userID] = &session{handle: h, profile: profile}
	r.owners[h] = userID
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.OnlineSessions.Set(float64(count))
	at := r.now()

	if evicted != "" {
		r.announce(ctx, evicted, false, "offline")
		if r.projector != nil {
			r.projector.Offline(ctx, evicted, at)
		}
	}
	r.announce(ctx, userID, true, profile.Status)
	if r.projector != nil {
		r.projector.Online(ctx, userID, h.ID(), at)
	}

	logger.Info(ctx, "用户上线",
		logger.String("user_uuid", userID),
		logger.String("conn_id", h.ID()),
		logger.Bool("replaced", replaced != nil),
		logger.Int("online_count", count),
	)
	return replaced
}

// Leave 仅当 h 是该用户当前句柄时移除会话并广播下线；过期句柄为 no-op
func (r *Registry) Leave(ctx context.Context, h Handle) (string, bool) {
	r.mu.Lock()
	userID, ok := r.owners[h]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.owners, h)
	s := r.sessions[userID]
	if s == nil || s.handle != h {
		r.mu.Unlock()
		return "", false
	}
	delete(r.sessions, userID)
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.OnlineSessions.Set(float64(count))
	r.announce(ctx, userID, false, "offline")
	if r.projector != nil {
		r.projector.Offline(ctx, userID, r.now())
	}

	logger.Info(ctx, "用户下线",
		logger.String("user_uuid", userID),
		logger.String("conn_id", h.ID()),
		logger.Int("online_count", count),
	)
	return userID, true
}

// IsCurrent h 是否为其所属用户的当前句柄
func (r *Registry) IsCurrent(h Handle) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.owners[h]
	if !ok {
		return "", false
	}
	s := r.sessions[userID]
	return userID, s != nil && s.handle == h
}

// Lookup 返回用户当前句柄
func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return s.handle, true
}

// Profile 返回用户的资料快照
func (r *Registry) Profile(userID string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	if !ok {
		return Profile{}, false
	}
	return s.profile, true
}

// UpdateProfile 修改资料快照，用户不在线时返回 false
func (r *Registry) UpdateProfile(userID string, mutate func(p *Profile)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		return false
	}
	mutate(&s.profile)
	s.profile.UserID = userID
	return true
}

// IsOnline 用户是否在线
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

// OnlineUserIDs 在线用户列表（排序后返回）
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Count 在线用户数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SendTo 向用户当前会话推送一帧；不在线或投递失败返回 false
func (r *Registry) SendTo(userID string, f protocol.Frame) bool {
	h, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	raw, err := protocol.Encode(f)
	if err != nil {
		logger.Error(context.Background(), "下行帧序列化失败",
			logger.String("type", f.Type),
			logger.ErrorField("error", err),
		)
		return false
	}
	return h.Push(raw)
}

// Broadcast 向全部会话推送，返回成功入队数
func (r *Registry) Broadcast(f protocol.Frame) int {
	raw, err := protocol.Encode(f)
	if err != nil {
		logger.Error(context.Background(), "广播帧序列化失败",
			logger.String("type", f.Type),
			logger.ErrorField("error", err),
		)
		return 0
	}

	r.mu.RLock()
	handles := make([]Handle, 0, len(r.sessions))
	for _, s := range r.sessions {
		handles = append(handles, s.handle)
	}
	r.mu.RUnlock()

	sent := 0
	for _, h := range handles {
		if h.Push(raw) {
			sent++
		}
	}
	return sent
}

func (r *Registry) announce(ctx context.Context, userID string, online bool, status string) {
	n := r.Broadcast(protocol.Frame{
		Type: protocol.TypeStatusChanged,
		Data: protocol.StatusChangedData{UserID: userID, IsOnline: online, Status: status},
	})
	logger.Debug(ctx, "广播在线状态",
		logger.String("user_uuid", userID),
		logger.Bool("online", online),
		logger.Int("receivers", n),
	)
}
