// Package call 维护通话会话与“用户 → 所在通话”的索引。
//
// 会话状态：forming（仅发起者）→ active（≥2 人）→ empty（被删除）。
// 成员与索引在同一把锁下修改，推送在释放锁之后进行。
package call

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"ChatHub/apps/hub/internal/apperr"
	"ChatHub/apps/hub/internal/metrics"
	"ChatHub/apps/hub/internal/presence"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/util"
)

// State 会话状态
type State string

const (
	StateForming State = "forming"
	StateActive  State = "active"
)

// Directory 在线推送与资料快照，由在线注册表实现
type Directory interface {
	SendTo(userID string, f protocol.Frame) bool
	Profile(userID string) (presence.Profile, bool)
}

// Snapshot 会话只读快照
type Snapshot struct {
	CallID    string    `json:"callId"`
	Members   []string  `json:"members"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

type session struct {
	id        string
	members   []string // 按加入顺序
	createdAt time.Time
}

func (s *session) has(userID string) bool {
	for _, m := range s.members {
		if m == userID {
			return true
		}
	}
	return false
}

func (s *session) remove(userID string) {
	for i, m := range s.members {
		if m == userID {
			s.members = append(s.members[:i], s.members[i+1:]...)
			return
		}
	}
}

func (s *session) snapshot() Snapshot {
	st := StateForming
	if len(s.members) > 1 {
		st = StateActive
	}
	return Snapshot{
		CallID:    s.id,
		Members:   append([]string(nil), s.members...),
		State:     st,
		CreatedAt: s.createdAt,
	}
}

// Manager 通话会话管理
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session // callID → session
	index    map[string]string   // userID → callID

	dir    Directory
	now    func() time.Time
	nextID func() string
}

// NewManager 创建通话管理器
func NewManager(dir Directory) *Manager {
	return &Manager{
		sessions: make(map[string]*session),
		index:    make(map[string]string),
		dir:      dir,
		now:      time.Now,
		nextID:   func() string { return strconv.FormatInt(util.NextID(), 10) },
	}
}

// Start 发起通话：创建仅含发起者的会话，回复 callStarted，并向被叫推送 incomingCall。
// 被叫离线时不推送，也不报错。
func (m *Manager) Start(ctx context.Context, callerID, calleeID string) (string, error) {
	if callerID == "" || calleeID == "" {
		return "", apperr.Validation("callerId and calleeId are required")
	}
	if callerID == calleeID {
		return "", apperr.ErrCallSelf
	}

	m.mu.Lock()
	if _, busy := m.index[callerID]; busy {
		m.mu.Unlock()
		return "", apperr.ErrAlreadyInCall
	}
	callID := m.nextID()
	m.sessions[callID] = &session{id: callID, members: []string{callerID}, createdAt: m.now()}
	m.index[callerID] = callID
	metrics.ActiveCalls.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	callerName := callerID
	if p, ok := m.dir.Profile(callerID); ok && p.Username != "" {
		callerName = p.Username
	}

	m.dir.SendTo(callerID, protocol.Frame{
		Type: protocol.TypeCallStarted,
		Data: protocol.CallStartedData{CallID: callID, CalleeID: calleeID},
	})
	rang := m.dir.SendTo(calleeID, protocol.Frame{
		Type: protocol.TypeIncomingCall,
		Data: protocol.IncomingCallData{CallID: callID, CallerID: callerID, CallerName: callerName},
	})

	logger.Info(ctx, "通话已发起",
		logger.String("call_id", callID),
		logger.String("caller", callerID),
		logger.String("callee", calleeID),
		logger.Bool("callee_online", rang),
	)
	return callID, nil
}

// Join 加入通话，会话不存在时以该 id 新建。
// 重复加入同一通话是幂等的，只重新回复成员列表；已在其他通话中返回 ErrAlreadyInCall。
func (m *Manager) Join(ctx context.Context, callID, userID string) ([]string, error) {
	if callID == "" || userID == "" {
		return nil, apperr.Validation("callId and userId are required")
	}

	m.mu.Lock()
	if cur, ok := m.index[userID]; ok && cur != callID {
		m.mu.Unlock()
		return nil, apperr.ErrAlreadyInCall
	}
	s, ok := m.sessions[callID]
	if !ok {
		s = &session{id: callID, createdAt: m.now()}
		m.sessions[callID] = s
	}
	var others []string
	fresh := !s.has(userID)
	if fresh {
		others = append(others, s.members...)
		s.members = append(s.members, userID)
		m.index[userID] = callID
	}
	members := append([]string(nil), s.members...)
	metrics.ActiveCalls.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, other := range others {
		m.dir.SendTo(other, protocol.Frame{
			Type: protocol.TypeMemberJoined,
			Data: protocol.MemberData{CallID: callID, UserID: userID},
		})
	}
	m.dir.SendTo(userID, protocol.Frame{
		Type: protocol.TypeCallJoined,
		Data: protocol.CallJoinedData{CallID: callID, Members: members},
	})

	if fresh {
		logger.Info(ctx, "加入通话",
			logger.String("call_id", callID),
			logger.String("user_uuid", userID),
			logger.Int("members", len(members)),
		)
	}
	return members, nil
}

// Leave 离开当前通话，返回离开的通话 id。不在通话中返回 false。
// 最后一人离开时删除会话，之后同 id 的 Join 会得到全新会话。
func (m *Manager) Leave(ctx context.Context, userID string) (string, bool) {
	m.mu.Lock()
	callID, ok := m.index[userID]
	if !ok {
		m.mu.Unlock()
		return "", false
	}
	delete(m.index, userID)

	var remaining []string
	if s, exists := m.sessions[callID]; exists {
		s.remove(userID)
		if len(s.members) == 0 {
			delete(m.sessions, callID)
		} else {
			remaining = append(remaining, s.members...)
		}
	}
	metrics.ActiveCalls.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, other := range remaining {
		m.dir.SendTo(other, protocol.Frame{
			Type: protocol.TypeMemberLeft,
			Data: protocol.MemberData{CallID: callID, UserID: userID},
		})
	}

	logger.Info(ctx, "离开通话",
		logger.String("call_id", callID),
		logger.String("user_uuid", userID),
		logger.Int("remaining", len(remaining)),
	)
	return callID, true
}

// Members 通话成员，按加入顺序
func (m *Manager) Members(callID string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), s.members...), true
}

// Get 会话快照
func (m *Manager) Get(callID string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// CallOf 用户所在的通话
func (m *Manager) CallOf(userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.index[userID]
	return id, ok
}

// Count 进行中的会话数
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// List 全部会话快照，按 id 排序
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.snapshot())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CallID < out[j].CallID })
	return out
}
