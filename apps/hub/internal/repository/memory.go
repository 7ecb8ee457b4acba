package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ChatHub/model"
)

// MemoryStore 进程内存储，用于本地调试（storage driver=memory）与单元测试。
// 四个仓储共享一把锁，返回值均为副本。
type MemoryStore struct {
	mu sync.RWMutex

	nextUserID  int64
	users       map[string]*model.UserInfo // uuid → user
	usernames   map[string]string          // username → uuid
	settings    map[string]*model.UserSetting
	requests    map[int64]*model.FriendRequest
	friendships map[string]*model.Friendship // "id1:id2" → friendship
	messages    []*model.Message
}

// NewMemoryStore 创建空的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*model.UserInfo),
		usernames:   make(map[string]string),
		settings:    make(map[string]*model.UserSetting),
		requests:    make(map[int64]*model.FriendRequest),
		friendships: make(map[string]*model.Friendship),
	}
}

func (s *MemoryStore) Users() IUserRepository         { return memUsers{s} }
func (s *MemoryStore) Relations() IRelationRepository { return memRelations{s} }
func (s *MemoryStore) Messages() IMessageRepository   { return memMessages{s} }
func (s *MemoryStore) Settings() ISettingRepository   { return memSettings{s} }

func cloneUser(u *model.UserInfo) *model.UserInfo {
	out := *u
	out.Badges = u.Badges.Clone()
	if u.LastSeenAt != nil {
		t := *u.LastSeenAt
		out.LastSeenAt = &t
	}
	return &out
}

// ==================== 用户 ====================

type memUsers struct{ s *MemoryStore }

func (m memUsers) Create(_ context.Context, user *model.UserInfo) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.users[user.Uuid]; ok {
		return ErrDuplicateKey
	}
	if _, ok := m.s.usernames[user.Username]; ok {
		return ErrDuplicateKey
	}
	m.s.nextUserID++
	user.Id = m.s.nextUserID
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	if user.Level == 0 {
		user.Level = 1
	}
	if user.Badges == nil {
		user.Badges = model.BadgeSet{}
	}
	m.s.users[user.Uuid] = cloneUser(user)
	m.s.usernames[user.Username] = user.Uuid
	return nil
}

func (m memUsers) GetByUUID(_ context.Context, uuid string) (*model.UserInfo, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	u, ok := m.s.users[uuid]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneUser(u), nil
}

func (m memUsers) GetByUsername(_ context.Context, username string) (*model.UserInfo, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	uuid, ok := m.s.usernames[username]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneUser(m.s.users[uuid]), nil
}

func (m memUsers) BatchGetByUUIDs(_ context.Context, uuids []string) ([]*model.UserInfo, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]*model.UserInfo, 0, len(uuids))
	for _, id := range uuids {
		if u, ok := m.s.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (m memUsers) Search(_ context.Context, keyword, excludeUUID string, limit int) ([]*model.UserInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	keyword = strings.ToLower(keyword)

	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []*model.UserInfo
	for _, u := range m.s.users {
		if u.Uuid == excludeUUID || !strings.Contains(strings.ToLower(u.Username), keyword) {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memUsers) update(uuid string, fn func(u *model.UserInfo)) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[uuid]
	if !ok {
		return ErrRecordNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

func (m memUsers) UpdateProfile(_ context.Context, uuid string, patch ProfilePatch) error {
	return m.update(uuid, func(u *model.UserInfo) {
		if patch.Status != nil {
			u.Status = *patch.Status
		}
		if patch.StatusMessage != nil {
			u.StatusMessage = *patch.StatusMessage
		}
		if patch.Avatar != nil {
			u.Avatar = *patch.Avatar
		}
	})
}

func (m memUsers) UpdateProgress(_ context.Context, uuid string, level int, xp int64, badges model.BadgeSet) error {
	return m.update(uuid, func(u *model.UserInfo) {
		u.Level = level
		u.Xp = xp
		u.Badges = badges.Clone()
	})
}

func (m memUsers) UpdatePresence(_ context.Context, uuid string, online bool, lastSeen time.Time) error {
	return m.update(uuid, func(u *model.UserInfo) {
		u.IsOnline = online
		t := lastSeen
		u.LastSeenAt = &t
	})
}

// ==================== 关系 ====================

type memRelations struct{ s *MemoryStore }

func pairKey(a, b string) string { return model.ConversationKey(a, b) }

func (m memRelations) CreateRequest(_ context.Context, req *model.FriendRequest) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, r := range m.s.requests {
		if r.FromUuid == req.FromUuid && r.ToUuid == req.ToUuid {
			return ErrDuplicateKey
		}
	}
	if _, ok := m.s.requests[req.Id]; ok {
		return ErrDuplicateKey
	}
	if req.Status == "" {
		req.Status = model.FriendRequestPending
	}
	cp := *req
	m.s.requests[req.Id] = &cp
	return nil
}

func (m memRelations) GetRequest(_ context.Context, id int64) (*model.FriendRequest, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	r, ok := m.s.requests[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m memRelations) FindRequest(_ context.Context, fromUUID, toUUID string) (*model.FriendRequest, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, r := range m.s.requests {
		if r.FromUuid == fromUUID && r.ToUuid == toUUID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m memRelations) DeleteRequest(_ context.Context, id int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.requests[id]; !ok {
		return ErrRecordNotFound
	}
	delete(m.s.requests, id)
	return nil
}

func (m memRelations) ListPendingTo(_ context.Context, toUUID string) ([]*model.FriendRequest, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []*model.FriendRequest{}
	for _, r := range m.s.requests {
		if r.ToUuid == toUUID && r.Status == model.FriendRequestPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Id < out[j].Id
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m memRelations) CreateFriendship(_ context.Context, f *model.Friendship) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := pairKey(f.UserId1, f.UserId2)
	if _, ok := m.s.friendships[key]; ok {
		return ErrDuplicateKey
	}
	cp := *model.NewFriendship(f.Id, f.UserId1, f.UserId2, f.CreatedAt)
	m.s.friendships[key] = &cp
	return nil
}

func (m memRelations) AreFriends(_ context.Context, a, b string) (bool, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	_, ok := m.s.friendships[pairKey(a, b)]
	return ok, nil
}

func (m memRelations) ListFriendIDs(_ context.Context, uuid string) ([]string, error) {
	m.s.mu.RLock()
	var rows []*model.Friendship
	for _, f := range m.s.friendships {
		if f.UserId1 == uuid || f.UserId2 == uuid {
			rows = append(rows, f)
		}
	}
	m.s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].Id < rows[j].Id
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	ids := make([]string, 0, len(rows))
	for _, f := range rows {
		ids = append(ids, f.Peer(uuid))
	}
	return ids, nil
}

// ==================== 消息 ====================

type memMessages struct{ s *MemoryStore }

func (m memMessages) Append(_ context.Context, msg *model.Message) error {
	if msg.ConversationKey == "" {
		msg.ConversationKey = model.ConversationKey(msg.SenderUuid, msg.ReceiverUuid)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *msg
	m.s.messages = append(m.s.messages, &cp)
	return nil
}

func (m memMessages) ListConversation(_ context.Context, a, b string, limit int) ([]*model.Message, error) {
	key := model.ConversationKey(a, b)

	m.s.mu.RLock()
	out := []*model.Message{}
	for _, msg := range m.s.messages {
		if msg.ConversationKey == key {
			cp := *msg
			out = append(out, &cp)
		}
	}
	m.s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Id < out[j].Id
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m memMessages) MarkRead(_ context.Context, readerUUID, peerUUID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, msg := range m.s.messages {
		if msg.ReceiverUuid == readerUUID && msg.SenderUuid == peerUUID && !msg.IsRead {
			msg.IsRead = true
			n++
		}
	}
	return n, nil
}

// ==================== 设置 ====================

type memSettings struct{ s *MemoryStore }

func (m memSettings) Get(_ context.Context, uuid string) (*model.UserSetting, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	st, ok := m.s.settings[uuid]
	if !ok {
		st = model.DefaultUserSetting(uuid)
		m.s.settings[uuid] = st
	}
	cp := *st
	return &cp, nil
}

func (m memSettings) Save(_ context.Context, setting *model.UserSetting) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *setting
	cp.UpdatedAt = time.Now()
	m.s.settings[setting.UserUuid] = &cp
	return nil
}
