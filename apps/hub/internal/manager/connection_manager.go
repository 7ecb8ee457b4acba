package manager

import (
	"sort"
	"sync"
)

// ConnectionManager 管理全部存活的 WebSocket 连接。
// 维护两套索引：
// - byID(conn_id) 用于精确定位连接；
// - byUser(user_uuid -> conn_id -> client) 用于按用户统计。
// 同一用户可以同时有多条连接，哪条接收推送由在线注册表决定。
type ConnectionManager struct {
	mu       sync.RWMutex
	byID     map[string]*Client
	byUser   map[string]map[string]*Client
	shutdown bool
}

// NewConnectionManager 创建连接管理器实例。
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID:   make(map[string]*Client),
		byUser: make(map[string]map[string]*Client),
	}
}

// Register 注册一条连接。停机后返回 false，调用方应关闭该连接。
func (m *ConnectionManager) Register(client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return false
	}

	m.byID[client.ID()] = client
	userConns, ok := m.byUser[client.UserID()]
	if !ok {
		userConns = make(map[string]*Client)
		m.byUser[client.UserID()] = userConns
	}
	userConns[client.ID()] = client
	return true
}

// Unregister 注销一条连接。
// 只有当 map 中的连接与入参是同一对象时才删除。
func (m *ConnectionManager) Unregister(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byID[client.ID()]
	if !ok || current != client {
		return
	}

	delete(m.byID, client.ID())
	if userConns, ok := m.byUser[client.UserID()]; ok {
		delete(userConns, client.ID())
		if len(userConns) == 0 {
			delete(m.byUser, client.UserID())
		}
	}
}

// Get 按连接 id 查找
func (m *ConnectionManager) Get(connID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[connID]
	return c, ok
}

// UserConnIDs 用户当前全部连接 id，已排序
func (m *ConnectionManager) UserConnIDs(userUUID string) []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.byUser[userUUID]))
	for id := range m.byUser[userUUID] {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Count 返回当前连接数。
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Shutdown 关闭全部连接并拒绝后续注册，用于优雅退出。
func (m *ConnectionManager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true

	clients := make([]*Client, 0, len(m.byID))
	for _, client := range m.byID {
		clients = append(clients, client)
	}
	m.byID = make(map[string]*Client)
	m.byUser = make(map[string]map[string]*Client)
	m.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
