//go:generate mockgen -destination=mocks/mock_message_repository.go -package=mocks ChatHub/apps/hub/internal/repository IMessageRepository

package repository

import (
	"context"
	"time"

	"ChatHub/model"
)

// ==================== 身份 ====================

// ProfilePatch 资料局部更新，nil 字段不修改
type ProfilePatch struct {
	Status        *string
	StatusMessage *string
	Avatar        *string
}

// Empty 是否没有任何需要修改的字段
func (p ProfilePatch) Empty() bool {
	return p.Status == nil && p.StatusMessage == nil && p.Avatar == nil
}

// IUserRepository 用户身份数据访问接口
type IUserRepository interface {
	// Create 创建用户，用户名冲突返回 ErrDuplicateKey
	Create(ctx context.Context, user *model.UserInfo) error

	// GetByUUID 根据 UUID 查询，不存在返回 ErrRecordNotFound
	GetByUUID(ctx context.Context, uuid string) (*model.UserInfo, error)

	// GetByUsername 根据用户名查询
	GetByUsername(ctx context.Context, username string) (*model.UserInfo, error)

	// BatchGetByUUIDs 批量查询，不存在的 UUID 直接忽略
	BatchGetByUUIDs(ctx context.Context, uuids []string) ([]*model.UserInfo, error)

	// Search 按用户名模糊搜索，排除 excludeUUID
	Search(ctx context.Context, keyword, excludeUUID string, limit int) ([]*model.UserInfo, error)

	// UpdateProfile 局部更新资料
	UpdateProfile(ctx context.Context, uuid string, patch ProfilePatch) error

	// UpdateProgress 写回经验值、等级与徽章
	UpdateProgress(ctx context.Context, uuid string, level int, xp int64, badges model.BadgeSet) error

	// UpdatePresence 写回在线投影
	UpdatePresence(ctx context.Context, uuid string, online bool, lastSeen time.Time) error
}

// ==================== 好友关系 ====================

// IRelationRepository 好友申请与好友关系数据访问接口
type IRelationRepository interface {
	// CreateRequest 创建好友申请，(from,to) 已存在时返回 ErrDuplicateKey
	CreateRequest(ctx context.Context, req *model.FriendRequest) error

	// GetRequest 根据 ID 查询申请
	GetRequest(ctx context.Context, id int64) (*model.FriendRequest, error)

	// FindRequest 查询 from → to 的申请
	FindRequest(ctx context.Context, fromUUID, toUUID string) (*model.FriendRequest, error)

	// DeleteRequest 删除申请，不存在返回 ErrRecordNotFound
	DeleteRequest(ctx context.Context, id int64) error

	// ListPendingTo 查询发给某人的待处理申请，按创建时间升序
	ListPendingTo(ctx context.Context, toUUID string) ([]*model.FriendRequest, error)

	// CreateFriendship 创建好友关系（无序对），已存在返回 ErrDuplicateKey
	CreateFriendship(ctx context.Context, f *model.Friendship) error

	// AreFriends 是否为好友
	AreFriends(ctx context.Context, a, b string) (bool, error)

	// ListFriendIDs 好友 UUID 列表
	ListFriendIDs(ctx context.Context, uuid string) ([]string, error)
}

// ==================== 消息 ====================

// IMessageRepository 消息数据访问接口
type IMessageRepository interface {
	// Append 追加一条消息
	Append(ctx context.Context, msg *model.Message) error

	// ListConversation 按 (created_at, id) 升序返回无序对 {a,b} 的消息，limit<=0 表示不限
	ListConversation(ctx context.Context, a, b string, limit int) ([]*model.Message, error)

	// MarkRead 把 peer 发给 reader 的未读消息置为已读，返回受影响条数
	MarkRead(ctx context.Context, readerUUID, peerUUID string) (int64, error)
}

// ==================== 设置 ====================

// ISettingRepository 用户设置数据访问接口
type ISettingRepository interface {
	// Get 读取设置，不存在时写入默认值后返回
	Get(ctx context.Context, uuid string) (*model.UserSetting, error)

	// Save 覆盖保存
	Save(ctx context.Context, setting *model.UserSetting) error
}

// ==================== 在线状态缓存 ====================

// IPresenceCache 在线状态缓存（Redis）
type IPresenceCache interface {
	// SetOnline 标记在线
	SetOnline(ctx context.Context, uuid, connID string, at time.Time) error

	// SetOffline 标记离线并记录最后在线时间
	SetOffline(ctx context.Context, uuid string, at time.Time) error
}
