package repository

import (
	"context"
	"strings"
	"time"

	"ChatHub/model"

	"gorm.io/gorm"
)

// userRepositoryImpl 用户身份数据访问层实现
type userRepositoryImpl struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储实例
func NewUserRepository(db *gorm.DB) IUserRepository {
	return &userRepositoryImpl{db: db}
}

// Create 创建用户
func (r *userRepositoryImpl) Create(ctx context.Context, user *model.UserInfo) error {
	if user.Badges == nil {
		user.Badges = model.BadgeSet{}
	}
	return WrapDBError(r.db.WithContext(ctx).Create(user).Error)
}

// GetByUUID 根据 UUID 查询
func (r *userRepositoryImpl) GetByUUID(ctx context.Context, uuid string) (*model.UserInfo, error) {
	var user model.UserInfo
	if err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&user).Error; err != nil {
		return nil, WrapDBError(err)
	}
	return &user, nil
}

// GetByUsername 根据用户名查询
func (r *userRepositoryImpl) GetByUsername(ctx context.Context, username string) (*model.UserInfo, error) {
	var user model.UserInfo
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, WrapDBError(err)
	}
	return &user, nil
}

// BatchGetByUUIDs 批量查询
func (r *userRepositoryImpl) BatchGetByUUIDs(ctx context.Context, uuids []string) ([]*model.UserInfo, error) {
	if len(uuids) == 0 {
		return []*model.UserInfo{}, nil
	}
	var users []*model.UserInfo
	if err := r.db.WithContext(ctx).Where("uuid IN ?", uuids).Find(&users).Error; err != nil {
		return nil, WrapDBError(err)
	}
	return users, nil
}

// Search 按用户名模糊搜索
func (r *userRepositoryImpl) Search(ctx context.Context, keyword, excludeUUID string, limit int) ([]*model.UserInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(keyword) + "%"

	var users []*model.UserInfo
	err := r.db.WithContext(ctx).
		Where("username LIKE ? AND uuid <> ?", pattern, excludeUUID).
		Order("username ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return users, nil
}

// UpdateProfile 局部更新资料
func (r *userRepositoryImpl) UpdateProfile(ctx context.Context, uuid string, patch ProfilePatch) error {
	if patch.Empty() {
		return nil
	}
	updates := map[string]interface{}{}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.StatusMessage != nil {
		updates["status_message"] = *patch.StatusMessage
	}
	if patch.Avatar != nil {
		updates["avatar"] = *patch.Avatar
	}
	return r.updateColumns(ctx, uuid, updates)
}

// UpdateProgress 写回经验值、等级与徽章
func (r *userRepositoryImpl) UpdateProgress(ctx context.Context, uuid string, level int, xp int64, badges model.BadgeSet) error {
	return r.updateColumns(ctx, uuid, map[string]interface{}{
		"level":  level,
		"xp":     xp,
		"badges": badges,
	})
}

// UpdatePresence 写回在线投影
func (r *userRepositoryImpl) UpdatePresence(ctx context.Context, uuid string, online bool, lastSeen time.Time) error {
	return r.updateColumns(ctx, uuid, map[string]interface{}{
		"is_online":    online,
		"last_seen_at": lastSeen,
	})
}

// updateColumns 不以 RowsAffected 判断存在性：MySQL 默认只统计实际变化的行
func (r *userRepositoryImpl) updateColumns(ctx context.Context, uuid string, updates map[string]interface{}) error {
	err := r.db.WithContext(ctx).
		Model(&model.UserInfo{}).
		Where("uuid = ?", uuid).
		Updates(updates).Error
	return WrapDBError(err)
}

// escapeLike 转义 LIKE 通配符
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
