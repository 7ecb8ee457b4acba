package repository

import (
	"context"
	"errors"

	"ChatHub/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// settingRepositoryImpl 用户设置数据访问层实现
type settingRepositoryImpl struct {
	db *gorm.DB
}

// NewSettingRepository 创建设置仓储实例
func NewSettingRepository(db *gorm.DB) ISettingRepository {
	return &settingRepositoryImpl{db: db}
}

// Get 读取设置，首次读取时写入默认值
func (r *settingRepositoryImpl) Get(ctx context.Context, uuid string) (*model.UserSetting, error) {
	var setting model.UserSetting
	err := r.db.WithContext(ctx).Where("user_uuid = ?", uuid).First(&setting).Error
	if err == nil {
		return &setting, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, WrapDBError(err)
	}

	def := model.DefaultUserSetting(uuid)
	// 并发首次读取时忽略冲突
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(def).Error; err != nil {
		return nil, WrapDBError(err)
	}
	return def, nil
}

// Save 覆盖保存，布尔字段为 false 也会写入
func (r *settingRepositoryImpl) Save(ctx context.Context, setting *model.UserSetting) error {
	if _, err := r.Get(ctx, setting.UserUuid); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).
		Model(&model.UserSetting{}).
		Where("user_uuid = ?", setting.UserUuid).
		Select("theme", "notifications", "sounds", "show_online", "allow_friend_requests", "language").
		Updates(setting).Error
	return WrapDBError(err)
}
