package repository

import (
	"context"

	"ChatHub/model"

	"gorm.io/gorm"
)

// relationRepositoryImpl 好友申请与好友关系数据访问层实现
type relationRepositoryImpl struct {
	db *gorm.DB
}

// NewRelationRepository 创建关系仓储实例
func NewRelationRepository(db *gorm.DB) IRelationRepository {
	return &relationRepositoryImpl{db: db}
}

// CreateRequest 创建好友申请，依赖 uidx_from_to 唯一索引兜底并发
func (r *relationRepositoryImpl) CreateRequest(ctx context.Context, req *model.FriendRequest) error {
	return WrapDBError(r.db.WithContext(ctx).Create(req).Error)
}

// GetRequest 根据 ID 查询申请
func (r *relationRepositoryImpl) GetRequest(ctx context.Context, id int64) (*model.FriendRequest, error) {
	var req model.FriendRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, WrapDBError(err)
	}
	return &req, nil
}

// FindRequest 查询 from → to 的申请
func (r *relationRepositoryImpl) FindRequest(ctx context.Context, fromUUID, toUUID string) (*model.FriendRequest, error) {
	var req model.FriendRequest
	err := r.db.WithContext(ctx).
		Where("from_uuid = ? AND to_uuid = ?", fromUUID, toUUID).
		First(&req).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return &req, nil
}

// DeleteRequest 删除申请
func (r *relationRepositoryImpl) DeleteRequest(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.FriendRequest{})
	if result.Error != nil {
		return WrapDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListPendingTo 查询发给某人的待处理申请
func (r *relationRepositoryImpl) ListPendingTo(ctx context.Context, toUUID string) ([]*model.FriendRequest, error) {
	var reqs []*model.FriendRequest
	err := r.db.WithContext(ctx).
		Where("to_uuid = ? AND status = ?", toUUID, model.FriendRequestPending).
		Order("created_at ASC, id ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return reqs, nil
}

// CreateFriendship 创建好友关系，调用方需保证 UserId1 < UserId2
func (r *relationRepositoryImpl) CreateFriendship(ctx context.Context, f *model.Friendship) error {
	return WrapDBError(r.db.WithContext(ctx).Create(f).Error)
}

// AreFriends 是否为好友
func (r *relationRepositoryImpl) AreFriends(ctx context.Context, a, b string) (bool, error) {
	pair := model.NewFriendship(0, a, b, zeroTime)
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Friendship{}).
		Where("user_id1 = ? AND user_id2 = ?", pair.UserId1, pair.UserId2).
		Count(&count).Error
	if err != nil {
		return false, WrapDBError(err)
	}
	return count > 0, nil
}

// ListFriendIDs 好友 UUID 列表，按建立关系时间升序
func (r *relationRepositoryImpl) ListFriendIDs(ctx context.Context, uuid string) ([]string, error) {
	var rows []*model.Friendship
	err := r.db.WithContext(ctx).
		Where("user_id1 = ? OR user_id2 = ?", uuid, uuid).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	ids := make([]string, 0, len(rows))
	for _, f := range rows {
		ids = append(ids, f.Peer(uuid))
	}
	return ids, nil
}
