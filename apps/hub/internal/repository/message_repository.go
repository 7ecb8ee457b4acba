package repository

import (
	"context"

	"ChatHub/model"

	"gorm.io/gorm"
)

// messageRepositoryImpl 消息数据访问层实现
type messageRepositoryImpl struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息仓储实例
func NewMessageRepository(db *gorm.DB) IMessageRepository {
	return &messageRepositoryImpl{db: db}
}

// Append 追加一条消息
func (r *messageRepositoryImpl) Append(ctx context.Context, msg *model.Message) error {
	if msg.ConversationKey == "" {
		msg.ConversationKey = model.ConversationKey(msg.SenderUuid, msg.ReceiverUuid)
	}
	return WrapDBError(r.db.WithContext(ctx).Create(msg).Error)
}

// ListConversation 按会话键查询，雪花 id 作为同一时间戳内的二级排序
func (r *messageRepositoryImpl) ListConversation(ctx context.Context, a, b string, limit int) ([]*model.Message, error) {
	query := r.db.WithContext(ctx).
		Where("conversation_key = ?", model.ConversationKey(a, b)).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		// 取最近 limit 条再正序返回
		sub := r.db.WithContext(ctx).
			Model(&model.Message{}).
			Select("id").
			Where("conversation_key = ?", model.ConversationKey(a, b)).
			Order("created_at DESC, id DESC").
			Limit(limit)
		query = r.db.WithContext(ctx).
			Where("id IN (?)", sub).
			Order("created_at ASC, id ASC")
	}

	var msgs []*model.Message
	if err := query.Find(&msgs).Error; err != nil {
		return nil, WrapDBError(err)
	}
	return msgs, nil
}

// MarkRead 批量置已读
func (r *messageRepositoryImpl) MarkRead(ctx context.Context, readerUUID, peerUUID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("receiver_uuid = ? AND sender_uuid = ? AND is_read = ?", readerUUID, peerUUID, false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, WrapDBError(result.Error)
	}
	return result.RowsAffected, nil
}
