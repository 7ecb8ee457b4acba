package model

import "time"

// Message 单聊消息，只追加；is_read 由已读回执修改。
type Message struct {
	Id              int64     `gorm:"column:id;primaryKey;autoIncrement:false;comment:雪花id"`
	SenderUuid      string    `gorm:"column:sender_uuid;type:char(36);not null;index:idx_receiver_sender_read,priority:2"`
	ReceiverUuid    string    `gorm:"column:receiver_uuid;type:char(36);not null;index:idx_receiver_sender_read,priority:1"`
	ConversationKey string    `gorm:"column:conversation_key;type:varchar(80);not null;index:idx_conversation_created,priority:1;comment:min:max 无序会话键"`
	Body            string    `gorm:"column:body;type:text;not null"`
	IsRead          bool      `gorm:"column:is_read;not null;default:false;index:idx_receiver_sender_read,priority:3"`
	CreatedAt       time.Time `gorm:"column:created_at;not null;index:idx_conversation_created,priority:2"`
}

func (Message) TableName() string { return "message" }

// ConversationKey 无序用户对的会话键
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
