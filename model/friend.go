package model

import "time"

const (
	// FriendRequestPending 待处理
	FriendRequestPending = "pending"
)

// FriendRequest 好友申请，处理完成后删除
type FriendRequest struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement:false;comment:雪花id"`
	FromUuid  string    `gorm:"column:from_uuid;type:char(36);not null;uniqueIndex:uidx_from_to"`
	ToUuid    string    `gorm:"column:to_uuid;type:char(36);not null;uniqueIndex:uidx_from_to;index"`
	Status    string    `gorm:"column:status;type:varchar(16);not null;default:'pending'"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (FriendRequest) TableName() string { return "friend_request" }

// Friendship 好友关系，user_id1 < user_id2 保证无序对唯一
type Friendship struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement:false;comment:雪花id"`
	UserId1   string    `gorm:"column:user_id1;type:char(36);not null;uniqueIndex:uidx_pair;index"`
	UserId2   string    `gorm:"column:user_id2;type:char(36);not null;uniqueIndex:uidx_pair;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (Friendship) TableName() string { return "friendship" }

// NewFriendship 按无序对归一化
func NewFriendship(id int64, a, b string, at time.Time) *Friendship {
	if a > b {
		a, b = b, a
	}
	return &Friendship{Id: id, UserId1: a, UserId2: b, CreatedAt: at}
}

// Peer 返回关系中另一方
func (f *Friendship) Peer(userUUID string) string {
	if f.UserId1 == userUUID {
		return f.UserId2
	}
	return f.UserId1
}
