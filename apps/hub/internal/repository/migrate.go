package repository

import (
	"time"

	"ChatHub/model"

	"gorm.io/gorm"
)

var zeroTime time.Time

// AutoMigrate 建表/补字段
func AutoMigrate(db *gorm.DB) error {
	return WrapDBError(db.AutoMigrate(
		&model.UserInfo{},
		&model.UserSetting{},
		&model.Message{},
		&model.FriendRequest{},
		&model.Friendship{},
	))
}
