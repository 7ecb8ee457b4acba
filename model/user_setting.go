package model

import "time"

// UserSetting 用户偏好设置，一人一行，首次读取时按默认值补齐。
type UserSetting struct {
	UserUuid            string    `gorm:"column:user_uuid;type:char(36);primaryKey;comment:用户uuid"`
	Theme               string    `gorm:"column:theme;type:varchar(16);not null;default:'dark'"`
	Notifications       bool      `gorm:"column:notifications;not null;default:true"`
	Sounds              bool      `gorm:"column:sounds;not null;default:true"`
	ShowOnline          bool      `gorm:"column:show_online;not null;default:true"`
	AllowFriendRequests bool      `gorm:"column:allow_friend_requests;not null;default:true"`
	Language            string    `gorm:"column:language;type:varchar(8);not null;default:'ru'"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserSetting) TableName() string { return "user_setting" }

// DefaultUserSetting 新用户的默认设置
func DefaultUserSetting(userUUID string) *UserSetting {
	return &UserSetting{
		UserUuid:            userUUID,
		Theme:               "dark",
		Notifications:       true,
		Sounds:              true,
		ShowOnline:          true,
		AllowFriendRequests: true,
		Language:            "ru",
	}
}
