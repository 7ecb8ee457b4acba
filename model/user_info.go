package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// UserInfo 用户身份表
// 注册时创建，资料修改和经验值结算会更新，不做删除。
type UserInfo struct {
	Id            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Uuid          string     `gorm:"column:uuid;type:char(36);not null;uniqueIndex;comment:用户唯一标识"`
	Username      string     `gorm:"column:username;type:varchar(64);not null;uniqueIndex;comment:用户名(展示名)"`
	Password      string     `gorm:"column:password;type:varchar(255);not null;comment:bcrypt 密码哈希"`
	Email         string     `gorm:"column:email;type:varchar(128);index;comment:邮箱"`
	Avatar        string     `gorm:"column:avatar;type:varchar(512);comment:头像地址"`
	Status        string     `gorm:"column:status;type:varchar(32);not null;default:'online';comment:状态文本"`
	StatusMessage string     `gorm:"column:status_message;type:varchar(255);comment:个性签名"`
	Level         int        `gorm:"column:level;not null;default:1;comment:等级"`
	Xp            int64      `gorm:"column:xp;not null;default:0;comment:经验值"`
	Badges        BadgeSet   `gorm:"column:badges;type:text;comment:徽章集合(JSON)"`
	IsOnline      bool       `gorm:"column:is_online;not null;default:false;comment:是否在线(投影)"`
	LastSeenAt    *time.Time `gorm:"column:last_seen_at;comment:最后在线时间"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserInfo) TableName() string { return "user_info" }

const (
	// BadgeNewbie 注册即得
	BadgeNewbie = "newbie"
	// BadgeVeteran 等级 ≥ 5
	BadgeVeteran = "veteran"
	// BadgeExpert 等级 ≥ 10
	BadgeExpert = "expert"
)

// BadgeSet 徽章集合，按授予顺序存储，语义上是集合。
type BadgeSet []string

// Has 是否已拥有徽章
func (b BadgeSet) Has(badge string) bool {
	for _, v := range b {
		if v == badge {
			return true
		}
	}
	return false
}

// Add 追加徽章，已存在时返回 false
func (b *BadgeSet) Add(badge string) bool {
	if b.Has(badge) {
		return false
	}
	*b = append(*b, badge)
	return true
}

// Clone 返回副本
func (b BadgeSet) Clone() BadgeSet {
	if b == nil {
		return BadgeSet{}
	}
	out := make(BadgeSet, len(b))
	copy(out, b)
	return out
}

// Value 实现 driver.Valuer，以 JSON 数组落库
func (b BadgeSet) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(b))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan 实现 sql.Scanner
func (b *BadgeSet) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*b = BadgeSet{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.New("badge set: unsupported scan type")
	}
	if len(data) == 0 {
		*b = BadgeSet{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*b = out
	return nil
}
