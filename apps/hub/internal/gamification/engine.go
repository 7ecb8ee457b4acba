// Package gamification 根据发消息累积的经验值计算等级与徽章。
package gamification

import (
	"context"
	"errors"
	"fmt"

	"ChatHub/apps/hub/internal/apperr"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/apps/hub/internal/repository"
	"ChatHub/model"
	"ChatHub/pkg/keylock"
	"ChatHub/pkg/logger"
)

// XPPerLevel 每升一级所需经验
const XPPerLevel = 100

// Threshold 等级徽章门槛
type Threshold struct {
	Level int
	Badge string
}

// DefaultThresholds 默认等级徽章
var DefaultThresholds = []Threshold{
	{Level: 5, Badge: model.BadgeVeteran},
	{Level: 10, Badge: model.BadgeExpert},
}

// Notifier 向在线用户推送
type Notifier interface {
	SendTo(userID string, f protocol.Frame) bool
}

// Result 一次结算的结果
type Result struct {
	UserID    string
	Xp        int64
	Level     int
	LeveledUp bool
	NewBadges []string
	Badges    []string
}

// Engine 经验值结算
type Engine struct {
	users      repository.IUserRepository
	notifier   Notifier
	thresholds []Threshold
	locks      *keylock.KeyLock
}

// NewEngine 创建结算引擎
func NewEngine(users repository.IUserRepository, notifier Notifier) *Engine {
	return &Engine{
		users:      users,
		notifier:   notifier,
		thresholds: DefaultThresholds,
		locks:      keylock.New(),
	}
}

// LevelFor 经验值对应的等级
func LevelFor(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	return int(xp/XPPerLevel) + 1
}

// GrantXP 给用户加经验。读取、计算、写回在同一把用户锁内完成，并发调用不会重复授予徽章。
// 升级时推送 levelUp（用户在线时）。
func (e *Engine) GrantXP(ctx context.Context, userID string, amount int64) (*Result, error) {
	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if amount <= 0 {
		return nil, apperr.Validation("xp amount must be positive")
	}

	unlock := e.locks.Lock(userID)
	res, err := e.apply(ctx, userID, amount)
	unlock()
	if err != nil {
		return nil, err
	}

	if res.LeveledUp {
		e.notifier.SendTo(userID, protocol.Frame{
			Type: protocol.TypeLevelUp,
			Data: protocol.LevelUpData{Level: res.Level, Xp: res.Xp, Badges: res.Badges},
		})
		logger.Info(ctx, "用户升级",
			logger.String("user_uuid", userID),
			logger.Int("level", res.Level),
			logger.Strings("new_badges", res.NewBadges),
		)
	}
	return res, nil
}

func (e *Engine) apply(ctx context.Context, userID string, amount int64) (*Result, error) {
	user, err := e.users.GetByUUID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	badges := user.Badges.Clone()
	res := &Result{UserID: userID, Xp: user.Xp + amount, Level: user.Level}

	if next := LevelFor(res.Xp); next > user.Level {
		res.Level = next
		res.LeveledUp = true
		for _, th := range e.thresholds {
			if next >= th.Level && badges.Add(th.Badge) {
				res.NewBadges = append(res.NewBadges, th.Badge)
			}
		}
	}
	res.Badges = []string(badges)

	if err := e.users.UpdateProgress(ctx, userID, res.Level, res.Xp, badges); err != nil {
		return nil, fmt.Errorf("store progress %s: %w", userID, err)
	}
	return res, nil
}
