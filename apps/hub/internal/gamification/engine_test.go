package gamification

import (
	"context"
	"sync"
	"testing"

	"ChatHub/apps/hub/internal/apperr"
	"ChatHub/apps/hub/internal/presence"
	"ChatHub/apps/hub/internal/presence/presencetest"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/apps/hub/internal/repository"
	"ChatHub/model"
	"ChatHub/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var gamificationLoggerOnce sync.Once

func initGamificationTestLogger() {
	gamificationLoggerOnce.Do(func() {
		logger.ReplaceGlobal(zap.NewNop())
	})
}

func newEngine(t *testing.T) (*Engine, repository.IUserRepository, *presence.Registry) {
	t.Helper()
	initGamificationTestLogger()
	users := repository.NewMemoryStore().Users()
	require.NoError(t, users.Create(context.Background(), &model.UserInfo{
		Uuid: "alice", Username: "alice", Level: 1, Badges: model.BadgeSet{model.BadgeNewbie},
	}))
	reg := presence.NewRegistry(nil)
	return NewEngine(users, reg), users, reg
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, 1, LevelFor(0))
	assert.Equal(t, 1, LevelFor(99))
	assert.Equal(t, 2, LevelFor(100))
	assert.Equal(t, 6, LevelFor(500))
	assert.Equal(t, 11, LevelFor(1000))
}

func TestGrantXP_ThresholdBadgesOnce(t *testing.T) {
	e, users, _ := newEngine(t)
	ctx := context.Background()

	res, err := e.GrantXP(ctx, "alice", 500)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Level)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, []string{model.BadgeVeteran}, res.NewBadges)
	assert.Contains(t, res.Badges, model.BadgeVeteran)
	assert.NotContains(t, res.Badges, model.BadgeExpert)

	res, err = e.GrantXP(ctx, "alice", 500)
	require.NoError(t, err)
	assert.Equal(t, 11, res.Level)
	assert.Equal(t, []string{model.BadgeExpert}, res.NewBadges)

	u, err := users.GetByUUID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), u.Xp)
	assert.Equal(t, 11, u.Level)
	assert.Equal(t, model.BadgeSet{model.BadgeNewbie, model.BadgeVeteran, model.BadgeExpert}, u.Badges)
}

func TestGrantXP_NoLevelChange(t *testing.T) {
	e, _, reg := newEngine(t)
	conn := presencetest.NewConn("c")
	reg.Join(context.Background(), "alice", conn, presence.Profile{})

	res, err := e.GrantXP(context.Background(), "alice", 5)
	require.NoError(t, err)
	assert.False(t, res.LeveledUp)
	assert.Equal(t, 1, res.Level)
	assert.Zero(t, conn.Count(protocol.TypeLevelUp))
}

func TestGrantXP_NotifiesOnlineUser(t *testing.T) {
	e, _, reg := newEngine(t)
	conn := presencetest.NewConn("c")
	reg.Join(context.Background(), "alice", conn, presence.Profile{})

	_, err := e.GrantXP(context.Background(), "alice", 100)
	require.NoError(t, err)

	var got protocol.LevelUpData
	require.True(t, conn.Last(protocol.TypeLevelUp, &got))
	assert.Equal(t, 2, got.Level)
	assert.Equal(t, int64(100), got.Xp)
	assert.Equal(t, []string{model.BadgeNewbie}, got.Badges)
}

func TestGrantXP_Errors(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.GrantXP(ctx, "", 5)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = e.GrantXP(ctx, "alice", 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = e.GrantXP(ctx, "ghost", 5)
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestGrantXP_ConcurrentSameUser(t *testing.T) {
	e, users, _ := newEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.GrantXP(ctx, "alice", 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := users.GetByUUID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), u.Xp)
	assert.Equal(t, 11, u.Level)
	assert.Equal(t, model.BadgeSet{model.BadgeNewbie, model.BadgeVeteran, model.BadgeExpert}, u.Badges)
}
