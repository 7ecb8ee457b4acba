package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ChatHub/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingUsers 统计穿透到底层仓库的读次数
type countingUsers struct {
	IUserRepository
	gets    int32
	batches int32
}

func (c *countingUsers) GetByUUID(ctx context.Context, uuid string) (*model.UserInfo, error) {
	atomic.AddInt32(&c.gets, 1)
	return c.IUserRepository.GetByUUID(ctx, uuid)
}

func (c *countingUsers) BatchGetByUUIDs(ctx context.Context, uuids []string) ([]*model.UserInfo, error) {
	atomic.AddInt32(&c.batches, 1)
	return c.IUserRepository.BatchGetByUUIDs(ctx, uuids)
}

func newCachedFixture(t *testing.T, size int) (IUserRepository, *countingUsers) {
	t.Helper()
	inner := &countingUsers{IUserRepository: NewMemoryStore().Users()}
	repo, err := NewCachedUserRepository(inner, size)
	require.NoError(t, err)
	return repo, inner
}

func TestCachedUsers_ReadThrough(t *testing.T) {
	repo, inner := newCachedFixture(t, 0)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.UserInfo{Uuid: "u1", Username: "alice"}))

	for i := 0; i < 3; i++ {
		u, err := repo.GetByUUID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "alice", u.Username)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.gets))

	_, err := repo.GetByUUID(ctx, "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestCachedUsers_ReturnsCopies(t *testing.T) {
	repo, _ := newCachedFixture(t, 8)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.UserInfo{Uuid: "u1", Username: "alice"}))

	u, err := repo.GetByUUID(ctx, "u1")
	require.NoError(t, err)
	u.Username = "mallory"
	u.Badges.Add(model.BadgeExpert)

	again, err := repo.GetByUUID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Username)
	assert.False(t, again.Badges.Has(model.BadgeExpert))
}

func TestCachedUsers_WritesInvalidate(t *testing.T) {
	repo, inner := newCachedFixture(t, 8)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.UserInfo{Uuid: "u1", Username: "alice"}))
	_, err := repo.GetByUUID(ctx, "u1")
	require.NoError(t, err)

	status := "busy"
	require.NoError(t, repo.UpdateProfile(ctx, "u1", ProfilePatch{Status: &status}))
	u, err := repo.GetByUUID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "busy", u.Status)

	require.NoError(t, repo.UpdateProgress(ctx, "u1", 3, 250, model.BadgeSet{model.BadgeNewbie}))
	u, err = repo.GetByUUID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, u.Level)

	require.NoError(t, repo.UpdatePresence(ctx, "u1", true, time.Now()))
	u, err = repo.GetByUUID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.IsOnline)

	assert.Equal(t, int32(4), atomic.LoadInt32(&inner.gets))
}

func TestCachedUsers_BatchMixesHitsAndMisses(t *testing.T) {
	repo, inner := newCachedFixture(t, 8)
	ctx := context.Background()
	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, repo.Create(ctx, &model.UserInfo{Uuid: id, Username: "name-" + id}))
	}
	_, err := repo.GetByUUID(ctx, "u2")
	require.NoError(t, err)

	list, err := repo.BatchGetByUUIDs(ctx, []string{"u3", "u2", "ghost", "u1"})
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, u := range list {
		ids = append(ids, u.Uuid)
	}
	assert.Equal(t, []string{"u3", "u2", "u1"}, ids)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.batches))

	// 全部命中时不再访问底层
	_, err = repo.BatchGetByUUIDs(ctx, []string{"u1", "u3"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.batches))
}

// gatedUsers 第一次按 UUID 读取时，在读到数据之后阻塞，直到 release 关闭
type gatedUsers struct {
	IUserRepository
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (g *gatedUsers) GetByUUID(ctx context.Context, uuid string) (*model.UserInfo, error) {
	u, err := g.IUserRepository.GetByUUID(ctx, uuid)
	g.once.Do(func() {
		close(g.loaded)
		<-g.release
	})
	return u, err
}

func TestCachedUsers_WriteDuringLoadIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	inner := &gatedUsers{
		IUserRepository: NewMemoryStore().Users(),
		loaded:          make(chan struct{}),
		release:         make(chan struct{}),
	}
	repo, err := NewCachedUserRepository(inner, 8)
	require.NoError(t, err)
	require.NoError(t, inner.IUserRepository.Create(ctx, &model.UserInfo{Uuid: "u1", Username: "alice", Level: 1}))

	done := make(chan *model.UserInfo, 1)
	go func() {
		u, err := repo.GetByUUID(ctx, "u1")
		assert.NoError(t, err)
		done <- u
	}()

	<-inner.loaded
	require.NoError(t, repo.UpdateProgress(ctx, "u1", 2, 105, model.BadgeSet{model.BadgeNewbie}))
	close(inner.release)

	stale := <-done
	assert.Equal(t, int64(0), stale.Xp)

	u, err := repo.GetByUUID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(105), u.Xp)
	assert.Equal(t, 2, u.Level)
}

func TestCachedUsers_BatchWriteDuringLoadIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	inner := &gatedBatchUsers{
		IUserRepository: NewMemoryStore().Users(),
		loaded:          make(chan struct{}),
		release:         make(chan struct{}),
	}
	repo, err := NewCachedUserRepository(inner, 8)
	require.NoError(t, err)
	require.NoError(t, inner.IUserRepository.Create(ctx, &model.UserInfo{Uuid: "u1", Username: "alice", Level: 1}))

	go func() {
		<-inner.loaded
		assert.NoError(t, repo.UpdateProgress(ctx, "u1", 2, 105, nil))
		close(inner.release)
	}()
	_, err = repo.BatchGetByUUIDs(ctx, []string{"u1"})
	require.NoError(t, err)

	u, err := repo.GetByUUID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(105), u.Xp)
}

type gatedBatchUsers struct {
	IUserRepository
	loaded  chan struct{}
	release chan struct{}
}

func (g *gatedBatchUsers) BatchGetByUUIDs(ctx context.Context, uuids []string) ([]*model.UserInfo, error) {
	list, err := g.IUserRepository.BatchGetByUUIDs(ctx, uuids)
	close(g.loaded)
	<-g.release
	return list, err
}
