package repository

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"ChatHub/model"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultUserCacheSize 默认缓存的用户资料条数
const DefaultUserCacheSize = 4096

const userCacheShards = 64

// cachedUserRepository 在 IUserRepository 外包一层进程内 LRU。
// 只缓存按 UUID 的读取，任何写操作都会使对应条目失效。
// 写入完成后递增所在分片的代数；读穿透期间代数变化则不回填，避免把写之前读到的旧行放回缓存。
type cachedUserRepository struct {
	inner IUserRepository
	cache *lru.Cache[string, *model.UserInfo]

	mu          sync.Mutex
	generations [userCacheShards]uint64
}

// NewCachedUserRepository 创建带 LRU 缓存的用户仓库，size <= 0 时使用默认大小
func NewCachedUserRepository(inner IUserRepository, size int) (IUserRepository, error) {
	if size <= 0 {
		size = DefaultUserCacheSize
	}
	cache, err := lru.New[string, *model.UserInfo](size)
	if err != nil {
		return nil, err
	}
	return &cachedUserRepository{inner: inner, cache: cache}, nil
}

func shardOf(uuid string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(uuid))
	return int(h.Sum32() % userCacheShards)
}

func (r *cachedUserRepository) generation(uuid string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generations[shardOf(uuid)]
}

// invalidate 写入之后调用：代数递增与删除条目在同一把锁内完成
func (r *cachedUserRepository) invalidate(uuid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations[shardOf(uuid)]++
	r.cache.Remove(uuid)
}

// fill 仅在读穿透期间没有发生写入时回填
func (r *cachedUserRepository) fill(u *model.UserInfo, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generations[shardOf(u.Uuid)] != gen {
		return
	}
	r.cache.Add(u.Uuid, cloneUser(u))
}

func (r *cachedUserRepository) Create(ctx context.Context, user *model.UserInfo) error {
	defer r.invalidate(user.Uuid)
	return r.inner.Create(ctx, user)
}

func (r *cachedUserRepository) GetByUUID(ctx context.Context, uuid string) (*model.UserInfo, error) {
	if u, ok := r.cache.Get(uuid); ok {
		return cloneUser(u), nil
	}
	gen := r.generation(uuid)
	u, err := r.inner.GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	r.fill(u, gen)
	return u, nil
}

func (r *cachedUserRepository) GetByUsername(ctx context.Context, username string) (*model.UserInfo, error) {
	return r.inner.GetByUsername(ctx, username)
}

func (r *cachedUserRepository) BatchGetByUUIDs(ctx context.Context, uuids []string) ([]*model.UserInfo, error) {
	found := make(map[string]*model.UserInfo, len(uuids))
	var misses []string
	for _, id := range uuids {
		if u, ok := r.cache.Get(id); ok {
			found[id] = cloneUser(u)
		} else {
			misses = append(misses, id)
		}
	}
	if len(misses) > 0 {
		gens := make(map[string]uint64, len(misses))
		for _, id := range misses {
			gens[id] = r.generation(id)
		}
		loaded, err := r.inner.BatchGetByUUIDs(ctx, misses)
		if err != nil {
			return nil, err
		}
		for _, u := range loaded {
			if gen, ok := gens[u.Uuid]; ok {
				r.fill(u, gen)
			}
			found[u.Uuid] = u
		}
	}

	out := make([]*model.UserInfo, 0, len(found))
	for _, id := range uuids {
		if u, ok := found[id]; ok {
			out = append(out, u)
			delete(found, id)
		}
	}
	return out, nil
}

func (r *cachedUserRepository) Search(ctx context.Context, keyword, excludeUUID string, limit int) ([]*model.UserInfo, error) {
	return r.inner.Search(ctx, keyword, excludeUUID, limit)
}

func (r *cachedUserRepository) UpdateProfile(ctx context.Context, uuid string, patch ProfilePatch) error {
	defer r.invalidate(uuid)
	return r.inner.UpdateProfile(ctx, uuid, patch)
}

func (r *cachedUserRepository) UpdateProgress(ctx context.Context, uuid string, level int, xp int64, badges model.BadgeSet) error {
	defer r.invalidate(uuid)
	return r.inner.UpdateProgress(ctx, uuid, level, xp, badges)
}

func (r *cachedUserRepository) UpdatePresence(ctx context.Context, uuid string, online bool, lastSeen time.Time) error {
	defer r.invalidate(uuid)
	return r.inner.UpdatePresence(ctx, uuid, online, lastSeen)
}
