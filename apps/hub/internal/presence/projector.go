package presence

import (
	"context"
	"sync"
	"time"

	"ChatHub/apps/hub/internal/metrics"
	"ChatHub/apps/hub/internal/repository"
	"ChatHub/pkg/async"
	"ChatHub/pkg/logger"

	"github.com/sony/gobreaker"
)

const projectionTimeout = 3 * time.Second

// StoreProjector 把上下线写到身份表（is_online/last_seen_at）与 Redis 缓存。
// 写入在协程池中执行，身份表写入经过熔断器；同一用户的事件按发生顺序生效，过时事件直接丢弃。
type StoreProjector struct {
	users   repository.IUserRepository
	cache   repository.IPresenceCache
	breaker *gobreaker.CircuitBreaker

	mu      sync.Mutex
	seq     uint64
	applied map[string]uint64 // 每个用户已生效的最大事件序号
	pending map[string]int    // 每个用户尚未执行完的事件数，归零时清掉两张表中的条目
}

// NewStoreProjector 创建投影器，cache 为 nil 时只写身份表
func NewStoreProjector(users repository.IUserRepository, cache repository.IPresenceCache) *StoreProjector {
	return &StoreProjector{
		users: users,
		cache: cache,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "presence-projection",
			MaxRequests: 3,
			Interval:    15 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn(context.Background(), "熔断器状态变化",
					logger.String("name", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			},
		}),
		applied: make(map[string]uint64),
		pending: make(map[string]int),
	}
}

// Online 实现 Projector
func (p *StoreProjector) Online(ctx context.Context, userID, connID string, at time.Time) {
	p.submit(ctx, userID, func(ctx context.Context) {
		p.write(ctx, userID, true, at)
		if p.cache != nil {
			if err := p.cache.SetOnline(ctx, userID, connID, at); err != nil {
				metrics.ProjectionFailures.WithLabelValues("cache").Inc()
			}
		}
	})
}

// Offline 实现 Projector
func (p *StoreProjector) Offline(ctx context.Context, userID string, at time.Time) {
	p.submit(ctx, userID, func(ctx context.Context) {
		p.write(ctx, userID, false, at)
		if p.cache != nil {
			if err := p.cache.SetOffline(ctx, userID, at); err != nil {
				metrics.ProjectionFailures.WithLabelValues("cache").Inc()
			}
		}
	})
}

func (p *StoreProjector) submit(ctx context.Context, userID string, apply func(ctx context.Context)) {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.pending[userID]++
	p.mu.Unlock()

	async.RunSafe(ctx, func(ctx context.Context) {
		defer p.done(userID)
		if !p.claim(userID, seq) {
			return
		}
		apply(ctx)
	}, projectionTimeout)
}

// claim 只允许比已生效事件更新的事件执行
func (p *StoreProjector) claim(userID string, seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq <= p.applied[userID] {
		return false
	}
	p.applied[userID] = seq
	return true
}

// done 事件结束；该用户没有在途事件时，后续事件的序号必然更大，可以丢弃记录
func (p *StoreProjector) done(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := p.pending[userID] - 1; n > 0 {
		p.pending[userID] = n
		return
	}
	delete(p.pending, userID)
	delete(p.applied, userID)
}

// tracked 仍保留序号记录的用户数
func (p *StoreProjector) tracked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.applied)
}

func (p *StoreProjector) write(ctx context.Context, userID string, online bool, at time.Time) {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.users.UpdatePresence(ctx, userID, online, at)
	})
	if err != nil {
		metrics.ProjectionFailures.WithLabelValues("store").Inc()
		logger.Warn(ctx, "在线状态写入身份表失败",
			logger.String("user_uuid", userID),
			logger.Bool("online", online),
			logger.ErrorField("error", err),
		)
	}
}
