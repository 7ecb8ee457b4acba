package handler

import (
	"context"
	"net/http"
	"time"

	"ChatHub/consts"
	rediskey "ChatHub/consts/redisKey"
	"ChatHub/pkg/ctxmeta"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/result"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// tokenBucket 原子地补充并消耗令牌
//
//	KEYS[1]: 限流 key
//	ARGV[1]: 当前时间戳（毫秒）
//	ARGV[2]: 桶容量
//	ARGV[3]: 每秒产生的令牌数
//	ARGV[4]: 本次消耗的令牌数
//
// 返回 1 放行，0 限流
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local info = redis.call('HMGET', key, 'tokens', 'last_time')
local tokens = tonumber(info[1])
local last_time = tonumber(info[2])
if tokens == nil then
    tokens = capacity
end
if last_time == nil then
    last_time = now
end

local refill = math.floor((math.max(0, now - last_time) * rate) / 1000)
if refill > 0 then
    tokens = math.min(capacity, tokens + refill)
    last_time = now
end

local allowed = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_time', last_time)
redis.call('EXPIRE', key, math.max(60, math.ceil(capacity / rate) * 2))
return allowed
`)

// redisCheckTimeout Redis 慢时不拖住请求
const redisCheckTimeout = 50 * time.Millisecond

// RedisRateLimiter 基于 Redis 的令牌桶，Redis 不可用时降级放行
type RedisRateLimiter struct {
	client *redis.Client
	rate   float64
	burst  int
	now    func() time.Time
}

// NewRedisRateLimiter client 为 nil 时所有请求放行
func NewRedisRateLimiter(client *redis.Client, rate float64, burst int) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, rate: rate, burst: burst, now: time.Now}
}

// Allow 判断 key 是否还有令牌
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	if r == nil || r.client == nil || r.rate <= 0 {
		return true
	}

	redisCtx, cancel := context.WithTimeout(ctx, redisCheckTimeout)
	defer cancel()

	res, err := tokenBucket.Run(redisCtx, r.client, []string{key}, r.now().UnixMilli(), r.burst, r.rate, 1).Result()
	if err != nil {
		logger.Warn(ctx, "Redis 限流检查失败，降级放行",
			logger.String("key", key),
			logger.ErrorField("error", err),
		)
		return true
	}
	allowed, ok := res.(int64)
	if !ok {
		logger.Warn(ctx, "Redis 限流返回值类型错误，降级放行",
			logger.String("key", key),
			logger.Any("result", res),
		)
		return true
	}
	return allowed == 1
}

// Blacklist IP 黑名单，存放在 Redis Set 中
type Blacklist struct {
	client *redis.Client
	key    string
}

// NewBlacklist client 为 nil 时不拦截任何 IP
func NewBlacklist(client *redis.Client) *Blacklist {
	return &Blacklist{client: client, key: rediskey.BlacklistIPsKey()}
}

// Contains 查询失败时视为不在黑名单
func (b *Blacklist) Contains(ctx context.Context, ip string) bool {
	if b == nil || b.client == nil {
		return false
	}
	redisCtx, cancel := context.WithTimeout(ctx, redisCheckTimeout)
	defer cancel()

	exists, err := b.client.SIsMember(redisCtx, b.key, ip).Result()
	if err != nil {
		logger.Warn(ctx, "Redis 黑名单检查失败，降级放行",
			logger.String("ip", ip),
			logger.ErrorField("error", err),
		)
		return false
	}
	return exists
}

// IPRateLimit 先查黑名单再按 IP 限流，需放在 ClientIP 之后
func IPRateLimit(limiter *RedisRateLimiter, blacklist *Blacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxmeta.FromGin(c)
		ip := c.GetString(ctxmeta.KeyClientIP)
		if ip == "" {
			ip = GetClientIP(c)
		}

		if blacklist.Contains(ctx, ip) {
			logger.Warn(ctx, "IP 在黑名单中，拒绝访问",
				logger.String("ip", ip),
				logger.String("path", c.Request.URL.Path),
			)
			result.Abort(c, http.StatusForbidden, consts.CodePermissionDeny)
			return
		}

		if !limiter.Allow(ctx, rediskey.IPRateLimitKey(ip)) {
			logger.Warn(ctx, "IP 请求被限流",
				logger.String("ip", ip),
				logger.String("path", c.Request.URL.Path),
				logger.String("method", c.Request.Method),
			)
			result.Abort(c, http.StatusTooManyRequests, consts.CodeTooManyRequests)
			return
		}
		c.Next()
	}
}
