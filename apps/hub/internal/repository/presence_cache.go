package repository

import (
	"context"
	"time"

	"ChatHub/apps/hub/mq"
	rediskey "ChatHub/consts/redisKey"

	"github.com/redis/go-redis/v9"
)

// presenceCacheImpl 在线状态 Redis 缓存
type presenceCacheImpl struct {
	redisClient *redis.Client
}

// NewPresenceCache 创建在线状态缓存
func NewPresenceCache(redisClient *redis.Client) IPresenceCache {
	return &presenceCacheImpl{redisClient: redisClient}
}

// SetOnline hash 写 online=1/last_seen/conn_id，并加入在线集合。
// 写失败时投递重试任务，返回包装后的错误供熔断器统计。
func (r *presenceCacheImpl) SetOnline(ctx context.Context, uuid, connID string, at time.Time) error {
	key := rediskey.PresenceKey(uuid)
	ts := at.Unix()

	pipe := r.redisClient.TxPipeline()
	pipe.HSet(ctx, key, "online", 1, "last_seen", ts, "conn_id", connID)
	pipe.Expire(ctx, key, rediskey.PresenceTTL)
	pipe.SAdd(ctx, rediskey.OnlineSetKey(), uuid)
	if _, err := pipe.Exec(ctx); err != nil {
		LogAndRetryRedisError(ctx, mq.BuildPipelineTask([]mq.RedisCmd{
			{Command: "hset", Args: []interface{}{key, "online", 1, "last_seen", ts, "conn_id", connID}},
			{Command: "expire", Args: []interface{}{key, int64(rediskey.PresenceTTL.Seconds())}},
			{Command: "sadd", Args: []interface{}{rediskey.OnlineSetKey(), uuid}},
		}).WithSource("presence.online"), err)
		return WrapRedisError(err)
	}
	return nil
}

// SetOffline hash 写 online=0/last_seen，移出在线集合
func (r *presenceCacheImpl) SetOffline(ctx context.Context, uuid string, at time.Time) error {
	key := rediskey.PresenceKey(uuid)
	ts := at.Unix()

	pipe := r.redisClient.TxPipeline()
	pipe.HSet(ctx, key, "online", 0, "last_seen", ts)
	pipe.HDel(ctx, key, "conn_id")
	pipe.Expire(ctx, key, rediskey.PresenceTTL)
	pipe.SRem(ctx, rediskey.OnlineSetKey(), uuid)
	if _, err := pipe.Exec(ctx); err != nil {
		LogAndRetryRedisError(ctx, mq.BuildPipelineTask([]mq.RedisCmd{
			{Command: "hset", Args: []interface{}{key, "online", 0, "last_seen", ts}},
			{Command: "hdel", Args: []interface{}{key, "conn_id"}},
			{Command: "expire", Args: []interface{}{key, int64(rediskey.PresenceTTL.Seconds())}},
			{Command: "srem", Args: []interface{}{rediskey.OnlineSetKey(), uuid}},
		}).WithSource("presence.offline"), err)
		return WrapRedisError(err)
	}
	return nil
}
