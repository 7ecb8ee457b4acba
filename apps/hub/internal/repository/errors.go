package repository

import (
	"context"
	"errors"
	"fmt"

	"ChatHub/apps/hub/mq"
	"ChatHub/pkg/logger"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	// ErrRecordNotFound 记录不存在
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateKey 唯一键冲突
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrDatabase 数据库操作错误
	ErrDatabase = errors.New("database error")

	// ErrRedisNil Redis Key 不存在
	ErrRedisNil = errors.New("redis: key not found")

	// ErrRedis Redis 操作错误
	ErrRedis = errors.New("redis error")
)

// wrapError 按规则把驱动错误映射为仓储错误；未命中规则时包一层默认错误并保留原始信息。
func wrapError(err error, rules map[error]error, defaultErr error) error {
	if err == nil {
		return nil
	}
	for source, target := range rules {
		if errors.Is(err, source) {
			return target
		}
	}
	// 已经是仓储错误的不再重复包装
	for _, known := range []error{ErrRecordNotFound, ErrDuplicateKey, ErrDatabase, ErrRedisNil, ErrRedis} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", defaultErr, err)
}

var (
	dbErrorRules = map[error]error{
		gorm.ErrRecordNotFound: ErrRecordNotFound,
		gorm.ErrDuplicatedKey:  ErrDuplicateKey,
	}

	redisErrorRules = map[error]error{
		redis.Nil: ErrRedisNil,
	}
)

// WrapDBError 包装数据库错误
func WrapDBError(err error) error {
	return wrapError(err, dbErrorRules, ErrDatabase)
}

// WrapRedisError 包装 Redis 错误
func WrapRedisError(err error) error {
	return wrapError(err, redisErrorRules, ErrRedis)
}

// LogAndRetryRedisError 记录 Redis 错误并把任务投递到 Kafka 重试队列。
// 重试队列不可用时只记日志，调用方不感知。
func LogAndRetryRedisError(ctx context.Context, task mq.RedisTask, err error) {
	logger.Warn(ctx, "Redis 操作失败，发送到重试队列",
		logger.ErrorField("error", err),
		logger.String("task_type", string(task.Type)),
		logger.String("command", task.Command),
	)

	task = task.WithContext(ctx).WithError(err)

	if kafkaErr := mq.SendRedisTask(ctx, task); kafkaErr != nil {
		logger.Error(ctx, "发送 Redis 重试任务到 Kafka 失败，放弃处理",
			logger.ErrorField("kafka_error", kafkaErr),
			logger.ErrorField("original_error", err),
			logger.String("task_type", string(task.Type)),
		)
	}
}
