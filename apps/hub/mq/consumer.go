package mq

import (
	"context"
	"encoding/json"

	"ChatHub/pkg/logger"

	kafkago "github.com/segmentio/kafka-go"
)

// RedisDoer 执行一条 Redis 命令，生产环境为 redis.Client.Do(...).Err()
type RedisDoer func(ctx context.Context, args ...interface{}) error

// RetryHandler 消费重试任务并回放到 Redis。
// 回放失败且未超过最大次数时重新投递，否则丢弃并记日志。
type RetryHandler struct {
	do RedisDoer
}

// NewRetryHandler 创建回放处理器
func NewRetryHandler(do RedisDoer) *RetryHandler {
	return &RetryHandler{do: do}
}

// Handle 满足 pkg/kafka.Handler；总是返回 nil，失败任务通过重新投递处理
func (h *RetryHandler) Handle(ctx context.Context, msg kafkago.Message) error {
	var task RedisTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		logger.Error(ctx, "Redis 重试任务解析失败，丢弃",
			logger.ErrorField("error", err),
			logger.Int64("offset", msg.Offset),
		)
		return nil
	}

	execErr := h.Replay(ctx, task)
	if execErr == nil {
		return nil
	}

	task.RetryCount++
	task = task.WithError(execErr)
	if task.RetryCount >= task.MaxRetries {
		logger.Error(ctx, "Redis 重试次数耗尽，放弃",
			logger.String("user_uuid", task.UserUUID),
			logger.String("trace_id", task.TraceID),
			logger.Int("retry_count", task.RetryCount),
			logger.ErrorField("error", execErr),
		)
		return nil
	}
	if err := SendRedisTask(ctx, task); err != nil {
		logger.Error(ctx, "Redis 重试任务重新投递失败",
			logger.String("user_uuid", task.UserUUID),
			logger.ErrorField("error", err),
		)
	}
	return nil
}

// Replay 依次执行任务中的命令，遇错即停
func (h *RetryHandler) Replay(ctx context.Context, task RedisTask) error {
	for _, cmd := range task.Cmds() {
		if err := h.do(ctx, cmd.Argv()...); err != nil {
			return err
		}
	}
	return nil
}
