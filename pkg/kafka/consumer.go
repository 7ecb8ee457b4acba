package kafka

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler 处理单条消息；返回 error 时不提交 offset。
type Handler func(ctx context.Context, msg kafka.Message) error

// Consumer 消费组读者封装。
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer 创建消费组读者。
func NewConsumer(brokers []string, topic, groupID string, minBytes, maxBytes int, log *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			MinBytes:    minBytes,
			MaxBytes:    maxBytes,
			ErrorLogger: NewZapLoggerAdapter(log),
		}),
	}
}

// Run 阻塞消费直到 ctx 取消。
// 处理失败的消息不提交，会在 rebalance 或重启后重新投递。
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := handle(ctx, msg); err != nil {
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			return err
		}
	}
}

// Close 关闭读者。
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// zapLoggerAdapter 适配 kafka.Logger 接口。
type zapLoggerAdapter struct {
	log *zap.Logger
}

// NewZapLoggerAdapter 把 zap 接到 kafka-go 的错误日志上。
func NewZapLoggerAdapter(log *zap.Logger) kafka.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &zapLoggerAdapter{log: log}
}

func (a *zapLoggerAdapter) Printf(format string, args ...interface{}) {
	a.log.Sugar().Warnf(format, args...)
}
