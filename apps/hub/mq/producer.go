package mq

import (
	"context"
	"errors"
	"sync"

	"ChatHub/pkg/kafka"
)

// ErrProducerNotReady 重试队列未初始化（未配置 Kafka）
var ErrProducerNotReady = errors.New("redis retry producer not initialized")

// TaskSender 重试任务投递接口，测试中可替换
type TaskSender interface {
	SendJSON(ctx context.Context, key string, v any) error
}

var (
	producerMu sync.RWMutex
	producer   TaskSender
)

// InitProducer 设置全局重试队列生产者
func InitProducer(p TaskSender) {
	producerMu.Lock()
	producer = p
	producerMu.Unlock()
}

// NewKafkaProducer 创建写入重试 topic 的 Kafka 生产者
func NewKafkaProducer(brokers []string, topic string) *kafka.Producer {
	return kafka.NewProducer(brokers, topic)
}

// SendRedisTask 投递重试任务，按用户分区
func SendRedisTask(ctx context.Context, task RedisTask) error {
	producerMu.RLock()
	p := producer
	producerMu.RUnlock()
	if p == nil {
		return ErrProducerNotReady
	}
	return p.SendJSON(ctx, task.UserUUID, task)
}
