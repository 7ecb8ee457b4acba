package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer 对 kafka.Writer 的薄封装，固定写一个 topic。
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer 创建生产者。
// 重试队列对顺序没有要求，使用 LeastBytes 均衡分区。
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		topic: topic,
	}
}

// Topic 返回写入的 topic。
func (p *Producer) Topic() string { return p.topic }

// SendJSON 序列化后写入，key 用于分区（同一用户的任务落同一分区）。
func (p *Producer) SendJSON(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
}

// Close 刷新缓冲并关闭连接。
func (p *Producer) Close() error {
	return p.writer.Close()
}
