package config

// KafkaConfig Kafka 配置。
// 当前只用于 Redis 失败写入的重试队列。
type KafkaConfig struct {
	Brokers         []string            `json:"brokers" yaml:"brokers"`
	RedisRetryTopic string              `json:"redisRetryTopic" yaml:"redisRetryTopic"`
	ConsumerConfig  KafkaConsumerConfig `json:"consumer" yaml:"consumer"`
}

// KafkaConsumerConfig 消费者配置。
type KafkaConsumerConfig struct {
	GroupID  string `json:"groupId" yaml:"groupId"`
	MinBytes int    `json:"minBytes" yaml:"minBytes"`
	MaxBytes int    `json:"maxBytes" yaml:"maxBytes"`
}

// DefaultKafkaConfig 返回本地开发的默认配置。
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:         []string{"kafka:9092"},
		RedisRetryTopic: "hub.redis.retry",
		ConsumerConfig: KafkaConsumerConfig{
			GroupID:  "hub-redis-retry",
			MinBytes: 1,
			MaxBytes: 10 << 20,
		},
	}
}
