package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 进程级完整配置。
// 各子配置先取 Default*Config，再由 YAML 文件覆盖，最后应用环境变量。
type Config struct {
	Hub    HubConfig    `json:"hub" yaml:"hub"`
	Logger LoggerConfig `json:"logger" yaml:"logger"`
	MySQL  MySQLConfig  `json:"mysql" yaml:"mysql"`
	Redis  RedisConfig  `json:"redis" yaml:"redis"`
	Kafka  KafkaConfig  `json:"kafka" yaml:"kafka"`
	MinIO  MinIOConfig  `json:"minio" yaml:"minio"`
	Async  AsyncConfig  `json:"async" yaml:"async"`
	JWT    JWTConfig    `json:"jwt" yaml:"jwt"`
	Mail   MailConfig   `json:"mail" yaml:"mail"`
}

// Default 返回全部默认值。
func Default() Config {
	return Config{
		Hub:    DefaultHubConfig(),
		Logger: DefaultLoggerConfig(),
		MySQL:  DefaultMySQLConfig(),
		Redis:  DefaultRedisConfig(),
		Kafka:  DefaultKafkaConfig(),
		MinIO:  DefaultMinIOConfig(),
		Async:  DefaultAsyncConfig(),
		JWT:    DefaultJWTConfig(),
		Mail:   DefaultMailConfig(),
	}
}

// Load 读取配置。
// path 为空时只使用默认值 + 环境变量；文件中未出现的字段保留默认值。
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// Parse 将 YAML 内容覆盖到 cfg 上。
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnv 容器部署常用的少量覆盖项。
func applyEnv(cfg *Config) {
	if v := os.Getenv("HUB_ADDR"); v != "" {
		cfg.Hub.Addr = v
	}
	if v := os.Getenv("HUB_DB_DRIVER"); v != "" {
		cfg.MySQL.Driver = v
	}
	if v := os.Getenv("HUB_DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	}
	if v := os.Getenv("HUB_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("HUB_JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("HUB_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
}
