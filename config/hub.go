package config

import "time"

// HubConfig 协调器自身的运行参数。
type HubConfig struct {
	Addr              string        `json:"addr" yaml:"addr"`                           // HTTP/WS 监听地址
	GRPCAddr          string        `json:"grpcAddr" yaml:"grpcAddr"`                   // 内部 gRPC 健康检查地址，空表示不启用
	ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"` // 握手阶段读 header 超时
	IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`

	SendQueueSize int     `json:"sendQueueSize" yaml:"sendQueueSize"` // 单连接下行队列长度
	FrameRate     float64 `json:"frameRate" yaml:"frameRate"`         // 单连接每秒允许的上行帧数
	FrameBurst    int     `json:"frameBurst" yaml:"frameBurst"`       // 单连接上行突发容量
	MaxFrameBytes int64   `json:"maxFrameBytes" yaml:"maxFrameBytes"` // 单帧最大字节数

	APIRate  float64 `json:"apiRate" yaml:"apiRate"`   // REST 按 IP 每秒令牌数，0 表示不限流
	APIBurst int     `json:"apiBurst" yaml:"apiBurst"` // REST 按 IP 令牌桶容量

	XPPerMessage   int64 `json:"xpPerMessage" yaml:"xpPerMessage"`     // 每条消息奖励经验
	VerifyReceiver bool  `json:"verifyReceiver" yaml:"verifyReceiver"` // 发送消息时是否校验接收方存在
	HistoryLimit   int   `json:"historyLimit" yaml:"historyLimit"`     // 历史消息条数上限，0 表示不限

	SnowflakeNode int64 `json:"snowflakeNode" yaml:"snowflakeNode"` // 雪花算法节点号
}

// DefaultHubConfig 返回默认配置。
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Addr:              ":8080",
		GRPCAddr:          ":9090",
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   15 * time.Second,

		SendQueueSize: 64,
		FrameRate:     20,
		FrameBurst:    40,
		MaxFrameBytes: 64 * 1024,

		APIRate:  10,
		APIBurst: 20,

		XPPerMessage:   5,
		VerifyReceiver: false,
		HistoryLimit:   0,

		SnowflakeNode: 1,
	}
}
