package config

import "time"

// AsyncConfig 协程池配置。
// 协调器里所有“尽力而为”的旁路写入（在线状态投影、邮件通知、缓存回写）都走这个池子，
// 主链路（消息落库、信令转发）不依赖它。
type AsyncConfig struct {
	PoolSize         int           `json:"poolSize" yaml:"poolSize"`                 // 协程池容量
	MaxBlockingTasks int           `json:"maxBlockingTasks" yaml:"maxBlockingTasks"` // 最大阻塞任务数（0 表示不限制）
	ExpiryDuration   time.Duration `json:"expiryDuration" yaml:"expiryDuration"`     // 空闲 worker 过期时间
	Nonblocking      bool          `json:"nonblocking" yaml:"nonblocking"`           // 是否非阻塞提交
	ReleaseTimeout   time.Duration `json:"releaseTimeout" yaml:"releaseTimeout"`     // 优雅释放等待时间
	TaskTimeout      time.Duration `json:"taskTimeout" yaml:"taskTimeout"`           // 单个旁路任务的默认超时
}

// DefaultAsyncConfig 返回本地开发的默认配置。
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		PoolSize:         128,
		MaxBlockingTasks: 1024,
		ExpiryDuration:   10 * time.Second,
		Nonblocking:      true,
		ReleaseTimeout:   5 * time.Second,
		TaskTimeout:      3 * time.Second,
	}
}
