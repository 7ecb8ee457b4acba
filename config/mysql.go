package config

import "time"

// MySQLConfig 数据库配置。
// Driver 支持 mysql / sqlite / memory：
// - mysql:  生产部署，可选配置只读副本（dbresolver 读写分离）；
// - sqlite: 单机单文件，本地调试使用；
// - memory: 不落盘，进程退出即丢失，仅用于演示与测试。
type MySQLConfig struct {
	Driver          string        `json:"driver" yaml:"driver"`
	DSN             string        `json:"dsn" yaml:"dsn"`                         // 主库 DSN（sqlite 下为文件路径）
	ReplicaDSNs     []string      `json:"replicaDsns" yaml:"replicaDsns"`         // 只读副本 DSN
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`       // 最大打开连接数
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`       // 最大空闲连接数
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"` // 连接最大存活时间
	SlowThreshold   time.Duration `json:"slowThreshold" yaml:"slowThreshold"`     // 慢查询阈值
	AutoMigrate     bool          `json:"autoMigrate" yaml:"autoMigrate"`         // 启动时自动建表
}

// DefaultMySQLConfig 返回本地开发的默认配置（与 docker-compose.yml 对齐）。
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		Driver:          "mysql",
		DSN:             "root:root@tcp(mysql:3306)/chathub?charset=utf8mb4&parseTime=True&loc=Local",
		MaxOpenConns:    100,
		MaxIdleConns:    20,
		ConnMaxLifetime: time.Hour,
		SlowThreshold:   200 * time.Millisecond,
		AutoMigrate:     true,
	}
}
