package config

import "time"

// MinIOConfig 头像对象存储配置。
// Endpoint 为空表示不启用头像上传。
type MinIOConfig struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint"`               // MinIO 服务地址，如: localhost:9000
	AccessKeyID     string `json:"accessKeyId" yaml:"accessKeyId"`         // Access Key
	SecretAccessKey string `json:"secretAccessKey" yaml:"secretAccessKey"` // Secret Key
	UseSSL          bool   `json:"useSSL" yaml:"useSSL"`                   // 是否使用 HTTPS

	BucketName string `json:"bucketName" yaml:"bucketName"` // 头像存储桶
	Location   string `json:"location" yaml:"location"`     // Bucket 区域

	MaxFileSize   int64         `json:"maxFileSize" yaml:"maxFileSize"`     // 头像最大字节数
	AllowedTypes  []string      `json:"allowedTypes" yaml:"allowedTypes"`   // 允许的 Content-Type
	UploadTimeout time.Duration `json:"uploadTimeout" yaml:"uploadTimeout"` // 上传超时

	BaseURL string `json:"baseUrl" yaml:"baseUrl"` // 返回给客户端的访问前缀
}

// DefaultMinIOConfig 返回本地开发的默认配置。
func DefaultMinIOConfig() MinIOConfig {
	return MinIOConfig{
		Endpoint:        "minio:9000",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		UseSSL:          false,

		BucketName: "chathub-avatar",
		Location:   "us-east-1",

		MaxFileSize:   2 * 1024 * 1024, // 2MB
		AllowedTypes:  []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		UploadTimeout: 30 * time.Second,

		BaseURL: "http://localhost:9000",
	}
}
