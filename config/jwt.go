package config

import "time"

// JWTConfig 令牌签发配置。
type JWTConfig struct {
	Secret   string        `json:"secret" yaml:"secret"`
	Issuer   string        `json:"issuer" yaml:"issuer"`
	TokenTTL time.Duration `json:"tokenTtl" yaml:"tokenTtl"`
}

// DefaultJWTConfig 返回本地开发的默认配置。
// 生产环境必须通过配置文件或 HUB_JWT_SECRET 覆盖 Secret。
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:   "chathub-dev-secret",
		Issuer:   "chathub",
		TokenTTL: 7 * 24 * time.Hour,
	}
}
