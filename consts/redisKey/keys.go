package rediskey

import (
	"fmt"
	"time"
)

// ==================== TTL 常量 ====================

const (
	// PresenceTTL 在线状态哈希 TTL，离线后保留用于展示“最后在线时间”
	PresenceTTL = 30 * 24 * time.Hour
)

// ==================== Key 构造函数 ====================

// PresenceKey 用户在线状态 Key: hub:presence:{user_uuid}
// field: online(0/1) / last_seen(unix 秒) / conn_id
func PresenceKey(userUUID string) string {
	return fmt.Sprintf("hub:presence:%s", userUUID)
}

// OnlineSetKey 在线用户集合 Key: hub:presence:online
func OnlineSetKey() string {
	return "hub:presence:online"
}

// IPRateLimitKey 接入层 IP 令牌桶 Key: hub:rate:limit:ip:{ip}
func IPRateLimitKey(ip string) string {
	return fmt.Sprintf("hub:rate:limit:ip:%s", ip)
}

// BlacklistIPsKey IP 黑名单集合 Key: hub:blacklist:ips
func BlacklistIPsKey() string {
	return "hub:blacklist:ips"
}
