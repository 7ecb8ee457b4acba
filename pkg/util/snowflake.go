package util

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node     *snowflake.Node
	nodeOnce sync.Mutex
)

// InitSnowflake 初始化雪花算法节点（进程启动时调用一次）。
func InitSnowflake(nodeID int64) error {
	nodeOnce.Lock()
	defer nodeOnce.Unlock()

	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	node = n
	return nil
}

// NextID 生成全局递增 ID。
// 未初始化时按节点 0 懒加载，保证单测和工具进程可直接使用。
func NextID() int64 {
	nodeOnce.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(0)
	}
	n := node
	nodeOnce.Unlock()
	return n.Generate().Int64()
}

// NextIDString 生成字符串形式的 ID（通话 ID 等对外暴露的场景）。
func NextIDString() string {
	return snowflake.ID(NextID()).String()
}
