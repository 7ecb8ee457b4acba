// Package presencetest 提供记录下行帧的内存连接句柄，供各组件单测使用。
package presencetest

import (
	"encoding/json"
	"sync"

	"ChatHub/apps/hub/internal/protocol"
)

// Conn 内存连接，Push 的帧全部记录下来
type Conn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

// NewConn 创建连接
func NewConn(id string) *Conn {
	return &Conn{id: id}
}

func (c *Conn) ID() string { return c.id }

// Push 记录帧；Close 之后返回 false
func (c *Conn) Push(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return true
}

// Close 模拟连接不可写
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Reset 清空已记录的帧
func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// Types 按顺序返回已收到帧的类型
func (c *Conn) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, raw := range c.frames {
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err == nil {
			out = append(out, env.Type)
		}
	}
	return out
}

// Count 指定类型的帧数量
func (c *Conn) Count(frameType string) int {
	n := 0
	for _, t := range c.Types() {
		if t == frameType {
			n++
		}
	}
	return n
}

// Last 把最后一帧指定类型的 data 解到 v，没有时返回 false
func (c *Conn) Last(frameType string, v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		var env protocol.Envelope
		if err := json.Unmarshal(c.frames[i], &env); err != nil || env.Type != frameType {
			continue
		}
		if v != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, v); err != nil {
				return false
			}
		}
		return true
	}
	return false
}
