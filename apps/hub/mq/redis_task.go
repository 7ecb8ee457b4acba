package mq

import (
	"context"
	"time"

	"ChatHub/pkg/ctxmeta"
)

// ==================== Redis 任务定义 ====================

type CommandType string

const (
	CmdSimple   CommandType = "simple"   // HSet, SAdd, Expire...
	CmdPipeline CommandType = "pipeline" // 一组命令按顺序执行
)

const defaultMaxRetries = 3

// RedisTask 写入 Kafka 的重试任务
type RedisTask struct {
	Type CommandType `json:"type"`

	Command string        `json:"command,omitempty"`
	Args    []interface{} `json:"args,omitempty"`

	PipelineCmds []RedisCmd `json:"pipeline_cmds,omitempty"`

	TraceID     string    `json:"trace_id,omitempty"`
	UserUUID    string    `json:"user_uuid,omitempty"`
	ConnID      string    `json:"conn_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	RetryCount  int       `json:"retry_count"`
	MaxRetries  int       `json:"max_retries"`
	OriginalErr string    `json:"original_err"`
	Source      string    `json:"source,omitempty"`
}

type RedisCmd struct {
	Command string        `json:"command"`
	Args    []interface{} `json:"args"`
}

// Argv 返回可直接交给 redis.Client.Do 的参数
func (c RedisCmd) Argv() []interface{} {
	return append([]interface{}{c.Command}, c.Args...)
}

// Cmds 把任务展开为命令列表
func (t RedisTask) Cmds() []RedisCmd {
	if t.Type == CmdPipeline {
		return t.PipelineCmds
	}
	return []RedisCmd{{Command: t.Command, Args: t.Args}}
}

// ==================== 构造器函数 ====================

func newSimpleTask(command string, args ...interface{}) RedisTask {
	return RedisTask{
		Type:       CmdSimple,
		Command:    command,
		Args:       args,
		Timestamp:  time.Now(),
		MaxRetries: defaultMaxRetries,
	}
}

// BuildHSetTask 构造 HSET key f1 v1 f2 v2 ...
func BuildHSetTask(key string, fieldValues ...interface{}) RedisTask {
	return newSimpleTask("hset", append([]interface{}{key}, fieldValues...)...)
}

// BuildSAddTask 构造 SADD
func BuildSAddTask(key string, members ...interface{}) RedisTask {
	return newSimpleTask("sadd", append([]interface{}{key}, members...)...)
}

// BuildSRemTask 构造 SREM
func BuildSRemTask(key string, members ...interface{}) RedisTask {
	return newSimpleTask("srem", append([]interface{}{key}, members...)...)
}

// BuildExpireTask 构造 EXPIRE
func BuildExpireTask(key string, ttl time.Duration) RedisTask {
	return newSimpleTask("expire", key, int64(ttl.Seconds()))
}

// BuildPipelineTask 构造 Pipeline 任务
func BuildPipelineTask(cmds []RedisCmd) RedisTask {
	return RedisTask{
		Type:         CmdPipeline,
		PipelineCmds: cmds,
		Timestamp:    time.Now(),
		MaxRetries:   defaultMaxRetries,
	}
}

// ==================== 链式方法 ====================

// WithContext 从 ctx 中带上链路信息
func (t RedisTask) WithContext(ctx context.Context) RedisTask {
	t.TraceID = ctxmeta.TraceID(ctx)
	t.UserUUID = ctxmeta.UserUUID(ctx)
	t.ConnID = ctxmeta.ConnID(ctx)
	return t
}

// WithError 记录原始错误
func (t RedisTask) WithError(err error) RedisTask {
	if err != nil {
		t.OriginalErr = err.Error()
	}
	return t
}

// WithSource 记录来源
func (t RedisTask) WithSource(source string) RedisTask {
	t.Source = source
	return t
}
