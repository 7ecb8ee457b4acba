package manager

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultSendQueueSize = 64
	defaultMaxFrameBytes = 64 * 1024
	defaultPongWait      = 60 * time.Second
	wsWriteTimeout       = 5 * time.Second
)

// MessageHandler 定义上行消息回调。
// 参数 raw 为客户端原始载荷（JSON 文本帧）。
type MessageHandler func(raw []byte)

// CloseHandler 定义连接关闭回调。
// 在 read/write 循环退出后执行清理逻辑（从 manager 注销、下线、退出通话）。
type CloseHandler func()

// ClientOptions 单连接参数
type ClientOptions struct {
	SendQueueSize int           // 下行队列长度
	MaxFrameBytes int64         // 单帧最大字节数，超过后连接被关闭
	PongWait      time.Duration // 超过该时间未收到任何帧或 pong 视为断线
}

// DefaultClientOptions 返回默认连接参数
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		SendQueueSize: defaultSendQueueSize,
		MaxFrameBytes: defaultMaxFrameBytes,
		PongWait:      defaultPongWait,
	}
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = defaultSendQueueSize
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = defaultMaxFrameBytes
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	return o
}

// Client 封装单条 WebSocket 连接。
// - send 队列用于削峰，业务 goroutine 不会阻塞在网络写上；
// - done 是统一关闭信号，读写循环都监听它退出；
// - once 保证 Close 幂等。
type Client struct {
	conn     *websocket.Conn
	id       string
	userUUID string
	clientIP string
	opts     ClientOptions
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

// NewClient 创建连接包装对象，id 为连接唯一标识。
func NewClient(conn *websocket.Conn, id, userUUID, clientIP string, opts ClientOptions) *Client {
	opts = opts.withDefaults()
	return &Client{
		conn:     conn,
		id:       id,
		userUUID: userUUID,
		clientIP: clientIP,
		opts:     opts,
		send:     make(chan []byte, opts.SendQueueSize),
		done:     make(chan struct{}),
	}
}

// ID 连接唯一标识
func (c *Client) ID() string {
	return c.id
}

// UserID 握手时认证出的用户
func (c *Client) UserID() string {
	return c.userUUID
}

func (c *Client) ClientIP() string {
	return c.clientIP
}

// Done 返回连接关闭信号通道。
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Push 将待发送帧投递到写队列，不阻塞。
// 返回 false 表示连接已关闭或队列已满，帧被丢弃。
func (c *Client) Push(msg []byte) bool {
	if len(msg) == 0 {
		return true
	}
	cloned := append([]byte(nil), msg...)
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case <-c.done:
		return false
	case c.send <- cloned:
		return true
	default:
		return false
	}
}

// Run 启动读写循环并阻塞到 readLoop 结束。
// 退出时保证调用 Close 和 onClose。
func (c *Client) Run(ctx context.Context, onMessage MessageHandler, onClose CloseHandler) {
	defer func() {
		c.Close()
		if onClose != nil {
			onClose()
		}
	}()

	go c.writeLoop(ctx)
	c.readLoop(ctx, onMessage)
}

// Close 幂等关闭：先关闭 done 通知读写循环，再关闭底层连接。
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readLoop 持续读取上行帧。每收到一帧或一个 pong 都会顺延读超时。
// 退出条件：ctx cancel、关闭信号、读错误（含超时与超长帧）。
func (c *Client) readLoop(ctx context.Context, onMessage MessageHandler) {
	c.conn.SetReadLimit(c.opts.MaxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		if onMessage != nil {
			onMessage(raw)
		}
	}
}

// writeLoop 从 send 队列取帧写出，并按 PongWait 的 9/10 周期发送 ping。
func (c *Client) writeLoop(ctx context.Context) {
	ping := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				c.Close()
				return
			}
		}
	}
}
