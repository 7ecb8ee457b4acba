package manager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsPair 启动一个升级后把连接交给 onServer 的测试服务，返回客户端连接
func wsPair(t *testing.T, onServer func(conn *websocket.Conn)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		onServer(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestClient_EchoThroughSendQueue(t *testing.T) {
	closed := make(chan struct{})
	peer := wsPair(t, func(conn *websocket.Conn) {
		c := NewClient(conn, "c1", "alice", "127.0.0.1", DefaultClientOptions())
		go c.Run(context.Background(), func(raw []byte) {
			c.Push(append([]byte("echo:"), raw...))
		}, func() { close(closed) })
	})

	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte("hi")))
	_ = peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := peer.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", string(got))

	require.NoError(t, peer.Close())
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("onClose not called after peer closed")
	}
}

func TestClient_OversizedFrameClosesConnection(t *testing.T) {
	closed := make(chan struct{})
	peer := wsPair(t, func(conn *websocket.Conn) {
		c := NewClient(conn, "c1", "alice", "", ClientOptions{MaxFrameBytes: 16})
		go c.Run(context.Background(), nil, func() { close(closed) })
	})

	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))))
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("oversized frame did not close the connection")
	}
}

func TestClient_PushAfterCloseOrFullQueue(t *testing.T) {
	c := NewClient(nil, "c1", "alice", "", ClientOptions{SendQueueSize: 2})
	assert.True(t, c.Push([]byte("a")))
	assert.True(t, c.Push([]byte("b")))
	assert.False(t, c.Push([]byte("c")), "queue full")
	assert.True(t, c.Push(nil), "empty frame is a no-op")

	var serverClient *Client
	ready := make(chan struct{})
	wsPair(t, func(conn *websocket.Conn) {
		serverClient = NewClient(conn, "c2", "bob", "", DefaultClientOptions())
		close(ready)
	})
	<-ready
	serverClient.Close()
	serverClient.Close()
	assert.False(t, serverClient.Push([]byte("late")))
	select {
	case <-serverClient.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestConnectionManager_RegisterUnregister(t *testing.T) {
	m := NewConnectionManager()
	a1 := NewClient(nil, "c1", "alice", "", DefaultClientOptions())
	a2 := NewClient(nil, "c2", "alice", "", DefaultClientOptions())
	b := NewClient(nil, "c3", "bob", "", DefaultClientOptions())

	require.True(t, m.Register(a1))
	require.True(t, m.Register(a2))
	require.True(t, m.Register(b))
	assert.Equal(t, 3, m.Count())
	assert.Equal(t, []string{"c1", "c2"}, m.UserConnIDs("alice"))

	// 同 id 的另一个对象不能注销已登记的连接
	impostor := NewClient(nil, "c1", "alice", "", DefaultClientOptions())
	m.Unregister(impostor)
	got, ok := m.Get("c1")
	require.True(t, ok)
	assert.Same(t, a1, got)

	m.Unregister(a1)
	m.Unregister(a2)
	assert.Empty(t, m.UserConnIDs("alice"))
	assert.Equal(t, 1, m.Count())
}

func TestConnectionManager_ShutdownClosesAll(t *testing.T) {
	m := NewConnectionManager()
	ready := make(chan *Client, 1)
	peer := wsPair(t, func(conn *websocket.Conn) {
		c := NewClient(conn, "c1", "alice", "", DefaultClientOptions())
		m.Register(c)
		ready <- c
		c.Run(context.Background(), nil, func() { m.Unregister(c) })
	})
	c := <-ready

	m.Shutdown()
	m.Shutdown()
	<-c.Done()
	assert.Zero(t, m.Count())
	assert.False(t, m.Register(NewClient(nil, "c9", "bob", "", DefaultClientOptions())))

	_ = peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := peer.ReadMessage()
	assert.Error(t, err)
}
