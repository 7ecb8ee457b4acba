package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"ChatHub/apps/hub/internal/presence/presencetest"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var presenceLoggerOnce sync.Once

func initPresenceTestLogger() {
	presenceLoggerOnce.Do(func() {
		logger.ReplaceGlobal(zap.NewNop())
	})
}

type projectedEvent struct {
	userID string
	online bool
}

type fakeProjector struct {
	mu     sync.Mutex
	events []projectedEvent
}

func (f *fakeProjector) Online(_ context.Context, userID, _ string, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, projectedEvent{userID, true})
}

func (f *fakeProjector) Offline(_ context.Context, userID string, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, projectedEvent{userID, false})
}

func TestRegistry_JoinBroadcastsToEveryone(t *testing.T) {
	initPresenceTestLogger()
	ctx := context.Background()
	proj := &fakeProjector{}
	r := NewRegistry(proj)

	a := presencetest.NewConn("c-a")
	b := presencetest.NewConn("c-b")
	r.Join(ctx, "alice", a, Profile{Username: "alice", Status: "online"})
	r.Join(ctx, "bob", b, Profile{Username: "bob", Status: "away"})

	var got protocol.StatusChangedData
	require.True(t, a.Last(protocol.TypeStatusChanged, &got))
	assert.Equal(t, protocol.StatusChangedData{UserID: "bob", IsOnline: true, Status: "away"}, got)
	assert.Equal(t, 1, b.Count(protocol.TypeStatusChanged))

	assert.Equal(t, []string{"alice", "bob"}, r.OnlineUserIDs())
	assert.Equal(t, 2, r.Count())
	assert.Equal(t, []projectedEvent{{"alice", true}, {"bob", true}}, proj.events)

	p, ok := r.Profile("bob")
	require.True(t, ok)
	assert.Equal(t, "bob", p.UserID)
}

func TestRegistry_LastConnectionWins(t *testing.T) {
	initPresenceTestLogger()
	ctx := context.Background()
	proj := &fakeProjector{}
	r := NewRegistry(proj)

	first := presencetest.NewConn("c-1")
	second := presencetest.NewConn("c-2")
	assert.Nil(t, r.Join(ctx, "alice", first, Profile{}))
	assert.Equal(t, Handle(first), r.Join(ctx, "alice", second, Profile{}))
	assert.Equal(t, 1, r.Count())

	h, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, Handle(second), h)

	// 旧连接断开不能把新会话下线
	_, left := r.Leave(ctx, first)
	assert.False(t, left)
	assert.True(t, r.IsOnline("alice"))

	userID, left := r.Leave(ctx, second)
	assert.True(t, left)
	assert.Equal(t, "alice", userID)
	assert.False(t, r.IsOnline("alice"))
	assert.Equal(t, []projectedEvent{{"alice", true}, {"alice", true}, {"alice", false}}, proj.events)
}

func TestRegistry_LeaveBroadcastsOffline(t *testing.T) {
	initPresenceTestLogger()
	ctx := context.Background()
	r := NewRegistry(nil)

	a := presencetest.NewConn("c-a")
	b := presencetest.NewConn("c-b")
	r.Join(ctx, "alice", a, Profile{})
	r.Join(ctx, "bob", b, Profile{})
	a.Reset()

	r.Leave(ctx, b)
	var got protocol.StatusChangedData
	require.True(t, a.Last(protocol.TypeStatusChanged, &got))
	assert.Equal(t, "bob", got.UserID)
	assert.False(t, got.IsOnline)

	// 重复 Leave 为 no-op
	_, left := r.Leave(ctx, b)
	assert.False(t, left)
}

func TestRegistry_HandleRebindEvictsPreviousUser(t *testing.T) {
	initPresenceTestLogger()
	ctx := context.Background()
	r := NewRegistry(nil)

	c := presencetest.NewConn("c")
	r.Join(ctx, "alice", c, Profile{})
	r.Join(ctx, "bob", c, Profile{})

	assert.False(t, r.IsOnline("alice"))
	assert.True(t, r.IsOnline("bob"))
	userID, current := r.IsCurrent(c)
	assert.Equal(t, "bob", userID)
	assert.True(t, current)
}

func TestRegistry_SendToOffline(t *testing.T) {
	initPresenceTestLogger()
	r := NewRegistry(nil)
	assert.False(t, r.SendTo("ghost", protocol.Frame{Type: protocol.TypeMessage}))
}

func TestRegistry_SendToClosedConnection(t *testing.T) {
	initPresenceTestLogger()
	r := NewRegistry(nil)
	c := presencetest.NewConn("c")
	r.Join(context.Background(), "alice", c, Profile{})
	c.Close()
	assert.False(t, r.SendTo("alice", protocol.Frame{Type: protocol.TypeMessage}))
}

func TestRegistry_UpdateProfile(t *testing.T) {
	initPresenceTestLogger()
	r := NewRegistry(nil)
	assert.False(t, r.UpdateProfile("alice", func(p *Profile) { p.Status = "busy" }))

	r.Join(context.Background(), "alice", presencetest.NewConn("c"), Profile{Status: "online"})
	assert.True(t, r.UpdateProfile("alice", func(p *Profile) {
		p.Status = "busy"
		p.UserID = "mallory"
	}))
	p, _ := r.Profile("alice")
	assert.Equal(t, "busy", p.Status)
	assert.Equal(t, "alice", p.UserID)
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	initPresenceTestLogger()
	ctx := context.Background()
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := presencetest.NewConn("c")
			r.Join(ctx, "alice", c, Profile{})
			r.Leave(ctx, c)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Count())
}
