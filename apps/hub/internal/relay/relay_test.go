package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ChatHub/apps/hub/internal/apperr"
	"ChatHub/apps/hub/internal/gamification"
	"ChatHub/apps/hub/internal/presence"
	"ChatHub/apps/hub/internal/presence/presencetest"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/apps/hub/internal/repository"
	"ChatHub/apps/hub/internal/repository/mocks"
	"ChatHub/model"
	"ChatHub/pkg/logger"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var relayLoggerOnce sync.Once

func initRelayTestLogger() {
	relayLoggerOnce.Do(func() {
		logger.ReplaceGlobal(zap.NewNop())
	})
}

type fakeXP struct {
	mu     sync.Mutex
	grants map[string]int64
	err    error
}

func (f *fakeXP) GrantXP(_ context.Context, userID string, amount int64) (*gamification.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.grants == nil {
		f.grants = map[string]int64{}
	}
	f.grants[userID] += amount
	return &gamification.Result{UserID: userID}, nil
}

type relayFixture struct {
	relay *MessageRelay
	store *repository.MemoryStore
	reg   *presence.Registry
	xp    *fakeXP
}

func newFixture(t *testing.T, opts Options) *relayFixture {
	t.Helper()
	initRelayTestLogger()
	store := repository.NewMemoryStore()
	reg := presence.NewRegistry(nil)
	xp := &fakeXP{}
	r := NewMessageRelay(store.Messages(), store.Users(), reg, xp, opts)

	var id int64
	clock := time.Unix(1700000000, 0)
	r.nextID = func() int64 { id++; return id }
	r.now = func() time.Time { clock = clock.Add(time.Millisecond); return clock }
	return &relayFixture{relay: r, store: store, reg: reg, xp: xp}
}

func (f *relayFixture) online(userID string) *presencetest.Conn {
	c := presencetest.NewConn("c-" + userID)
	f.reg.Join(context.Background(), userID, c, presence.Profile{})
	c.Reset()
	return c
}

func TestSend_DeliversAndAcks(t *testing.T) {
	f := newFixture(t, Options{XPPerMessage: 5})
	alice := f.online("alice")
	bob := f.online("bob")

	msg, err := f.relay.Send(context.Background(), "alice", "bob", "hi")
	require.NoError(t, err)
	assert.False(t, msg.IsRead)
	assert.Equal(t, "alice:bob", msg.ConversationKey)

	var got protocol.MessageData
	require.True(t, bob.Last(protocol.TypeMessage, &got))
	assert.Equal(t, "hi", got.Body)
	assert.Equal(t, "alice", got.SenderID)

	var ack protocol.MessageData
	require.True(t, alice.Last(protocol.TypeMessageAck, &ack))
	assert.Equal(t, got.ID, ack.ID)
	assert.Zero(t, alice.Count(protocol.TypeMessage))

	assert.Equal(t, int64(5), f.xp.grants["alice"])
}

func TestSend_OfflineReceiverStillStored(t *testing.T) {
	f := newFixture(t, Options{})
	alice := f.online("alice")

	_, err := f.relay.Send(context.Background(), "alice", "bob", "are you there?")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.Count(protocol.TypeMessageAck))

	history, err := f.relay.History(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "are you there?", history[0].Body)
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.relay.Send(ctx, "", "bob", "hi")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.relay.Send(ctx, "alice", "", "hi")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.relay.Send(ctx, "alice", "bob", "   ")
	assert.ErrorIs(t, err, apperr.ErrEmptyMessage)

	history, err := f.relay.History(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSend_UnknownReceiverAcceptedByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.relay.Send(context.Background(), "alice", "nobody", "hi")
	assert.NoError(t, err)
}

func TestSend_VerifyReceiver(t *testing.T) {
	f := newFixture(t, Options{VerifyReceiver: true})
	ctx := context.Background()

	_, err := f.relay.Send(ctx, "alice", "nobody", "hi")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)

	require.NoError(t, f.store.Users().Create(ctx, &model.UserInfo{Uuid: "bob", Username: "bob"}))
	_, err = f.relay.Send(ctx, "alice", "bob", "hi")
	assert.NoError(t, err)
}

func TestSend_XPFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, Options{XPPerMessage: 5})
	f.xp.err = errors.New("db down")

	_, err := f.relay.Send(context.Background(), "alice", "bob", "hi")
	assert.NoError(t, err)
}

func TestSend_AppendFailureDeliversNothing(t *testing.T) {
	initRelayTestLogger()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	messages := mocks.NewMockIMessageRepository(ctrl)
	messages.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(repository.ErrDatabase)

	reg := presence.NewRegistry(nil)
	bob := presencetest.NewConn("c-bob")
	alice := presencetest.NewConn("c-alice")
	reg.Join(context.Background(), "bob", bob, presence.Profile{})
	reg.Join(context.Background(), "alice", alice, presence.Profile{})

	xp := &fakeXP{}
	r := NewMessageRelay(messages, nil, reg, xp, Options{XPPerMessage: 5})
	_, err := r.Send(context.Background(), "alice", "bob", "hi")
	assert.ErrorIs(t, err, repository.ErrDatabase)
	assert.Zero(t, bob.Count(protocol.TypeMessage))
	assert.Zero(t, alice.Count(protocol.TypeMessageAck))
	assert.Empty(t, xp.grants)
}

func TestHistory_InterleavedConversations(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	const n = 20
	for i := 0; i < n; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = "bob", "alice"
		}
		_, err := f.relay.Send(ctx, from, to, "pair")
		require.NoError(t, err)

		_, err = f.relay.Send(ctx, "carol", from, "noise")
		require.NoError(t, err)
		_, err = f.relay.Send(ctx, to, "dave", "noise")
		require.NoError(t, err)
	}

	history, err := f.relay.History(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, history, n)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i-1].CreatedAt.Before(history[i].CreatedAt))
		assert.Equal(t, "pair", history[i].Body)
	}
}

func TestHistory_WithMockRepository(t *testing.T) {
	initRelayTestLogger()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	messages := mocks.NewMockIMessageRepository(ctrl)
	messages.EXPECT().
		ListConversation(gomock.Any(), "alice", "bob", 50).
		Return([]*model.Message{{Id: 1}}, nil)

	r := NewMessageRelay(messages, nil, presence.NewRegistry(nil), nil, Options{HistoryLimit: 50})
	history, err := r.History(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMarkRead_NotifiesPeer(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	alice := f.online("alice")

	for i := 0; i < 3; i++ {
		_, err := f.relay.Send(ctx, "alice", "bob", "hi")
		require.NoError(t, err)
	}

	n, err := f.relay.MarkRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var got protocol.MessagesReadData
	require.True(t, alice.Last(protocol.TypeMessagesRead, &got))
	assert.Equal(t, protocol.MessagesReadData{ReaderID: "bob", Count: 3}, got)

	alice.Reset()
	n, err = f.relay.MarkRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, alice.Count(protocol.TypeMessagesRead))
}
