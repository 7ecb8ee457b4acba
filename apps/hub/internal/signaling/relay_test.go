package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"ChatHub/apps/hub/internal/apperr"
	"ChatHub/apps/hub/internal/metrics"
	"ChatHub/apps/hub/internal/presence"
	"ChatHub/apps/hub/internal/presence/presencetest"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var signalingLoggerOnce sync.Once

func initSignalingTestLogger() {
	signalingLoggerOnce.Do(func() {
		logger.ReplaceGlobal(zap.NewNop())
	})
}

func TestRelay_ForwardsPayloadVerbatim(t *testing.T) {
	initSignalingTestLogger()
	reg := presence.NewRegistry(nil)
	bob := presencetest.NewConn("c-bob")
	reg.Join(context.Background(), "bob", bob, presence.Profile{})
	bob.Reset()

	payload := json.RawMessage(`{"sdp":"v=0\r\n","type":"offer","extra":[1,2]}`)
	ok, err := NewRelay(reg).Relay(context.Background(), KindOffer, "alice", "bob", payload)
	require.NoError(t, err)
	assert.True(t, ok)

	var got protocol.SignalOutData
	require.True(t, bob.Last(protocol.TypeSignal, &got))
	assert.Equal(t, KindOffer, got.Kind)
	assert.Equal(t, "alice", got.FromID)
	assert.JSONEq(t, string(payload), string(got.Payload))
}

func TestRelay_OfflineTargetDropsSilently(t *testing.T) {
	initSignalingTestLogger()
	reg := presence.NewRegistry(nil)
	alice := presencetest.NewConn("c-alice")
	reg.Join(context.Background(), "alice", alice, presence.Profile{})
	alice.Reset()

	before := testutil.ToFloat64(metrics.SignalsRelayed.WithLabelValues(KindCandidate, "dropped"))
	ok, err := NewRelay(reg).Relay(context.Background(), KindCandidate, "alice", "ghost", json.RawMessage(`{}`))
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, alice.Count(protocol.TypeSignal))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SignalsRelayed.WithLabelValues(KindCandidate, "dropped")))
}

func TestRelay_RejectsUnknownKind(t *testing.T) {
	initSignalingTestLogger()
	r := NewRelay(presence.NewRegistry(nil))

	_, err := r.Relay(context.Background(), "hangup", "alice", "bob", nil)
	assert.ErrorIs(t, err, apperr.ErrSignalKind)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = r.Relay(context.Background(), KindAnswer, "alice", "", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestValidKind(t *testing.T) {
	for _, k := range []string{KindOffer, KindAnswer, KindCandidate} {
		assert.True(t, ValidKind(k), k)
	}
	assert.False(t, ValidKind("Offer"))
	assert.False(t, ValidKind(""))
}
