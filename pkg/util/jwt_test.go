package util

import (
	"testing"
	"time"

	"ChatHub/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(config.DefaultJWTConfig())
	token, expireAt, err := issuer.Generate("u-1", "alice")
	require.NoError(t, err)
	assert.True(t, expireAt.After(time.Now()))

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserUUID)
	assert.Equal(t, "alice", claims.Username)
}

func TestTokenIssuer_Expired(t *testing.T) {
	cfg := config.DefaultJWTConfig()
	cfg.TokenTTL = time.Minute
	issuer := NewTokenIssuer(cfg)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := issuer.Generate("u-1", "alice")
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	token, _, err := NewTokenIssuer(config.DefaultJWTConfig()).Generate("u-1", "alice")
	require.NoError(t, err)

	other := config.DefaultJWTConfig()
	other.Secret = "another"
	_, err = NewTokenIssuer(other).Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNextID_Monotonic(t *testing.T) {
	prev := NextID()
	for i := 0; i < 100; i++ {
		id := NextID()
		require.Greater(t, id, prev)
		prev = id
	}
}
