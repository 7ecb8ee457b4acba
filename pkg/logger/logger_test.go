package logger

import (
	"context"
	"testing"

	"ChatHub/config"
	"ChatHub/pkg/ctxmeta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuild_InvalidLevelFallsBackToInfo(t *testing.T) {
	cfg := config.DefaultLoggerConfig()
	cfg.Level = "not-a-level"
	l, err := Build(cfg)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}

func TestInfo_AppendsContextMeta(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ReplaceGlobal(zap.New(core))
	t.Cleanup(func() { ReplaceGlobal(zap.NewNop()) })

	ctx := ctxmeta.WithTraceID(context.Background(), "trace-1")
	ctx = ctxmeta.WithConnID(ctx, "conn-9")
	Info(ctx, "hello", String("k", "v"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "conn-9", fields["conn_id"])
	assert.Equal(t, "v", fields["k"])
}

func TestReplaceGlobal_NilBecomesNop(t *testing.T) {
	ReplaceGlobal(nil)
	require.NotNil(t, L())
	Warn(nil, "must not panic") //nolint:staticcheck
}
