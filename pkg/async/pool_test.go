package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ChatHub/config"
	"ChatHub/pkg/ctxmeta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSafe_WithoutPoolRunsInline(t *testing.T) {
	require.Nil(t, Pool())

	ran := false
	ctx := ctxmeta.WithTraceID(context.Background(), "inline")
	RunSafe(ctx, func(runCtx context.Context) {
		ran = true
		assert.Equal(t, "inline", ctxmeta.TraceID(runCtx))
	}, time.Second)
	assert.True(t, ran)
}

func TestRunSafe_RecoversPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		RunSafe(context.Background(), func(context.Context) {
			panic("boom")
		}, time.Second)
	})
}

func TestRunSafe_WithPool(t *testing.T) {
	cfg := config.DefaultAsyncConfig()
	cfg.PoolSize = 4
	cfg.Nonblocking = false
	require.NoError(t, Init(cfg))
	t.Cleanup(func() { _ = Release() })

	var (
		wg    sync.WaitGroup
		count atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		RunSafe(context.Background(), func(context.Context) {
			defer wg.Done()
			count.Add(1)
		}, time.Second)
	}
	wg.Wait()
	assert.Equal(t, int32(10), count.Load())
}
