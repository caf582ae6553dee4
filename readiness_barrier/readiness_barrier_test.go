package readiness_barrier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadinessBarrier(t *testing.T) {
	ctx := context.Background()
	r := NewReadinessBarrier(ctx, ReadinessBarrierConfig{Name: "lease-store"})
	assert.False(t, r.IsReady())

	assert.Error(t, r.Set(ctx, true), "not running")

	r.Start()
	require.NoError(t, r.Set(ctx, true))
	assert.Eventually(t, r.IsReady, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Set(ctx, false))
	assert.Eventually(t, func() bool { return !r.IsReady() }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.SendSignalCtx(ctx, ReadySignalToggle))
	assert.Eventually(t, r.IsReady, time.Second, 5*time.Millisecond)

	r.Stop()
	assert.False(t, r.IsReady())
	r.Stop()
}

func TestSendSignalCtxCancelled(t *testing.T) {
	r := NewReadinessBarrier(context.Background(), ReadinessBarrierConfig{Name: "full"})
	// слушатель не запущен, поэтому буфер канала переполняется
	r.running.Store(true)
	for i := 0; i < cap(r.signals); i++ {
		require.NoError(t, r.SendSignalCtx(context.Background(), ReadySignalToggle))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, r.SendSignalCtx(ctx, ReadySignalToggle))
}
