package leasestore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStoreConformance(t *testing.T) {
	runConformance(t, func(t *testing.T) harness {
		s := NewMemoryStore()
		return harness{store: s, expire: func(key string) { s.Expire(key) }}
	})
}

func TestMemoryStoreExpiresByClock(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(WithClock(clock.Now))

	ok, err := s.Acquire(ctx, "product_001", "a", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, s.TTL("product_001"))

	clock.Advance(20 * time.Second)
	refreshed, err := s.RefreshIfOwned(ctx, "product_001", "a", 30*time.Second)
	require.NoError(t, err)
	require.True(t, refreshed)

	// без продления аренда прожила бы только до 30s
	clock.Advance(20 * time.Second)
	_, found, err := s.Get(ctx, "product_001")
	require.NoError(t, err)
	assert.True(t, found)

	clock.Advance(10 * time.Second)
	_, found, err = s.Get(ctx, "product_001")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, s.TTL("product_001"))

	ok, err = s.Acquire(ctx, "product_001", "b", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	_, err := s.Acquire(ctx, "product_001", "a", time.Second)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Ping(ctx), context.Canceled)
}

func TestMemoryStoreExpireReportsLiveLease(t *testing.T) {
	s := NewMemoryStore()
	assert.False(t, s.Expire("product_001"))

	ok, err := s.Acquire(context.Background(), "product_001", "a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, s.Expire("product_001"))
	assert.False(t, s.Expire("product_001"))
}
