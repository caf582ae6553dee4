package leasestore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harness поднимает свежий стор на каждый кейс; expire имитирует истечение TTL ключа.
type harness struct {
	store  LeaseStore
	expire func(key string)
}

func runConformance(t *testing.T, newHarness func(t *testing.T) harness) {
	ctx := context.Background()
	ttl := 30 * time.Second

	t.Run("acquire free key", func(t *testing.T) {
		h := newHarness(t)
		ok, err := h.store.Acquire(ctx, "product_001", "a", ttl)
		require.NoError(t, err)
		assert.True(t, ok)

		token, found, err := h.store.Get(ctx, "product_001")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "a", token)
	})

	t.Run("acquire held key", func(t *testing.T) {
		h := newHarness(t)
		ok, err := h.store.Acquire(ctx, "product_001", "a", ttl)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = h.store.Acquire(ctx, "product_001", "b", ttl)
		require.NoError(t, err)
		assert.False(t, ok)

		token, _, err := h.store.Get(ctx, "product_001")
		require.NoError(t, err)
		assert.Equal(t, "a", token)
	})

	t.Run("get missing key", func(t *testing.T) {
		h := newHarness(t)
		token, found, err := h.store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, token)
	})

	t.Run("release by owner", func(t *testing.T) {
		h := newHarness(t)
		ok, err := h.store.Acquire(ctx, "product_001", "a", ttl)
		require.NoError(t, err)
		require.True(t, ok)

		released, err := h.store.ReleaseIfOwned(ctx, "product_001", "a")
		require.NoError(t, err)
		assert.True(t, released)

		_, found, err := h.store.Get(ctx, "product_001")
		require.NoError(t, err)
		assert.False(t, found)

		released, err = h.store.ReleaseIfOwned(ctx, "product_001", "a")
		require.NoError(t, err)
		assert.False(t, released)
	})

	t.Run("release by stranger keeps lease", func(t *testing.T) {
		h := newHarness(t)
		ok, err := h.store.Acquire(ctx, "product_001", "a", ttl)
		require.NoError(t, err)
		require.True(t, ok)

		released, err := h.store.ReleaseIfOwned(ctx, "product_001", "b")
		require.NoError(t, err)
		assert.False(t, released)

		token, found, err := h.store.Get(ctx, "product_001")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "a", token)
	})

	t.Run("refresh", func(t *testing.T) {
		h := newHarness(t)
		ok, err := h.store.Acquire(ctx, "product_001", "a", ttl)
		require.NoError(t, err)
		require.True(t, ok)

		refreshed, err := h.store.RefreshIfOwned(ctx, "product_001", "a", ttl)
		require.NoError(t, err)
		assert.True(t, refreshed)

		refreshed, err = h.store.RefreshIfOwned(ctx, "product_001", "b", ttl)
		require.NoError(t, err)
		assert.False(t, refreshed)

		refreshed, err = h.store.RefreshIfOwned(ctx, "missing", "a", ttl)
		require.NoError(t, err)
		assert.False(t, refreshed)

		token, _, err := h.store.Get(ctx, "product_001")
		require.NoError(t, err)
		assert.Equal(t, "a", token)
	})

	t.Run("stale owner cannot touch new lease", func(t *testing.T) {
		h := newHarness(t)
		ok, err := h.store.Acquire(ctx, "product_001", "a", ttl)
		require.NoError(t, err)
		require.True(t, ok)

		h.expire("product_001")

		ok, err = h.store.Acquire(ctx, "product_001", "b", ttl)
		require.NoError(t, err)
		require.True(t, ok)

		refreshed, err := h.store.RefreshIfOwned(ctx, "product_001", "a", ttl)
		require.NoError(t, err)
		assert.False(t, refreshed)

		released, err := h.store.ReleaseIfOwned(ctx, "product_001", "a")
		require.NoError(t, err)
		assert.False(t, released)

		token, found, err := h.store.Get(ctx, "product_001")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "b", token)
	})

	t.Run("racing acquirers", func(t *testing.T) {
		h := newHarness(t)
		const racers = 32

		var (
			wg      sync.WaitGroup
			winners atomic.Int32
			start   = make(chan struct{})
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				ok, err := h.store.Acquire(ctx, "product_001", uuid.NewString(), ttl)
				assert.NoError(t, err)
				if ok {
					winners.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), winners.Load(), fmt.Sprintf("%d racers", racers))
	})
}
