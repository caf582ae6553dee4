package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	conn, err := NewRedisConnection(context.Background(), Configs{Addr: mr.Addr()})
	require.NoError(t, err)
	defer conn.Stop()

	require.NoError(t, conn.Client().Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisConnectionUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	conn, err := NewRedisConnection(context.Background(), Configs{
		Addr:        addr,
		DialTimeout: 100 * time.Millisecond,
		PingTimeout: 300 * time.Millisecond,
	})
	assert.Error(t, err)
	assert.Nil(t, conn)
}
