package inventory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PavelAgarkov/lease-lock/dlock"
	"github.com/PavelAgarkov/lease-lock/leasestore"
	"github.com/alicebob/miniredis/v2"
	"github.com/ecodeclub/ekit/bean/option"
	"github.com/ecodeclub/ekit/retry"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const product = "product_001"

// newInstance собирает сервис так, как его собирает отдельный процесс: свой клиент, свой Locker.
func newInstance(t *testing.T, mr *miniredis.Miniredis, opts ...option.Option[Service]) *Service {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := dlock.New(leasestore.NewRedisStore(client, leasestore.RedisConfigs{}))
	return NewService(locker, NewRedisStock(client, ""), opts...)
}

func TestDecrement(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := newInstance(t, mr)

	_, err := s.Decrement(ctx, product)
	assert.ErrorIs(t, err, ErrStockNotFound)

	require.NoError(t, s.SetStock(ctx, product, 2))
	got, err := mr.Get("product_stock:" + product)
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	remaining, err := s.Decrement(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)

	remaining, err = s.Decrement(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)

	_, err = s.Decrement(ctx, product)
	assert.ErrorIs(t, err, ErrOutOfStock)

	qty, err := s.Stock(ctx, product)
	require.NoError(t, err)
	assert.Zero(t, qty)

	// блокировка не остаётся после операций
	assert.False(t, mr.Exists(leasestore.DefaultRedisPrefix+product))
}

func TestDecrementContended(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := newInstance(t, mr)
	require.NoError(t, s.SetStock(ctx, product, 5))

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	other := dlock.New(leasestore.NewRedisStore(client, leasestore.RedisConfigs{}))
	h, err := other.Acquire(ctx, product, time.Minute)
	require.NoError(t, err)

	_, err = s.Decrement(ctx, product)
	assert.ErrorIs(t, err, dlock.ErrLockContended)

	qty, err := s.Stock(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, int64(5), qty)
	require.NoError(t, h.Release(ctx))
}

func TestSetStockValidation(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newInstance(t, mr)
	assert.ErrorIs(t, s.SetStock(context.Background(), product, -1), ErrInvalidStock)
}

func TestStockInvalidValue(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newInstance(t, mr)
	require.NoError(t, mr.Set("product_stock:"+product, "thirty"))

	_, err := s.Stock(context.Background(), product)
	assert.ErrorIs(t, err, ErrInvalidStock)
}

func TestConcurrentInstancesNeverOversell(t *testing.T) {
	const (
		instances = 5
		perProc   = 8
		initial   = 20
	)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	newStrategy := func() (retry.Strategy, error) {
		return retry.NewFixedIntervalRetryStrategy(2*time.Millisecond, 5000)
	}

	services := make([]*Service, instances)
	for i := range services {
		services[i] = newInstance(t, mr, WithRetry(newStrategy))
	}
	require.NoError(t, services[0].SetStock(ctx, product, initial))

	var sold, outOfStock atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range services {
		for i := 0; i < perProc; i++ {
			g.Go(func() error {
				_, err := s.Decrement(gctx, product)
				switch {
				case err == nil:
					sold.Add(1)
				case errors.Is(err, ErrOutOfStock):
					outOfStock.Add(1)
				default:
					return err
				}
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(initial), sold.Load())
	assert.Equal(t, int32(instances*perProc-initial), outOfStock.Load())
	qty, err := services[0].Stock(ctx, product)
	require.NoError(t, err)
	assert.Zero(t, qty)
}

func TestUnlockedReadModifyWriteLosesUpdate(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	stock := NewRedisStock(client, "")
	require.NoError(t, stock.Set(ctx, product, 30))

	// два процесса читают одновременно и оба пишут своё значение
	a, _, err := stock.Get(ctx, product)
	require.NoError(t, err)
	b, _, err := stock.Get(ctx, product)
	require.NoError(t, err)
	require.NoError(t, stock.Set(ctx, product, a-1))
	require.NoError(t, stock.Set(ctx, product, b-1))

	qty, _, err := stock.Get(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, int64(29), qty, "two sales recorded as one")
}
