package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const DefaultStockPrefix = "product_stock:"

type RedisStock struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStock(client redis.Cmdable, prefix string) *RedisStock {
	if prefix == "" {
		prefix = DefaultStockPrefix
	}
	return &RedisStock{client: client, prefix: prefix}
}

func (s *RedisStock) StockKey(product string) string {
	return s.prefix + product
}

func (s *RedisStock) Get(ctx context.Context, product string) (int64, bool, error) {
	raw, err := s.client.Get(ctx, s.StockKey(product)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("inventory: get stock %q: %w", product, err)
	}
	qty, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q holds %q", ErrInvalidStock, product, raw)
	}
	return qty, true, nil
}

func (s *RedisStock) Set(ctx context.Context, product string, qty int64) error {
	if err := s.client.Set(ctx, s.StockKey(product), strconv.FormatInt(qty, 10), 0).Err(); err != nil {
		return fmt.Errorf("inventory: set stock %q: %w", product, err)
	}
	return nil
}
