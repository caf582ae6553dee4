package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/PavelAgarkov/lease-lock/dlock"
	"github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
	"github.com/ecodeclub/ekit/bean/option"
	"github.com/ecodeclub/ekit/retry"
)

const DefaultLockTTL = 30 * time.Second

type Service struct {
	locker   *dlock.Locker
	stock    StockStore
	lockTTL  time.Duration
	strategy func() (retry.Strategy, error)
}

// NewService по умолчанию не ждёт занятую блокировку и сразу возвращает dlock.ErrLockContended.
func NewService(locker *dlock.Locker, stock StockStore, opts ...option.Option[Service]) *Service {
	s := &Service{
		locker:  locker,
		stock:   stock,
		lockTTL: DefaultLockTTL,
	}
	option.Apply(s, opts...)
	return s
}

func WithLockTTL(ttl time.Duration) option.Option[Service] {
	return func(s *Service) {
		s.lockTTL = ttl
	}
}

// WithRetry включает ожидание блокировки. newStrategy вызывается на каждую операцию,
// стратегии ekit хранят счётчик попыток.
func WithRetry(newStrategy func() (retry.Strategy, error)) option.Option[Service] {
	return func(s *Service) {
		s.strategy = newStrategy
	}
}

// Decrement списывает одну единицу товара и возвращает остаток.
func (s *Service) Decrement(ctx context.Context, product string) (int64, error) {
	var remaining int64
	err := s.withLock(ctx, product, func(ctx context.Context) error {
		qty, found, err := s.stock.Get(ctx, product)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrStockNotFound, product)
		}
		if qty <= 0 {
			return fmt.Errorf("%w: %s", ErrOutOfStock, product)
		}
		// аренда могла уйти во время чтения, тогда запись уже не наша
		if err := context.Cause(ctx); err != nil {
			return err
		}
		remaining = qty - 1
		return s.stock.Set(ctx, product, remaining)
	})
	if err != nil {
		return 0, err
	}

	logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "stock decremented",
		Component: "inventory",
		Method:    "Decrement",
		Key:       product,
		Result:    remaining,
	})
	return remaining, nil
}

func (s *Service) SetStock(ctx context.Context, product string, qty int64) error {
	if qty < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidStock, qty)
	}
	return s.withLock(ctx, product, func(ctx context.Context) error {
		return s.stock.Set(ctx, product, qty)
	})
}

// Stock читает остаток без блокировки.
func (s *Service) Stock(ctx context.Context, product string) (int64, error) {
	qty, found, err := s.stock.Get(ctx, product)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrStockNotFound, product)
	}
	return qty, nil
}

func (s *Service) withLock(ctx context.Context, product string, fn func(ctx context.Context) error) error {
	if s.strategy == nil {
		return s.locker.WithLock(ctx, product, s.lockTTL, fn)
	}
	strategy, err := s.strategy()
	if err != nil {
		return fmt.Errorf("inventory: retry strategy: %w", err)
	}
	h, err := s.locker.AcquireWithRetry(ctx, product, s.lockTTL, strategy)
	if err != nil {
		return err
	}
	return h.Run(ctx, fn)
}
