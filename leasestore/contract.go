// Package leasestore прослойка между распределённой блокировкой и общим
// key-value хранилищем. Каждая операция LeaseStore это одно атомарное обращение
// к хранилищу, блокировка никогда не читает и потом пишет.
package leasestore

//go:generate mockgen -source=contract.go -destination=mocks/lease_store.mock.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBackendUnavailable оборачивает любое неудачное обращение к хранилищу.
// Ошибка драйвера остаётся в цепочке.
var ErrBackendUnavailable = errors.New("lease backend unavailable")

type (
	// LeaseStore хранит не больше одной аренды на ключ. Значение аренды это токен
	// владельца, срок жизни отслеживает само хранилище.
	LeaseStore interface {
		// Acquire создаёт аренду, только если её нет, значение и ttl ставятся одним шагом.
		// true, если аренду создал именно этот вызов.
		Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
		// Get возвращает токен текущего владельца. found == false, если аренды нет.
		Get(ctx context.Context, key string) (token string, found bool, err error)
		// ReleaseIfOwned удаляет аренду, только если её значение равно token.
		ReleaseIfOwned(ctx context.Context, key, token string) (bool, error)
		// RefreshIfOwned выставляет срок жизни ttl, только если значение равно token.
		RefreshIfOwned(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// millis переводит ttl в целые миллисекунды с округлением вверх,
// чтобы доля миллисекунды не превратилась в нулевой срок.
func millis(ttl time.Duration) int64 {
	ms := ttl / time.Millisecond
	if ttl%time.Millisecond > 0 {
		ms++
	}
	return int64(ms)
}

func unavailable(backend, op string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrBackendUnavailable, backend, op, err)
}
