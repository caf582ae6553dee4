package dlock

import (
	"errors"

	"github.com/PavelAgarkov/lease-lock/leasestore"
)

var (
	// ErrLockContended другой владелец держит действующую аренду. Ожидаемая ситуация,
	// повторять или нет решает вызывающий код.
	ErrLockContended = errors.New("lock is held by another owner")

	// ErrLockAlreadyLost аренда истекла или перехвачена до освобождения. Критическая секция
	// могла выполняться одновременно с другим владельцем, поэтому ошибку нельзя глушить.
	ErrLockAlreadyLost = errors.New("lock already lost")

	// ErrBackendUnavailable хранилище аренд не ответило, состояние блокировки неизвестно.
	ErrBackendUnavailable = leasestore.ErrBackendUnavailable

	ErrInvalidKey = errors.New("lock key cannot be empty")
	ErrInvalidTTL = errors.New("lock ttl is too small")
)
