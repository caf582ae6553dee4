// Package inventory хранит остатки товаров в общем хранилище и меняет их
// только под распределённой блокировкой товара.
package inventory

import (
	"context"
	"errors"
)

var (
	ErrStockNotFound = errors.New("inventory: stock is not set")
	ErrOutOfStock    = errors.New("inventory: out of stock")
	ErrInvalidStock  = errors.New("inventory: invalid stock value")
)

// StockStore простое хранилище счётчиков без собственной атомарности:
// чтение-изменение-запись должны выполняться под блокировкой.
type StockStore interface {
	Get(ctx context.Context, product string) (int64, bool, error)
	Set(ctx context.Context, product string, qty int64) error
}
