package scheduler

import (
	"context"
)

// Scheduler запускается и останавливается через возвращаемые функции,
// чтобы их можно было сразу отдать в список shutdown приложения.
type Scheduler interface {
	Start(ctx context.Context) func()
	Stop() func()
}
