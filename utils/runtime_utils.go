package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
)

// GoRecover запускает fn в отдельной горутине. Паника логируется и не роняет процесс.
func GoRecover(ctx context.Context, fn func(ctx context.Context)) {
	go func() {
		defer Recover(ctx)
		select {
		case <-ctx.Done():
			logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
				Msg:       "goroutine cancelled before start",
				Component: "utils",
				Method:    "GoRecover",
			})
			return
		default:
		}
		fn(ctx)
	}()
}

func Recover(ctx context.Context) {
	if r := recover(); r != nil {
		logger.WriteErrorLog(ctx, &logger_wrapper.LogEntry{
			Msg:       "recovered from panic in goroutine",
			Error:     PanicError(r),
			Component: "utils",
			Method:    "Recover",
		})
	}
}

// PanicError приводит значение из recover() к error, не паникуя повторно на не-error значениях.
func PanicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

func WaitOrCtx(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
