// Package dlock реализует взаимное исключение поверх общего хранилища аренд.
//
// Locker это фабрика, привязанная к одному хранилищу. Каждый успешный Acquire
// возвращает новый Handle со своим токеном владельца, хендлы не переиспользуются.
// Пока хендл удерживается, watchdog продлевает аренду каждые ttl/3. Release
// сначала останавливает продление и только потом удаляет аренду, если токен совпадает.
//
//	h, err := locker.Acquire(ctx, "product_001", 30*time.Second)
//	if errors.Is(err, dlock.ErrLockContended) {
//	    // внутри кто-то другой, повторить позже
//	}
//	defer func() {
//	    if err := h.Release(ctx); errors.Is(err, dlock.ErrLockAlreadyLost) {
//	        // критическая секция могла пересечься с другим владельцем
//	    }
//	}()
//
// Исключение обеспечивает только хранилище. Сам пакет ничего не координирует
// ни между горутинами, ни между процессами.
package dlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PavelAgarkov/lease-lock/leasestore"
	"github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
	"github.com/PavelAgarkov/lease-lock/utils"
	"github.com/PavelAgarkov/lease-lock/watchdog"
	"github.com/ecodeclub/ekit/bean/option"
	"github.com/ecodeclub/ekit/retry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/PavelAgarkov/lease-lock/dlock"

type Locker struct {
	store    leasestore.LeaseStore
	renewal  bool
	newToken func() string
	tracer   trace.Tracer
}

// New создаёт фабрику блокировок поверх store. Продление аренды включено по умолчанию.
func New(store leasestore.LeaseStore, opts ...option.Option[Locker]) *Locker {
	l := &Locker{
		store:    store,
		renewal:  true,
		newToken: uuid.NewString,
		tracer:   otel.Tracer(tracerName),
	}
	option.Apply(l, opts...)
	return l
}

// WithRenewal включает или выключает фоновое продление аренды.
func WithRenewal(enabled bool) option.Option[Locker] {
	return func(l *Locker) {
		l.renewal = enabled
	}
}

// WithTokenGenerator заменяет генератор токенов владельца. Токены обязаны быть уникальны
// для каждой попытки захвата.
func WithTokenGenerator(fn func() string) option.Option[Locker] {
	return func(l *Locker) {
		l.newToken = fn
	}
}

func WithTracerProvider(tp trace.TracerProvider) option.Option[Locker] {
	return func(l *Locker) {
		l.tracer = tp.Tracer(tracerName)
	}
}

// Acquire делает ровно одну попытку захвата и не ждёт освобождения.
// Занятая блокировка возвращает ErrLockContended.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Handle, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrInvalidKey
	}
	// хранилища считают срок жизни в целых миллисекундах
	if ttl < time.Millisecond {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTTL, ttl)
	}

	ctx, span := l.tracer.Start(ctx, "dlock.Acquire", trace.WithAttributes(
		attribute.String("lock.key", key),
		attribute.Int64("lock.ttl_ms", ttl.Milliseconds()),
	))
	defer span.End()

	token := l.newToken()
	start := time.Now()
	ok, err := l.store.Acquire(ctx, key, token, ttl)
	AcquireLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		AcquireCounter.WithLabelValues(resultError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend unavailable")
		logger.WriteErrorLog(ctx, &logger_wrapper.LogEntry{
			Msg:       "lock acquire failed",
			Component: "dlock",
			Method:    "Acquire",
			Key:       key,
			Error:     err,
			Start:     &start,
		})
		return nil, fmt.Errorf("dlock: acquire %q: %w", key, err)
	}
	if !ok {
		AcquireCounter.WithLabelValues(resultContended).Inc()
		span.SetAttributes(attribute.Bool("lock.acquired", false))
		return nil, fmt.Errorf("dlock: acquire %q: %w", key, ErrLockContended)
	}

	AcquireCounter.WithLabelValues(resultAcquired).Inc()
	HeldGauge.Inc()
	span.SetAttributes(attribute.Bool("lock.acquired", true))

	h := newHandle(l, key, token, ttl)
	if l.renewal {
		h.renewer = watchdog.Start(ctx, watchdog.Config{
			Name:     key,
			Interval: ttl / 3,
			TTL:      ttl,
			Refresh:  h.refresh,
			OnLost:   h.markExpired,
		})
	}

	logger.WriteDebugLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "lock acquired",
		Component: "dlock",
		Method:    "Acquire",
		Key:       key,
		Args:      ttl.String(),
		Start:     &start,
	})
	return h, nil
}

// AcquireWithRetry повторяет Acquire, пока блокировка занята, с паузами из strategy.
// Любая ошибка, кроме ErrLockContended, прерывает попытки сразу.
func (l *Locker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, strategy retry.Strategy) (*Handle, error) {
	for {
		h, err := l.Acquire(ctx, key, ttl)
		if err == nil || !errors.Is(err, ErrLockContended) {
			return h, err
		}
		wait, ok := strategy.Next()
		if !ok {
			return nil, fmt.Errorf("dlock: retries exhausted: %w", err)
		}
		if werr := utils.WaitOrCtx(ctx, wait); werr != nil {
			return nil, fmt.Errorf("dlock: wait for %q: %w", key, werr)
		}
	}
}

// WithLock выполняет fn под блокировкой key. Контекст fn отменяется, если аренда потеряна,
// причина доступна через context.Cause. Ошибка освобождения объединяется с ошибкой fn.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	h, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	return h.Run(ctx, fn)
}
