package dlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
	"github.com/PavelAgarkov/lease-lock/utils"
	"github.com/PavelAgarkov/lease-lock/watchdog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ExpiredFunc func(h *Handle, cause error)

// Handle одна удерживаемая блокировка. Принадлежит горутине, которая её взяла,
// параллельно с ней хендл трогает только горутина продления через markExpired.
type Handle struct {
	locker  *Locker
	key     string
	token   string
	ttl     time.Duration
	renewer watchdog.LeaseRenewer

	mu        sync.Mutex
	state     State
	cause     error
	released  bool
	callbacks []ExpiredFunc
	expired   chan struct{}
}

func newHandle(l *Locker, key, token string, ttl time.Duration) *Handle {
	return &Handle{
		locker:  l,
		key:     key,
		token:   token,
		ttl:     ttl,
		state:   StateHeld,
		expired: make(chan struct{}),
	}
}

func (h *Handle) Key() string        { return h.key }
func (h *Handle) Token() string      { return h.token }
func (h *Handle) TTL() time.Duration { return h.ttl }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err возвращает причину потери аренды, nil пока она удерживается или после чистого освобождения.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cause
}

// Expired закрывается, когда продление обнаружило потерю аренды.
func (h *Handle) Expired() <-chan struct{} {
	return h.expired
}

// OnExpired регистрирует fn, который один раз вызовется при потере удерживаемой аренды.
// Если это уже случилось, fn вызывается сразу в горутине вызывающего.
// Иначе fn выполняется в горутине продления и не должен вызывать Release:
// Release ждёт завершения этой горутины.
func (h *Handle) OnExpired(fn ExpiredFunc) {
	h.mu.Lock()
	if h.state != StateExpired {
		h.callbacks = append(h.callbacks, fn)
		h.mu.Unlock()
		return
	}
	cause := h.cause
	h.mu.Unlock()
	h.notify(fn, cause)
}

// Release останавливает продление, дожидается текущего тика и удаляет аренду,
// если она всё ещё наша. Потерянная аренда возвращается как ErrLockAlreadyLost.
// Повторный вызов возвращает ErrLockAlreadyLost, не обращаясь к хранилищу.
func (h *Handle) Release(ctx context.Context) error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return fmt.Errorf("dlock: release %q: handle already released: %w", h.key, ErrLockAlreadyLost)
	}
	h.released = true
	h.mu.Unlock()

	if h.renewer != nil {
		h.renewer.Stop()
	}

	ctx, span := h.locker.tracer.Start(ctx, "dlock.Release", trace.WithAttributes(
		attribute.String("lock.key", h.key),
	))
	defer span.End()

	start := time.Now()
	ok, err := h.locker.store.ReleaseIfOwned(ctx, h.key, h.token)

	h.mu.Lock()
	wasHeld := h.state == StateHeld
	switch {
	case err != nil || ok:
		if wasHeld {
			h.state = StateReleased
		}
	case wasHeld:
		h.state = StateExpired
		h.cause = fmt.Errorf("dlock: release %q: %w", h.key, ErrLockAlreadyLost)
	}
	cause := h.cause
	h.mu.Unlock()
	if wasHeld {
		HeldGauge.Dec()
	}

	var result error
	switch {
	case err != nil:
		ReleaseCounter.WithLabelValues(resultError).Inc()
		result = errors.Join(cause, fmt.Errorf("dlock: release %q: %w", h.key, err))
	case cause != nil:
		ReleaseCounter.WithLabelValues(resultLost).Inc()
		result = cause
	default:
		ReleaseCounter.WithLabelValues(resultReleased).Inc()
		logger.WriteDebugLog(ctx, &logger_wrapper.LogEntry{
			Msg:       "lock released",
			Component: "dlock",
			Method:    "Release",
			Key:       h.key,
			Start:     &start,
		})
		return nil
	}

	span.RecordError(result)
	span.SetStatus(codes.Error, "release failed")
	logger.WriteErrorLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "lock was not released cleanly, critical section may have overlapped with another owner",
		Component: "dlock",
		Method:    "Release",
		Key:       h.key,
		Error:     result,
		Start:     &start,
	})
	return result
}

// Detach останавливает продление и отпускает хендл, не удаляя аренду: ключ
// остаётся занятым до конца текущего TTL. Подходит для задач, которые должны
// выполниться один раз на окно времени. Release после Detach возвращает
// ErrLockAlreadyLost, не обращаясь к хранилищу.
func (h *Handle) Detach(ctx context.Context) {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.mu.Unlock()

	if h.renewer != nil {
		h.renewer.Stop()
	}

	h.mu.Lock()
	wasHeld := h.state == StateHeld
	if wasHeld {
		h.state = StateReleased
	}
	h.mu.Unlock()
	if !wasHeld {
		return
	}
	HeldGauge.Dec()
	logger.WriteDebugLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "lock detached, lease left to expire",
		Component: "dlock",
		Method:    "Detach",
		Key:       h.key,
		Args:      h.ttl.String(),
	})
}

// Run выполняет fn под уже захваченной блокировкой и освобождает её в конце, в том числе при панике.
func (h *Handle) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	lctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	h.OnExpired(func(_ *Handle, cause error) { cancel(cause) })

	defer func() {
		rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), h.ttl)
		defer rcancel()
		err = errors.Join(err, h.Release(rctx))
	}()
	return fn(lctx)
}

func (h *Handle) refresh(ctx context.Context) (bool, error) {
	ok, err := h.locker.store.RefreshIfOwned(ctx, h.key, h.token, h.ttl)
	switch {
	case err != nil:
		RenewCounter.WithLabelValues(resultError).Inc()
	case ok:
		RenewCounter.WithLabelValues(resultRenewed).Inc()
	default:
		RenewCounter.WithLabelValues(resultLost).Inc()
	}
	return ok, err
}

// markExpired вызывается горутиной продления, когда владение больше не подтверждается.
func (h *Handle) markExpired(cause error) {
	h.mu.Lock()
	if h.state != StateHeld {
		h.mu.Unlock()
		return
	}
	h.state = StateExpired
	h.cause = fmt.Errorf("dlock: lease %q: %w: %w", h.key, ErrLockAlreadyLost, cause)
	callbacks := h.callbacks
	h.callbacks = nil
	cause = h.cause
	close(h.expired)
	h.mu.Unlock()

	HeldGauge.Dec()
	ExpiredCounter.Inc()
	for _, fn := range callbacks {
		h.notify(fn, cause)
	}
}

func (h *Handle) notify(fn ExpiredFunc, cause error) {
	ctx := context.Background()
	defer utils.Recover(ctx)
	fn(h, cause)
}
