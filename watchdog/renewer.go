package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
	"github.com/PavelAgarkov/lease-lock/utils"
)

// ErrNotOwned сообщает, что продление не нашло нашу аренду: она истекла или перехвачена.
var ErrNotOwned = errors.New("lease is no longer owned")

type Config struct {
	// Name попадает в логи, обычно это ключ блокировки.
	Name string
	// Interval между продлениями, для аренды с TTL это TTL/3.
	Interval time.Duration
	// TTL аренды. Если столько времени ни одно продление не прошло успешно,
	// владение больше нельзя доказать и цикл сдаётся.
	TTL time.Duration
	// Refresh делает одну попытку продления. false без ошибки означает потерю владения.
	Refresh func(ctx context.Context) (bool, error)
	// OnLost вызывается не более одного раза из горутины продления.
	OnLost func(cause error)
}

type Renewer struct {
	cfg      Config
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start запускает продление в отдельной горутине. Отмена ctx на цикл не влияет,
// остановить его можно только через Stop, иначе короткий контекст захвата
// оборвал бы продление посреди критической секции.
func Start(ctx context.Context, cfg Config) *Renewer {
	if cfg.Interval <= 0 {
		panic("watchdog: Interval must be positive")
	}
	if cfg.Refresh == nil {
		panic("watchdog: Refresh is nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 3 * cfg.Interval
	}

	r := &Renewer{
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	utils.GoRecover(context.WithoutCancel(ctx), r.run)
	return r
}

func (r *Renewer) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Renewer) Done() <-chan struct{} {
	return r.done
}

func (r *Renewer) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *Renewer) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	lastRenewed := time.Now()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}
		// тикер и stop могли сработать одновременно
		if r.stopped() {
			return
		}

		ok, err := r.tick(ctx)
		switch {
		case err == nil && ok:
			lastRenewed = time.Now()
		case err == nil:
			r.lost(ctx, ErrNotOwned)
			return
		default:
			logger.WriteWarnLog(ctx, &logger_wrapper.LogEntry{
				Msg:       "lease refresh failed, will retry on next tick",
				Component: "watchdog",
				Method:    "run",
				Key:       r.cfg.Name,
				Error:     err,
			})
			if time.Since(lastRenewed) >= r.cfg.TTL {
				r.lost(ctx, fmt.Errorf("no successful refresh for %s: %w", r.cfg.TTL, err))
				return
			}
		}
	}
}

// tick не отменяется через Stop: Stop ждёт его завершения, а время ограничено интервалом.
func (r *Renewer) tick(ctx context.Context) (bool, error) {
	tctx, cancel := context.WithTimeout(ctx, r.cfg.Interval)
	defer cancel()
	return r.cfg.Refresh(tctx)
}

func (r *Renewer) lost(ctx context.Context, cause error) {
	logger.WriteErrorLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "lease lost, renewal stopped",
		Component: "watchdog",
		Method:    "run",
		Key:       r.cfg.Name,
		Error:     cause,
	})
	if r.cfg.OnLost != nil {
		r.cfg.OnLost(cause)
	}
}
