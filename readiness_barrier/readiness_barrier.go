package readiness_barrier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
)

type toggleSignal string

const (
	ReadySignalToggle    toggleSignal = "ready"
	NotReadySignalToggle toggleSignal = "not_ready"
)

type ReadinessBarrierConfig struct {
	Name string
}

type ReadinessBarrier struct {
	config        ReadinessBarrierConfig
	signals       chan toggleSignal // канал для сигналов готовности, явно не закрывается
	readinessFlag atomic.Bool
	parent        context.Context

	running   atomic.Bool
	mu        sync.Mutex
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func NewReadinessBarrier(parent context.Context, cfg ReadinessBarrierConfig) *ReadinessBarrier {
	r := &ReadinessBarrier{
		config:  cfg,
		signals: make(chan toggleSignal, 4),
		parent:  parent,
	}
	r.setNotReady()
	return r
}

func (r *ReadinessBarrier) Start() {
	// не даём запустить второй раз, пока уже запущен
	if !r.running.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(r.parent)
	r.mu.Lock()
	r.runCancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.listen(ctx)
	}()
}

func (r *ReadinessBarrier) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return // уже остановлен
	}

	r.mu.Lock()
	if r.runCancel != nil {
		r.runCancel()
		r.runCancel = nil
	}
	r.mu.Unlock()
	r.wg.Wait()

drop:
	for {
		select {
		case <-r.signals:
		default:
			break drop
		}
	}
	r.setNotReady()
}

func (r *ReadinessBarrier) IsReady() bool {
	return r.readinessFlag.Load()
}

func (r *ReadinessBarrier) SendSignalCtx(ctx context.Context, sig toggleSignal) error {
	if !r.running.Load() {
		return fmt.Errorf("readiness barrier %s: not running", r.config.Name)
	}
	select {
	case r.signals <- sig:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("readiness barrier %s: context cancelled while sending signal", r.config.Name)
	}
}

// Set переводит барьер в нужное состояние. Повторный одинаковый сигнал ничего не меняет.
func (r *ReadinessBarrier) Set(ctx context.Context, ready bool) error {
	if ready {
		return r.SendSignalCtx(ctx, ReadySignalToggle)
	}
	return r.SendSignalCtx(ctx, NotReadySignalToggle)
}

func (r *ReadinessBarrier) setReady() {
	if !r.readinessFlag.Swap(true) {
		r.logToggle(ReadySignalToggle)
	}
}

func (r *ReadinessBarrier) setNotReady() {
	if r.readinessFlag.Swap(false) {
		r.logToggle(NotReadySignalToggle)
	}
}

func (r *ReadinessBarrier) logToggle(sig toggleSignal) {
	logger.WriteInfoLog(r.parent, &logger_wrapper.LogEntry{
		Msg:       "readiness changed",
		Component: "readiness_barrier",
		Method:    "listen",
		Key:       r.config.Name,
		Result:    string(sig),
	})
}

func (r *ReadinessBarrier) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-r.signals:
			switch sig {
			case ReadySignalToggle:
				r.setReady()
			case NotReadySignalToggle:
				r.setNotReady()
			}
		}
	}
}
