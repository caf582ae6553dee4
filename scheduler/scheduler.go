package scheduler

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

type StopMode int

const (
	StopImmediate StopMode = iota
	StopGraceful
)

type JobConfiguration struct {
	Name string
	Func func(context.Context) error
	Tick time.Duration
	// Deadline одного запуска, по умолчанию равен Tick.
	Deadline time.Duration
	StopMode StopMode
	// Immediate запускает задачу сразу при старте, не дожидаясь первого тика.
	Immediate bool
}

type job struct {
	name      string
	rmu       sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	fn        func(context.Context) error
	tick      time.Duration
	ticker    *time.Ticker
	deadline  time.Duration
	wg        sync.WaitGroup
	stopMode  StopMode
	immediate bool
}

type JobScheduler struct {
	mu         sync.Mutex
	started    bool
	goroutines map[string]*job
	rate       chan struct{}
}

func NewJobScheduler(rate int64) *JobScheduler {
	if rate <= 0 {
		rate = 1
	}
	return &JobScheduler{
		rate:       make(chan struct{}, rate),
		goroutines: make(map[string]*job),
	}
}

func (s *JobScheduler) Add(cfg JobConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler.Add(%s): already started", cfg.Name)
	}
	if _, exists := s.goroutines[cfg.Name]; exists {
		return fmt.Errorf("scheduler.Add(%s): job already exists", cfg.Name)
	}
	if cfg.Func == nil || cfg.Tick <= 0 {
		return fmt.Errorf("scheduler.Add(%s): func and positive tick are required", cfg.Name)
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = cfg.Tick
	}

	s.goroutines[cfg.Name] = &job{
		name:      cfg.Name,
		fn:        cfg.Func,
		tick:      cfg.Tick,
		deadline:  cfg.Deadline,
		stopMode:  cfg.StopMode,
		immediate: cfg.Immediate,
	}
	return nil
}

func (s *JobScheduler) Start(ctx context.Context) func() {
	return func() {
		s.mu.Lock()
		if s.started {
			s.mu.Unlock()
			logger.WriteWarnLog(ctx, &logger_wrapper.LogEntry{
				Msg:       "scheduler.start",
				Component: "scheduler",
				Method:    "Start",
			})
			return
		}
		s.started = true

		// Сохраним локальную копию job-ов и освободим глобальный лок
		jobs := make(map[string]*job, len(s.goroutines))
		for name, j := range s.goroutines {
			jobs[name] = j
		}
		s.mu.Unlock()

		// Дальше – без глобального лока
		for name, j := range jobs {
			j.rmu.Lock()
			j.ctx, j.cancel = context.WithCancel(ctx)
			j.ticker = time.NewTicker(j.tick)
			j.wg.Add(1)
			j.rmu.Unlock()

			// run обязан стартовать, иначе wg в Stop не дождётся Done
			utils.GoRecover(context.WithoutCancel(ctx), func(context.Context) {
				s.run(name, j)
			})
		}
	}
}

// Stop останавливает задачи и дожидается их завершения.
func (s *JobScheduler) Stop() func() {
	return func() {
		s.mu.Lock()
		if !s.started {
			s.mu.Unlock()
			return
		}
		s.started = false

		// отзываем контексты + останавливаем тикеры под защитой локов каждого job
		for _, j := range s.goroutines {
			j.cancel()
			j.rmu.Lock()
			if j.ticker != nil {
				j.ticker.Stop()
			}
			j.rmu.Unlock()
		}

		// копия слайса, чтобы ждать уже без глобального лока
		jobs := make([]*job, 0, len(s.goroutines))
		for _, j := range s.goroutines {
			jobs = append(jobs, j)
		}
		s.mu.Unlock()

		for _, j := range jobs {
			j.wg.Wait()
		}
	}
}

func (s *JobScheduler) run(name string, j *job) {
	defer j.wg.Done()

	if j.immediate {
		s.execAndLog(name, j)
	}

	for {
		j.rmu.RLock()
		ctx := j.ctx
		ticker := j.ticker
		j.rmu.RUnlock()

		select {
		case <-ctx.Done():
			logger.WriteInfoLog(j.ctx, &logger_wrapper.LogEntry{
				Msg:       "Job stopped",
				Component: "scheduler",
				Method:    "run",
				Args:      name,
			})
			return

		case <-ticker.C:
			s.execAndLog(name, j)
		}
	}
}

func (s *JobScheduler) execAndLog(name string, j *job) {
	if err := s.exec(j); err != nil && !errors.Is(err, context.Canceled) {
		logger.WriteErrorLog(j.ctx, &logger_wrapper.LogEntry{
			Msg:       "Job execution failed",
			Component: "scheduler",
			Method:    "run",
			Args:      name,
			Error:     err,
		})
	}
}

func (s *JobScheduler) exec(j *job) (err error) {
	select {
	case <-j.ctx.Done():
		return j.ctx.Err()
	case s.rate <- struct{}{}:
	}
	defer func() { <-s.rate }()
	defer func() {
		if r := recover(); r != nil {
			logger.WriteErrorLog(j.ctx, &logger_wrapper.LogEntry{
				Msg:       "Job panic",
				Component: "scheduler",
				Method:    "exec",
				Args:      j.name,
				Error:     fmt.Errorf("panic in job %s: %v", j.name, r),
			})
			err = fmt.Errorf("panic in job: %v", r)
		}
	}()

	if j.ctx.Err() != nil {
		return j.ctx.Err()
	}

	switch j.stopMode {
	case StopImmediate:
		ctx, cancel := context.WithTimeout(j.ctx, j.deadline)
		defer cancel()
		err = j.fn(ctx)
	case StopGraceful:
		ctx, cancel := context.WithTimeout(context.Background(), j.deadline)
		defer cancel()
		err = j.fn(ctx)
	}

	return err
}
