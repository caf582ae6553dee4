package application

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
	"github.com/PavelAgarkov/lease-lock/utils"
)

const (
	LowestPriority    = 10000
	LowPriority       = 1000
	MediumPriority    = 500
	HighPriority      = 100
	HighestPriority   = 50
	CriticalPriority  = 20
	ImmediatePriority = 1
)

type linkedList struct {
	node *shutdown
}

type shutdown struct {
	priority     int
	name         string
	next         *shutdown
	shutdownFunc func()
}

type App struct {
	ctx         context.Context
	shutdownRWM sync.RWMutex
	shutdown    *linkedList
	sig         chan os.Signal
}

func NewApp(ctx context.Context, cores int, heapOverflow int) *App {
	if heapOverflow == 0 {
		heapOverflow = 100
	}
	debug.SetGCPercent(heapOverflow)
	runtime.GOMAXPROCS(cores)
	logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
		Msg:       fmt.Sprintf("Application registred with runtime.GOMAXPROCS(%d) and debug.SetGCPercent(%d)", cores, heapOverflow),
		Component: "application",
		Method:    "NewApp",
		Args:      fmt.Sprintf("cores: %d, heapOverflow: %d", cores, heapOverflow),
	})
	return &App{
		shutdown: &linkedList{},
		ctx:      ctx,
		sig:      make(chan os.Signal, 1),
	}
}

func (app *App) RegisterShutdown(name string, fn func(), priority int) {
	defer func() {
		logger.WriteInfoLog(app.ctx, &logger_wrapper.LogEntry{
			Msg:       fmt.Sprintf("Registered shutdown func %s with priority %d", name, priority),
			Component: "application",
			Method:    "RegisterShutdown",
		})
	}()
	app.shutdownRWM.Lock()
	defer app.shutdownRWM.Unlock()
	newShutdown := &shutdown{
		name:         name,
		priority:     priority,
		shutdownFunc: fn,
	}
	if app.shutdown.node == nil || app.shutdown.node.priority > priority {
		newShutdown.next = app.shutdown.node
		app.shutdown.node = newShutdown
		return
	}
	current := app.shutdown.node
	for current.next != nil && current.next.priority <= priority {
		current = current.next
	}
	newShutdown.next = current.next
	current.next = newShutdown
}

func (app *App) shutdownAllAndDeleteAllCanceled() {
	app.shutdownRWM.Lock()
	defer app.shutdownRWM.Unlock()
	for app.shutdown.node != nil {
		app.runShutdown(app.shutdown.node)
		logger.WriteInfoLog(app.ctx, &logger_wrapper.LogEntry{
			Msg:       fmt.Sprintf("Shutdown func %s executed with priority %d", app.shutdown.node.name, app.shutdown.node.priority),
			Component: "application",
			Method:    "shutdownAllAndDeleteAllCanceled",
		})
		app.shutdown.node = app.shutdown.node.next
	}
}

func (app *App) runShutdown(node *shutdown) {
	defer utils.Recover(app.ctx)
	node.shutdownFunc()
}

// Stop выполняет зарегистрированные функции остановки по возрастанию приоритета.
// Паника в одной из них не мешает остальным.
func (app *App) Stop() {
	logger.WriteInfoLog(app.ctx, &logger_wrapper.LogEntry{
		Msg:       "Stopping application",
		Component: "application",
		Method:    "Stop",
	})
	app.shutdownAllAndDeleteAllCanceled()
}

func (app *App) Start(cancel context.CancelFunc) {
	signal.Notify(app.sig, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	utils.GoRecover(app.ctx, func(ctx context.Context) {
		defer signal.Stop(app.sig)
		<-app.sig
		logger.WriteInfoLog(app.ctx, &logger_wrapper.LogEntry{
			Msg:       "Signal received. Shutting down application...",
			Component: "application",
			Method:    "Start",
		})
		cancel()
	})
}

func (app *App) RegisterRecovers() func() {
	return func() {
		if r := recover(); r != nil {
			logger.WriteErrorLog(app.ctx, &logger_wrapper.LogEntry{
				Msg:       "Panic happened in application",
				Component: "application",
				Method:    "RegisterRecovers",
				Error:     utils.PanicError(r),
			})
			app.sig <- syscall.SIGTERM
		}
	}
}

func (app *App) FlushLogger() {
	logger.FlushLogs()
}

func (app *App) Run() {
	<-app.ctx.Done()
}
