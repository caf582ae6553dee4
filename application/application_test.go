package application

import (
	"context"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownOrder(t *testing.T) {
	app := NewApp(context.Background(), runtime.GOMAXPROCS(0), 100)

	var order []string
	app.RegisterShutdown("logger", func() { order = append(order, "logger") }, LowestPriority)
	app.RegisterShutdown("http", func() { order = append(order, "http") }, HighestPriority)
	app.RegisterShutdown("redis", func() { order = append(order, "redis") }, LowPriority)
	app.RegisterShutdown("grpc", func() { order = append(order, "grpc") }, HighestPriority)
	app.RegisterShutdown("broken", func() { panic("close failed") }, MediumPriority)
	app.RegisterShutdown("schedulers", func() { order = append(order, "schedulers") }, HighPriority)

	app.Stop()
	assert.Equal(t, []string{"http", "grpc", "schedulers", "redis", "logger"}, order)

	// список очищается после остановки
	order = nil
	app.Stop()
	assert.Empty(t, order)
}

func TestRecoversSendSignal(t *testing.T) {
	app := NewApp(context.Background(), runtime.GOMAXPROCS(0), 100)

	func() {
		defer app.RegisterRecovers()()
		panic("main goroutine")
	}()

	select {
	case sig := <-app.sig:
		assert.Equal(t, syscall.SIGTERM, sig)
	case <-time.After(time.Second):
		t.Fatal("no signal after panic")
	}
}

func TestStartCancelsOnSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app := NewApp(ctx, runtime.GOMAXPROCS(0), 100)

	app.Start(cancel)
	app.sig <- syscall.SIGTERM

	done := make(chan struct{})
	go func() {
		app.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after signal")
	}
}
