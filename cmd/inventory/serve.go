package main

import (
	"context"
	"fmt"
	"time"

	"github.com/PavelAgarkov/lease-lock/application"
	"github.com/PavelAgarkov/lease-lock/database/postgres"
	"github.com/PavelAgarkov/lease-lock/database/redis"
	"github.com/PavelAgarkov/lease-lock/dlock"
	"github.com/PavelAgarkov/lease-lock/inventory"
	"github.com/PavelAgarkov/lease-lock/leasestore"
	"github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
	"github.com/PavelAgarkov/lease-lock/readiness_barrier"
	"github.com/PavelAgarkov/lease-lock/scheduler"
	"github.com/PavelAgarkov/lease-lock/server"
	"github.com/ecodeclub/ekit/bean/option"
	"github.com/ecodeclub/ekit/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

type lockBackend interface {
	leasestore.LeaseStore
	leasestore.Pinger
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	if err := logger.InitLoggerForStdout(cfg.LogLevel, cfg.LogJSON, nil); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := application.NewApp(ctx, cfg.Cores, 100)
	defer app.Stop()
	defer app.RegisterRecovers()()
	app.Start(cancel)
	app.RegisterShutdown("logger", app.FlushLogger, application.LowestPriority)

	redisConn, err := redis.NewRedisConnection(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	app.RegisterShutdown("redis", redisConn.Stop, application.LowPriority)

	store, err := newLockBackend(ctx, cfg, redisConn, app)
	if err != nil {
		return err
	}

	dlock.RegisterMetrics(prometheus.DefaultRegisterer)
	locker := dlock.New(store)

	opts := []option.Option[inventory.Service]{inventory.WithLockTTL(cfg.LockTTL)}
	if cfg.LockRetryInterval > 0 {
		opts = append(opts, inventory.WithRetry(func() (retry.Strategy, error) {
			return retry.NewFixedIntervalRetryStrategy(cfg.LockRetryInterval, cfg.LockRetryMax)
		}))
	}
	svc := inventory.NewService(locker, inventory.NewRedisStock(redisConn.Client(), cfg.StockPrefix), opts...)

	barrier := readiness_barrier.NewReadinessBarrier(ctx, readiness_barrier.ReadinessBarrierConfig{Name: "lease-store"})
	barrier.Start()
	app.RegisterShutdown("readiness", barrier.Stop, application.MediumPriority)

	stopHTTP := server.CreateHTTPChiServer(
		server.InventoryRoutes(svc, barrier, promhttp.Handler()),
		cfg.HTTPAddr,
		server.RecoverChiMiddleware,
		server.LoggingChiMiddleware,
	)
	app.RegisterShutdown("http", stopHTTP, application.HighestPriority)

	hs := health.NewServer()
	stopGRPC, err := server.CreateGRPCServer(ctx, server.RegisterHealth(hs), cfg.GRPC,
		grpc.ChainUnaryInterceptor(
			server.EnforceMaxSendSize(4<<20),
			server.RecoverUnaryInterceptor(),
			server.TimeoutUnaryInterceptor(5*time.Second),
		),
	)
	if err != nil {
		return err
	}
	app.RegisterShutdown("grpc", func() {
		hs.Shutdown()
		stopGRPC()
	}, application.HighestPriority)

	// проба стартует после gRPC, иначе RegisterHealth перезапишет её первый результат
	jobs := scheduler.NewJobScheduler(1)
	if err := jobs.Add(scheduler.JobConfiguration{
		Name:      "lease-store-probe",
		Func:      server.NewHealthProbe(store, barrier, hs, "inventory").Check,
		Tick:      cfg.ProbeInterval,
		Immediate: true,
		StopMode:  scheduler.StopImmediate,
	}); err != nil {
		return err
	}
	schedulers := []scheduler.Scheduler{jobs}
	if cfg.AuditSchedule != "" {
		period, err := scheduler.Period(cfg.AuditSchedule)
		if err != nil {
			return err
		}
		// аренда аудита живёт почти весь тик, чтобы опоздавший экземпляр не повторил отчёт
		hold := period - period/10
		audit := scheduler.NewCron()
		if err := audit.Add(ctx, cfg.AuditSchedule, func(ctx context.Context) error {
			_, _, err := svc.Audit(ctx, cfg.AuditProducts, hold)
			return err
		}); err != nil {
			return err
		}
		schedulers = append(schedulers, audit)
	}
	supervisor := scheduler.NewTaskSupervisor(schedulers...)
	supervisor.Start(ctx)
	app.RegisterShutdown("schedulers", supervisor.Stop, application.HighPriority)

	logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "inventory started",
		Component: "main",
		Method:    "runServe",
		Args:      fmt.Sprintf("http=%s grpc=%s backend=%s", cfg.HTTPAddr, cfg.GRPC.Port, cfg.LockBackend),
	})
	app.Run()
	return nil
}

func newLockBackend(ctx context.Context, cfg *Config, redisConn *redis.Connection, app *application.App) (lockBackend, error) {
	switch cfg.LockBackend {
	case backendPostgres:
		conn, err := postgres.NewPostgresConnection(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		app.RegisterShutdown("postgres", conn.Stop, application.LowPriority)
		store := leasestore.NewPostgresStore(conn.Pool(), leasestore.PostgresConfigs{Table: cfg.PostgresTable})
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("lease table: %w", err)
		}
		return store, nil
	case backendMemory:
		logger.WriteWarnLog(ctx, &logger_wrapper.LogEntry{
			Msg:       "memory lock backend excludes only goroutines of this process",
			Component: "main",
			Method:    "newLockBackend",
		})
		return leasestore.NewMemoryStore(), nil
	default:
		return leasestore.NewRedisStore(redisConn.Client(), leasestore.RedisConfigs{Prefix: cfg.LockPrefix}), nil
	}
}
