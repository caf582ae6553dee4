package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/PavelAgarkov/lease-lock/database/postgres"
	"github.com/PavelAgarkov/lease-lock/database/redis"
	"github.com/PavelAgarkov/lease-lock/server"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	backendRedis    = "redis"
	backendPostgres = "postgres"
	backendMemory   = "memory"
)

type Config struct {
	HTTPAddr string
	GRPC     server.Configs

	LockBackend       string
	LockTTL           time.Duration
	LockRetryInterval time.Duration
	LockRetryMax      int32
	LockPrefix        string

	Redis         redis.Configs
	StockPrefix   string
	Postgres      postgres.Configs
	PostgresTable string

	ProbeInterval time.Duration
	AuditSchedule string
	AuditProducts []string

	LogLevel zapcore.Level
	LogJSON  bool
	Cores    int
}

func loadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPAddr: v.GetString("http-addr"),
		GRPC: server.Configs{
			Port:       v.GetString("grpc-addr"),
			Network:    "tcp",
			Reflection: v.GetBool("grpc-reflection"),
		},
		LockBackend:       strings.ToLower(v.GetString("lock-backend")),
		LockTTL:           v.GetDuration("lock-ttl"),
		LockRetryInterval: v.GetDuration("lock-retry-interval"),
		LockRetryMax:      v.GetInt32("lock-retry-max"),
		LockPrefix:        v.GetString("lock-prefix"),
		Redis: redis.Configs{
			Addr:     v.GetString("redis-addr"),
			Username: v.GetString("redis-username"),
			Password: v.GetString("redis-password"),
			DB:       v.GetInt("redis-db"),
			PoolSize: v.GetInt("redis-pool-size"),
		},
		StockPrefix: v.GetString("stock-prefix"),
		Postgres: postgres.Configs{
			DSN:                  v.GetString("postgres-dsn"),
			MaxOpenedConnections: v.GetInt("postgres-max-conns"),
			ApplicationName:      "inventory",
		},
		PostgresTable: v.GetString("postgres-table"),
		ProbeInterval: v.GetDuration("probe-interval"),
		AuditSchedule: v.GetString("audit-schedule"),
		AuditProducts: v.GetStringSlice("audit-products"),
		LogJSON:       v.GetBool("log-json"),
		Cores:         v.GetInt("cores"),
	}

	level, err := zapcore.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	switch cfg.LockBackend {
	case backendRedis, backendMemory:
	case backendPostgres:
		if cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("postgres-dsn is required for lock-backend=%s", backendPostgres)
		}
	default:
		return nil, fmt.Errorf("invalid lock-backend %q", cfg.LockBackend)
	}
	if cfg.LockTTL < 3*time.Millisecond {
		return nil, fmt.Errorf("lock-ttl %s is too short to renew", cfg.LockTTL)
	}
	if cfg.ProbeInterval <= 0 {
		return nil, fmt.Errorf("probe-interval must be positive")
	}
	return cfg, nil
}
