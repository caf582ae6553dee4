package postgres

import (
	"context"
	"fmt"
	"time"

	logger_wrapper "github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Configs struct {
	// DSN, если задан, используется вместо Host/Port/Username/Password/Database.
	DSN string

	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string

	MaxOpenedConnections int

	ApplicationName string

	ConnectionMaxIdleTime time.Duration
	ConnectionMaxLifeTime time.Duration
	HealthCheckPeriod     time.Duration
	ConnectTimeout        time.Duration
	MaxConnLifeTimeJitter time.Duration
}

func (c Configs) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type Connection struct {
	pool *pgxpool.Pool
}

// NewPostgresConnection открывает пул pgx. Аренды хранятся в одной маленькой таблице,
// поэтому пул держим небольшим.
func NewPostgresConnection(ctx context.Context, config Configs) (*Connection, error) {
	poolConfig, err := pgxpool.ParseConfig(config.dsn())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	if config.MaxOpenedConnections > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenedConnections)
		// минимум держим открытым, чтобы первый захват после простоя не ждал соединения
		poolConfig.MinConns = poolConfig.MaxConns / 4
	}
	if config.ConnectionMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.ConnectionMaxIdleTime
	}
	if config.ConnectionMaxLifeTime > 0 {
		poolConfig.MaxConnLifetime = config.ConnectionMaxLifeTime
		poolConfig.MaxConnLifetimeJitter = config.MaxConnLifeTimeJitter
	}
	// без таймаута захват в момент глитча висит до TCP-таймаута
	if config.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = config.ConnectTimeout
	}
	if config.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = config.HealthCheckPeriod
	}
	if config.ApplicationName != "" {
		// видно в pg_stat_activity, кто держит соединение
		poolConfig.ConnConfig.RuntimeParams["application_name"] = config.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping %s: %w", poolConfig.ConnConfig.Host, err)
	}

	logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "Connected to Postgres",
		Component: "PostgresConnection",
		Method:    "NewPostgresConnection",
		Args:      fmt.Sprintf("%s:%d/%s", poolConfig.ConnConfig.Host, poolConfig.ConnConfig.Port, poolConfig.ConnConfig.Database),
	})
	return &Connection{pool: pool}, nil
}

func (r *Connection) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *Connection) Stop() {
	r.pool.Close()
}
