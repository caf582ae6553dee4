package redis

import (
	"context"
	"fmt"
	"time"

	logger_wrapper "github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
	"github.com/go-redis/redis/v8"
)

type Configs struct {
	Addr     string
	Username string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PingTimeout ограничивает первую проверку соединения при старте.
	PingTimeout time.Duration
}

type Connection struct {
	client *redis.Client
	addr   string
}

// NewRedisConnection создаёт клиента и проверяет, что сервер отвечает.
// Один клиент обслуживает и хранилище аренд, и остатки товаров.
func NewRedisConnection(ctx context.Context, config Configs) (*Connection, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Username:     config.Username,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	pingTimeout := config.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: ping: %w", config.Addr, err)
	}

	logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "Connected to Redis",
		Component: "RedisConnection",
		Method:    "NewRedisConnection",
		Args:      config.Addr,
	})
	return &Connection{client: client, addr: config.Addr}, nil
}

func (c *Connection) Client() *redis.Client {
	return c.client
}

func (c *Connection) Stop() {
	if err := c.client.Close(); err != nil {
		logger.WriteErrorLog(context.Background(), &logger_wrapper.LogEntry{
			Msg:       "Failed to close Redis client",
			Error:     err,
			Component: "RedisConnection",
			Method:    "Stop",
			Args:      c.addr,
		})
	}
}
