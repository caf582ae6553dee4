package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.1.0"

var (
	RootCmd = &cobra.Command{
		Use:   "inventory",
		Short: "stock service guarded by distributed lease locks",
		Long: fmt.Sprintf(`inventory (v%s)

Decrements product stock kept in Redis. Every change runs under a lease lock
keyed by the product id, so any number of instances can serve the same products.
Flags can be set via environment variables LEASELOCK_<FLAG> (e.g. LEASELOCK_REDIS_ADDR).`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("inventory v%s\n", Version)
		},
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP and gRPC servers",
		RunE:  runServe,
	}
)

func init() {
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(versionCmd)
	setupServeFlags(serveCmd)
}

func setupServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("http-addr", ":8080", "address of the HTTP API")
	f.String("grpc-addr", ":9090", "address of the gRPC health service")
	f.Bool("grpc-reflection", false, "register gRPC reflection")

	f.String("lock-backend", "redis", "lease store: redis, postgres or memory (memory is single process only)")
	f.Duration("lock-ttl", 30*time.Second, "lease ttl, renewed every ttl/3 while held")
	f.Duration("lock-retry-interval", 0, "wait between attempts on a busy lock, 0 fails fast with 429")
	f.Int("lock-retry-max", 10, "attempts after the first one when lock-retry-interval is set")
	f.String("lock-prefix", "lease-lock:", "redis key prefix of leases")

	f.String("redis-addr", "localhost:6379", "redis address, also holds stock counters")
	f.String("redis-username", "", "redis username")
	f.String("redis-password", "", "redis password")
	f.Int("redis-db", 0, "redis database")
	f.Int("redis-pool-size", 0, "redis pool size, 0 uses the client default")
	f.String("stock-prefix", "product_stock:", "redis key prefix of stock counters")

	f.String("postgres-dsn", "", "postgres DSN for lock-backend=postgres")
	f.String("postgres-table", "leases", "postgres lease table")
	f.Int("postgres-max-conns", 8, "postgres pool size")

	f.Duration("probe-interval", 5*time.Second, "lease store health probe interval")
	f.String("audit-schedule", "0 * * * * *", "cron schedule (with seconds) of the stock audit, empty disables it")
	f.StringSlice("audit-products", []string{"product_001"}, "products included in the audit")

	f.String("log-level", "info", "debug, info, warn, error")
	f.Bool("log-json", false, "json log output")
	f.Int("cores", runtime.NumCPU(), "GOMAXPROCS")
}

// newViper читает .env, затем окружение LEASELOCK_*, флаги командной строки важнее.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	if err := loadDotEnv(".env", ".env.local"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("leaselock")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

// loadDotEnv пропускает только отсутствующие файлы, битый или нечитаемый .env это ошибка запуска.
func loadDotEnv(files ...string) error {
	for _, file := range files {
		err := godotenv.Load(file)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			continue
		}
		return fmt.Errorf("load %s: %w", file, err)
	}
	return nil
}
