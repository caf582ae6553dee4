package leasestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const DefaultPostgresTable = "leases"

// pgxQuerier покрывается *pgxpool.Pool, *pgx.Conn и транзакцией.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresConfigs struct {
	Table string
}

// PostgresStore держит аренды в таблице (key, owner, expires_at).
// Время истечения считается только по часам сервера БД (now()).
type PostgresStore struct {
	db    pgxQuerier
	table string

	acquireSQL string
	getSQL     string
	releaseSQL string
	refreshSQL string
}

func NewPostgresStore(db pgxQuerier, cfg PostgresConfigs) *PostgresStore {
	if cfg.Table == "" {
		cfg.Table = DefaultPostgresTable
	}
	table := pgx.Identifier{cfg.Table}.Sanitize()

	return &PostgresStore{
		db:    db,
		table: table,
		// при конфликте перезаписываем только протухшую аренду
		acquireSQL: fmt.Sprintf(`INSERT INTO %s AS l (key, owner, expires_at)
VALUES ($1, $2, now() + $3::bigint * interval '1 millisecond')
ON CONFLICT (key) DO UPDATE
SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
WHERE l.expires_at <= now()
RETURNING owner`, table),
		getSQL: fmt.Sprintf(`SELECT owner FROM %s WHERE key = $1 AND expires_at > now()`, table),
		// протухшую запись своего владельца тоже удаляем, но сообщаем, что аренда уже была потеряна
		releaseSQL: fmt.Sprintf(`DELETE FROM %s WHERE key = $1 AND owner = $2 RETURNING expires_at > now()`, table),
		refreshSQL: fmt.Sprintf(`UPDATE %s SET expires_at = now() + $3::bigint * interval '1 millisecond'
WHERE key = $1 AND owner = $2 AND expires_at > now()`, table),
	}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key        text PRIMARY KEY,
	owner      text NOT NULL,
	expires_at timestamptz NOT NULL
)`, s.table))
	if err != nil {
		return unavailable("postgres", "ensure schema", err)
	}
	return nil
}

func (s *PostgresStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	var owner string
	err := s.db.QueryRow(ctx, s.acquireSQL, key, token, millis(ttl)).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("postgres", "acquire", err)
	}
	return owner == token, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var owner string
	err := s.db.QueryRow(ctx, s.getSQL, key).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("postgres", "get", err)
	}
	return owner, true, nil
}

func (s *PostgresStore) ReleaseIfOwned(ctx context.Context, key, token string) (bool, error) {
	var alive bool
	err := s.db.QueryRow(ctx, s.releaseSQL, key, token).Scan(&alive)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("postgres", "release", err)
	}
	return alive, nil
}

func (s *PostgresStore) RefreshIfOwned(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	tag, err := s.db.Exec(ctx, s.refreshSQL, key, token, millis(ttl))
	if err != nil {
		return false, unavailable("postgres", "refresh", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return unavailable("postgres", "ping", err)
	}
	return nil
}
