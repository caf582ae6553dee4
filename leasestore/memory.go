package leasestore

import (
	"context"
	"sync"
	"time"

	"github.com/ecodeclub/ekit/bean/option"
)

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// MemoryStore держит аренды в памяти процесса. Исключение работает только между
// горутинами одного экземпляра: это подделка для тестов и однопроцессных утилит,
// а не межпроцессная блокировка.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[string]memoryLease
}

func NewMemoryStore(opts ...option.Option[MemoryStore]) *MemoryStore {
	s := &MemoryStore{
		now:    time.Now,
		leases: make(map[string]memoryLease),
	}
	option.Apply(s, opts...)
	return s
}

// WithClock подменяет часы, по которым считается истечение.
func WithClock(now func() time.Time) option.Option[MemoryStore] {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// lookup вызывается под mu. Протухшие аренды удаляются при обращении.
func (s *MemoryStore) lookup(key string) (memoryLease, bool) {
	l, ok := s.leases[key]
	if !ok {
		return memoryLease{}, false
	}
	if !s.now().Before(l.expiresAt) {
		delete(s.leases, key)
		return memoryLease{}, false
	}
	return l, true
}

func (s *MemoryStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable("memory", "acquire", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.leases[key] = memoryLease{token: token, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, unavailable("memory", "get", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lookup(key)
	return l.token, ok, nil
}

func (s *MemoryStore) ReleaseIfOwned(ctx context.Context, key, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable("memory", "release", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lookup(key)
	if !ok || l.token != token {
		return false, nil
	}
	delete(s.leases, key)
	return true, nil
}

func (s *MemoryStore) RefreshIfOwned(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable("memory", "refresh", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lookup(key)
	if !ok || l.token != token {
		return false, nil
	}
	l.expiresAt = s.now().Add(ttl)
	s.leases[key] = l
	return true, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Expire удаляет аренду, как будто истёк её TTL. Сообщает, была ли живая аренда.
func (s *MemoryStore) Expire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(key)
	delete(s.leases, key)
	return ok
}

// TTL возвращает оставшееся время жизни аренды, ноль если её нет.
func (s *MemoryStore) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lookup(key)
	if !ok {
		return 0
	}
	return l.expiresAt.Sub(s.now())
}
