package security

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const attemptKeyPrefix = "attempts:"

// AttemptStore counts events per client identity inside a fixed window.
// The window starts with the first hit and is not extended by later hits.
type AttemptStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Count returns the current value without touching the window.
	Count(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// RedisAttemptStore shares counters across instances.
type RedisAttemptStore struct {
	client *redis.Client
	prefix string
}

func NewRedisAttemptStore(client *redis.Client, namespace string) *RedisAttemptStore {
	ns := strings.Trim(strings.TrimSpace(namespace), ":")
	prefix := attemptKeyPrefix
	if ns != "" {
		prefix += ns + ":"
	}
	return &RedisAttemptStore{client: client, prefix: prefix}
}

func (s *RedisAttemptStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := s.prefix + key
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisAttemptStore) Count(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, s.prefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *RedisAttemptStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

type attemptEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryAttemptStore keeps counters in-process. Used in tests and as the
// fallback when no cache is configured.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	entries map[string]attemptEntry
	now     func() time.Time
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		entries: make(map[string]attemptEntry),
		now:     time.Now,
	}
}

func (s *MemoryAttemptStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}

	e, ok := s.entries[key]
	if !ok {
		e = attemptEntry{expiresAt: now.Add(window)}
	}
	e.count++
	s.entries[key] = e
	return e.count, nil
}

func (s *MemoryAttemptStore) Count(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		return 0, nil
	}
	return e.count, nil
}

func (s *MemoryAttemptStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

var (
	_ AttemptStore = (*RedisAttemptStore)(nil)
	_ AttemptStore = (*MemoryAttemptStore)(nil)
)
