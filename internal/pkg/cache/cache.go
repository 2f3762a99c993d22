package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ManuelReschke/toolhub/internal/pkg/env"
	"github.com/ManuelReschke/toolhub/internal/pkg/security"
	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// SetupCache initializes the shared Redis connection used for cross-instance
// counters. A failed ping is logged, not fatal: callers degrade to local
// state when Redis is unavailable.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to cache: %v", err)
	} else {
		log.Printf("Successfully connected to cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Available reports whether the cache answers a ping right now.
func Available(ctx context.Context) bool {
	return GetClient().Ping(ctx).Err() == nil
}

// AttemptStore returns counters shared through Redis, or process-local
// counters when Redis does not answer at startup.
func AttemptStore(namespace string) security.AttemptStore {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if Available(ctx) {
		return security.NewRedisAttemptStore(GetClient(), namespace)
	}
	log.Printf("Warning: cache unavailable, %s counters are local to this process", namespace)
	return security.NewMemoryAttemptStore()
}
