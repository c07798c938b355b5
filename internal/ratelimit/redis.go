package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "bookshelf:ratelimit:"

type counterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd

	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter counts requests per key in fixed windows stored in Redis.
type RedisLimiter struct {
	store     counterStore
	client    *redis.Client
	perWindow int
	window    time.Duration
	timeout   time.Duration
}

// NewRedisLimiter connects to Redis and checks it with a PING.
func NewRedisLimiter(ctx context.Context, addr, password string, db, perWindow int, window time.Duration) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("in internal/ratelimit/redis.go/NewRedisLimiter(): error while `client.Ping()` calling: %w", err)
	}

	limiter := newRedisLimiter(client, perWindow, window)
	limiter.client = client

	return limiter, nil
}

func newRedisLimiter(store counterStore, perWindow int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		store:     store,
		perWindow: perWindow,
		window:    window,
		timeout:   250 * time.Millisecond,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.perWindow <= 0 {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	redisKey := redisKeyPrefix + key
	counter, err := l.store.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("in internal/ratelimit/redis.go/Allow(): error while `l.store.Incr()` calling: %w", err)
	}

	if counter == 1 {
		if err := l.store.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("in internal/ratelimit/redis.go/Allow(): error while `l.store.Expire()` calling: %w", err)
		}
	}

	return counter <= int64(l.perWindow), nil
}

func (l *RedisLimiter) Close() error {
	if l.client == nil {
		return nil
	}

	return l.client.Close()
}
