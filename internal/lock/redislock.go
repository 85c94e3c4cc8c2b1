package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired аренда принадлежит другому владельцу.
var ErrNotAcquired = errors.New("lock not acquired")

// releaseScript удаляет ключ, только если значение совпадает с токеном.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// extendScript продлевает ключ, только если значение совпадает с токеном.
var extendScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
`)

// RedisLock аренда ключа в Redis с уникальным токеном владельца.
type RedisLock struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock создаёт аренду key со сроком ttl.
func NewRedisLock(client redis.Cmdable, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

func (l *RedisLock) Key() string {
	return l.key
}

func (l *RedisLock) TTL() time.Duration {
	return l.ttl
}

// TryAcquire пытается занять ключ. Повторный вызов владельцем продлевает аренду.
func (l *RedisLock) TryAcquire(ctx context.Context) (bool, error) {
	const op = "lock.RedisLock.TryAcquire"
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		return true, nil
	}
	return l.Extend(ctx)
}

// Extend продлевает аренду. false, если ключ истёк или занят другим.
func (l *RedisLock) Extend(ctx context.Context) (bool, error) {
	const op = "lock.RedisLock.Extend"
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// Release освобождает аренду, если она наша.
func (l *RedisLock) Release(ctx context.Context) error {
	const op = "lock.RedisLock.Release"
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotAcquired)
	}
	return nil
}
