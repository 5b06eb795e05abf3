package services

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const lockKeyPrefix = "ledger:lock:"

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLockManager coordinates ledger writers across service instances. Each
// key is a SET NX PX entry owned by a random token; the TTL bounds how long a
// crashed holder can block others.
type RedisLockManager struct {
	client *redis.Client
	wait   time.Duration
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

func NewRedisLockManager(client *redis.Client, wait, ttl time.Duration, logger *zap.Logger) *RedisLockManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLockManager{
		client: client,
		wait:   wait,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		logger: logger.Named("locks"),
	}
}

func (m *RedisLockManager) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = canonicalKeys(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(keys))

	release := func() {
		// Release must not depend on a caller context that may be cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(rctx, m.client, []string{lockKeyPrefix + held[i]}, token).Err(); err != nil {
				m.logger.Warn("lock release failed, key stays held until its ttl expires",
					zap.String("key", held[i]), zap.Duration("ttl", m.ttl), zap.Error(err))
			}
		}
	}

	for _, key := range keys {
		if err := m.lock(ctx, key, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (m *RedisLockManager) lock(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(m.wait)
	for {
		ok, err := m.client.SetNX(ctx, lockKeyPrefix+key, token, m.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return errContention
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.retry):
		}
	}
}
