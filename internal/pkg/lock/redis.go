package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only if the key still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

const retryInterval = 25 * time.Millisecond

// RedisLock is a Locker shared by every scheduler instance pointing at
// the same Redis. Each holder writes a random token with a TTL so a
// crashed holder cannot block a slot forever.
type RedisLock struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisLock creates a RedisLock. ttl bounds how long a lock survives a
// crashed holder; timeout bounds how long WithLock waits.
func NewRedisLock(client redis.UniversalClient, prefix string, ttl, timeout time.Duration) *RedisLock {
	return &RedisLock{client: client, prefix: prefix, ttl: ttl, timeout: timeout}
}

func (rl *RedisLock) key(k int64) string {
	return rl.prefix + strconv.FormatInt(k, 10)
}

// tryLock makes one attempt and returns the token on success.
func (rl *RedisLock) tryLock(ctx context.Context, key int64) (string, bool, error) {
	token := uuid.NewString()
	ok, err := rl.client.SetNX(ctx, rl.key(key), token, rl.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire redis lock: %w", err)
	}
	return token, ok, nil
}

// unlock releases the lock if token still owns it.
func (rl *RedisLock) unlock(ctx context.Context, key int64, token string) error {
	n, err := releaseScript.Run(ctx, rl.client, []string{rl.key(key)}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release redis lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// WithLock implements Locker.
func (rl *RedisLock) WithLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error {
	waitCtx := ctx
	if rl.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, rl.timeout)
		defer cancel()
	}

	var token string
	for {
		t, ok, err := rl.tryLock(waitCtx, key)
		if err != nil && waitCtx.Err() == nil {
			return err
		}
		if ok {
			token = t
			break
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return ErrLockTimeout
		case <-time.After(retryInterval):
		}
	}

	stopRefresh := rl.keepAlive(ctx, key, token)
	fnErr := fn(ctx)
	stopRefresh()

	// Release even if ctx was cancelled meanwhile. Once fn has succeeded its
	// work is committed, so a lock that expired underneath it is only logged.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := rl.unlock(releaseCtx, key, token); err != nil {
		log.Warn().Err(err).Int64("key", key).Msg("Redis lock release failed")
	}
	return fnErr
}

// keepAlive pushes the TTL forward every ttl/2 until the returned stop
// function is called or the token no longer owns the key.
func (rl *RedisLock) keepAlive(ctx context.Context, key int64, token string) func() {
	interval := rl.ttl / 2
	if rl.ttl < time.Millisecond || interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				n, err := refreshScript.Run(context.WithoutCancel(ctx), rl.client,
					[]string{rl.key(key)}, token, rl.ttl.Milliseconds()).Int()
				if err != nil {
					log.Warn().Err(err).Int64("key", key).Msg("Redis lock refresh failed")
					continue
				}
				if n == 0 {
					log.Warn().Int64("key", key).Msg("Redis lock lost while held")
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}
