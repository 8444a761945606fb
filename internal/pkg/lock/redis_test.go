package lock

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	if exec.Command("docker", "info").Run() != nil {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLockSerializes(t *testing.T) {
	client := setupRedis(t)
	rl := NewRedisLock(client, "test:slot:", 5*time.Second, 5*time.Second)

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := rl.WithLock(context.Background(), 42, func(context.Context) error {
				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	exists, err := client.Exists(context.Background(), "test:slot:42").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisLockTimeout(t *testing.T) {
	client := setupRedis(t)
	rl := NewRedisLock(client, "test:slot:", 5*time.Second, 50*time.Millisecond)
	ctx := context.Background()

	token, ok, err := rl.tryLock(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)

	err = rl.WithLock(ctx, 9, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, rl.unlock(ctx, 9, token))
	assert.ErrorIs(t, rl.unlock(ctx, 9, token), ErrLockLost)
}

func TestRedisLockOutlivesShortTTL(t *testing.T) {
	client := setupRedis(t)
	rl := NewRedisLock(client, "test:slot:", 50*time.Millisecond, time.Second)
	ctx := context.Background()

	err := rl.WithLock(ctx, 11, func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		exists, err := client.Exists(ctx, "test:slot:11").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists, "lock expired while held")
		return nil
	})
	assert.NoError(t, err)

	exists, err := client.Exists(ctx, "test:slot:11").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisLockLostAfterSuccessIsNotAnError(t *testing.T) {
	client := setupRedis(t)
	rl := NewRedisLock(client, "test:slot:", time.Minute, time.Second)
	ctx := context.Background()

	// The key vanishing mid-call is what an expired TTL looks like.
	err := rl.WithLock(ctx, 12, func(ctx context.Context) error {
		return client.Del(ctx, "test:slot:12").Err()
	})
	assert.NoError(t, err)

	boom := errors.New("boom")
	err = rl.WithLock(ctx, 12, func(ctx context.Context) error {
		require.NoError(t, client.Del(ctx, "test:slot:12").Err())
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
