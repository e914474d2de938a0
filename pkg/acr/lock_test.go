package acr

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseLocker(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "ACR-1")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())

	// Different keys do not contend.
	u1, err := l.Lock(ctx, "ACR-a")
	require.NoError(t, err)
	u2, err := l.Lock(ctx, "ACR-b")
	require.NoError(t, err)
	u1()
	u2()

	// A held lock blocks until the context expires.
	hold, err := l.Lock(ctx, "ACR-held")
	require.NoError(t, err)
	tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(tctx, "ACR-held")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	hold()

	again, err := l.Lock(ctx, "ACR-held")
	require.NoError(t, err)
	again()
}

func TestKeyedMutex(t *testing.T) {
	k := NewKeyedMutex()
	exerciseLocker(t, k)

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks, "released entries are dropped")
}

func TestKeyedMutex_UnlockIdempotent(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "x")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock, err = k.Lock(context.Background(), "x")
	require.NoError(t, err)
	unlock()
}

// Runs against a real server when ARCHGATE_TEST_REDIS_ADDR is set.
func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("ARCHGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ARCHGATE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	exerciseLocker(t, NewRedisLocker(client, 5*time.Second))
}
