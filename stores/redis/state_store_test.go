package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration, opts ...Option) (*StateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStateStore(client, ttl, opts...), mr
}

func TestStateStore_SingleUse(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, time.Minute)

	state, err := store.CreateState(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists(DefaultKeyPrefix+state))
	assert.Equal(t, time.Minute, mr.TTL(DefaultKeyPrefix+state))

	assert.True(t, store.ValidateAndConsume(ctx, state))
	assert.False(t, store.ValidateAndConsume(ctx, state))
	assert.False(t, mr.Exists(DefaultKeyPrefix+state))
}

func TestStateStore_UnknownAndEmpty(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	assert.False(t, store.ValidateAndConsume(context.Background(), "never-issued"))
	assert.False(t, store.ValidateAndConsume(context.Background(), ""))
}

func TestStateStore_KeyExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, time.Minute)

	state, err := store.CreateState(ctx)
	require.NoError(t, err)
	mr.FastForward(time.Minute + time.Second)
	assert.False(t, store.ValidateAndConsume(ctx, state))
}

func TestStateStore_AgeCheckedOnConsume(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	store, _ := newTestStore(t, time.Minute, WithClock(clock))

	// The key survives in Redis but the recorded creation time is too old.
	state, err := store.CreateState(ctx)
	require.NoError(t, err)
	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	assert.False(t, store.ValidateAndConsume(ctx, state))

	fresh, err := store.CreateState(ctx)
	require.NoError(t, err)
	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()
	assert.True(t, store.ValidateAndConsume(ctx, fresh), "exactly TTL old is still valid")
}

func TestStateStore_KeyPrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, time.Minute, WithKeyPrefix("app1:"))

	state, err := store.CreateState(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists("app1:"+state))
}

func TestStateStore_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, time.Minute)
	state, err := store.CreateState(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.ValidateAndConsume(ctx, state) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestStateStore_RedisDown(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, time.Minute)
	state, err := store.CreateState(ctx)
	require.NoError(t, err)

	mr.Close()
	assert.False(t, store.ValidateAndConsume(ctx, state))
	_, err = store.CreateState(ctx)
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = NewClient(context.Background(), Config{Addr: mr.Addr(), DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
