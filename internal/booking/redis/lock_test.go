package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/models"
)

// setupTestRedis returns a client backed by an in-memory miniredis server.
func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedis(client, time.Minute), mr
}

var journey = models.MustParseDate("2025-01-10")

func TestLockSeats_AllOrNothing(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(SeatLockKey("bus-1", journey, "seat-2"), "other-request"))

	ok, err := r.LockSeats(ctx, "bus-1", journey, []string{"seat-1", "seat-2", "seat-3"}, "req-1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.False(t, mr.Exists(SeatLockKey("bus-1", journey, "seat-1")), "seat-1 must be released")
	assert.False(t, mr.Exists(SeatLockKey("bus-1", journey, "seat-3")), "seat-3 must never be taken")

	held, err := mr.Get(SeatLockKey("bus-1", journey, "seat-2"))
	require.NoError(t, err)
	assert.Equal(t, "other-request", held)
}

func TestLockSeats_KeyedByDate(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.LockSeats(ctx, "bus-1", journey, []string{"seat-1"}, "req-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.LockSeats(ctx, "bus-1", journey.AddDays(1), []string{"seat-1"}, "req-2")
	require.NoError(t, err)
	assert.True(t, ok, "same seat on another date is a different key")

	ok, err = r.LockSeats(ctx, "bus-1", journey, []string{"seat-1"}, "req-3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnlockSeats_OnlyOwner(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()
	seats := []string{"seat-1", "seat-2"}

	ok, err := r.LockSeats(ctx, "bus-1", journey, seats, "req-1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.UnlockSeats(ctx, "bus-1", journey, seats, "req-2"))
	assert.True(t, mr.Exists(SeatLockKey("bus-1", journey, "seat-1")))

	require.NoError(t, r.UnlockSeats(ctx, "bus-1", journey, seats, "req-1"))
	assert.False(t, mr.Exists(SeatLockKey("bus-1", journey, "seat-1")))
	assert.False(t, mr.Exists(SeatLockKey("bus-1", journey, "seat-2")))

	// unlocking an absent key is fine
	assert.NoError(t, r.UnlockSeats(ctx, "bus-1", journey, seats, "req-1"))
}

func TestLockSeats_Expires(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.LockSeats(ctx, "bus-1", journey, []string{"seat-1"}, "req-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = r.LockSeats(ctx, "bus-1", journey, []string{"seat-1"}, "req-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockSeats_ConcurrentSingleWinner(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()
	seats := []string{"seat-A", "seat-B", "seat-C"}

	const attempts = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// reverse order for half the callers; sorting inside LockSeats keeps it deadlock free
			ids := seats
			if n%2 == 1 {
				ids = []string{"seat-C", "seat-B", "seat-A"}
			}
			ok, err := r.LockSeats(ctx, "bus-1", journey, ids, fmt.Sprintf("req-%d", n))
			if err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "locks are never released here, so exactly one caller can hold them")
}

func TestNewRedisDefaultsTTL(t *testing.T) {
	r := NewRedis(nil, 0)
	assert.Equal(t, DefaultLockTTL, r.TTL)
}
