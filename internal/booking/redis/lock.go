package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-reservation/internal/models"
)

const DefaultLockTTL = 30 * time.Second

// unlockScript deletes the key only while it still holds the caller's token,
// so an expired lock that someone else re-acquired is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a short-lived gate in front of the booking transaction. It keeps
// concurrent requests for the same seat and date from piling up on the
// database; the database remains the source of truth.
type Redis struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Redis{Client: client, TTL: ttl}
}

func SeatLockKey(vehicleID string, date models.Date, seatID string) string {
	return fmt.Sprintf("seat_lock:%s:%s:%s", vehicleID, date, seatID)
}

func (r *Redis) lockSeat(ctx context.Context, key, owner string) (bool, error) {
	return r.Client.SetNX(ctx, key, owner, r.TTL).Result()
}

func (r *Redis) unlockSeat(ctx context.Context, key, owner string) error {
	err := unlockScript.Run(ctx, r.Client, []string{key}, owner).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

// LockSeats takes every seat or none. Seats are locked in id order; on the
// first miss the ones already taken are released.
func (r *Redis) LockSeats(ctx context.Context, vehicleID string, date models.Date, seatIDs []string, owner string) (bool, error) {
	ids := append([]string(nil), seatIDs...)
	sort.Strings(ids)

	locked := make([]string, 0, len(ids))
	release := func() {
		for _, key := range locked {
			_ = r.unlockSeat(ctx, key, owner)
		}
	}

	for _, seatID := range ids {
		key := SeatLockKey(vehicleID, date, seatID)
		ok, err := r.lockSeat(ctx, key, owner)
		if err != nil {
			release()
			return false, err
		}
		if !ok {
			release()
			return false, nil
		}
		locked = append(locked, key)
	}
	return true, nil
}

func (r *Redis) UnlockSeats(ctx context.Context, vehicleID string, date models.Date, seatIDs []string, owner string) error {
	var firstErr error
	for _, seatID := range seatIDs {
		if err := r.unlockSeat(ctx, SeatLockKey(vehicleID, date, seatID), owner); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
