package booking_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/booking"
	"ms-reservation/internal/booking/db"
	bookingredis "ms-reservation/internal/booking/redis"
	"ms-reservation/internal/config"
	"ms-reservation/internal/database"
	"ms-reservation/internal/database/dbtest"
	"ms-reservation/internal/database/migrations"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest) (testcontainers.Container, string) {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("container runtime unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	require.NoError(t, err)
	return c, fmt.Sprintf("%s:%s", host, port.Port())
}

func startPostgres(t *testing.T) *bun.DB {
	t.Helper()
	_, addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "reservation",
			"POSTGRES_PASSWORD": "reservation",
			"POSTGRES_DB":       "reservation",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	})

	cfg := config.Default().Database
	cfg.DSN = fmt.Sprintf("postgres://reservation:reservation@%s/reservation?sslmode=disable", addr)
	bunDB, err := database.Connect(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	require.NoError(t, migrations.NewRunner(bunDB, "../../migrations", logger.Discard()).Up())
	return bunDB
}

func TestPostgresSeatContention(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	bunDB := startPostgres(t)
	require.True(t, database.IsPostgres(bunDB))

	v, seats := dbtest.SeedVehicle(t, bunDB, "PG-1", 40, "A1", "A2", "A3")
	svc := booking.NewBookingService(&db.DB{Bun: bunDB}, nil, nil, nil, booking.Options{
		Now: func() time.Time { return fixedNow },
	})

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// overlapping requests in both seat orders
			ids := []string{seats[0].ID, seats[1].ID}
			if i%2 == 1 {
				ids = []string{seats[1].ID, seats[0].ID}
			}
			_, errs[i] = svc.CreateBooking(context.Background(), booking.CreateBookingInput{
				UserID: fmt.Sprintf("user-%d", i), VehicleID: v.ID, SeatIDs: ids, JourneyDate: journey,
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperr.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)

	active, err := bunDB.NewSelect().Model((*models.BookingSeat)(nil)).Where("active").Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, active)
}

func TestPostgresActiveSeatIndex(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	bunDB := startPostgres(t)
	ctx := context.Background()

	v, seats := dbtest.SeedVehicle(t, bunDB, "PG-2", 10, "A1")
	date := models.MustParseDate(journey)
	first := dbtest.InsertBooking(t, bunDB, "alice", v.ID, date, models.StatusConfirmed, seats[0].ID)
	second := dbtest.InsertBooking(t, bunDB, "bob", v.ID, date, models.StatusCancelled, seats[0].ID)
	require.NotEqual(t, first.ID, second.ID)

	// activating the cancelled booking's seat must hit the partial unique index
	_, err := bunDB.NewUpdate().
		Model((*models.BookingSeat)(nil)).
		Set("active = ?", true).
		Where("booking_id = ?", second.ID).
		Exec(ctx)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	// a different date is a different slot
	other := &models.BookingSeat{
		BookingID: second.ID, SeatID: seats[0].ID, VehicleID: v.ID,
		JourneyDate: date.AddDays(1), Active: true,
	}
	_, err = bunDB.NewInsert().Model(other).Exec(ctx)
	assert.NoError(t, err)
}

func TestRedisGateIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}
	_, addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	})
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	gate := bookingredis.NewRedis(client, time.Minute)
	ctx := context.Background()
	date := models.MustParseDate(journey)
	seatIDs := []string{"s1", "s2", "s3"}
	owner, other := uuid.NewString(), uuid.NewString()

	locked, err := gate.LockSeats(ctx, "v-1", date, seatIDs, owner)
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = gate.LockSeats(ctx, "v-1", date, []string{"s3", "s4"}, other)
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Equal(t, int64(0), client.Exists(ctx, bookingredis.SeatLockKey("v-1", date, "s4")).Val(), "partial lock released")

	require.NoError(t, gate.UnlockSeats(ctx, "v-1", date, seatIDs, owner))
	locked, err = gate.LockSeats(ctx, "v-1", date, []string{"s3", "s4"}, other)
	require.NoError(t, err)
	assert.True(t, locked)
}
