// Package dbtest opens throwaway SQLite databases with the reservation schema.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-reservation/internal/database"
	"ms-reservation/internal/models"
)

// New returns an in-memory database shared by every connection of the pool.
// The pool is capped at one connection so writers queue up the way row locks
// would make them queue on postgres.
func New(t testing.TB) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	if err := database.CreateSchema(context.Background(), db); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

// SeedVehicle inserts an active vehicle with the given seat numbers. Seat ids
// are "<number>-seat-<seatNumber>" so tests can refer to them directly.
func SeedVehicle(t testing.TB, db bun.IDB, number string, totalSeats int, seatNumbers ...string) (*models.Vehicle, []models.Seat) {
	t.Helper()

	now := time.Now().UTC()
	v := &models.Vehicle{
		ID:          uuid.NewString(),
		Name:        "Express " + number,
		Number:      number,
		Origin:      "Colombo",
		Destination: "Kandy",
		StartTime:   "08:00",
		ReachTime:   "11:30",
		TotalSeats:  totalSeats,
		PriceCents:  150000,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ctx := context.Background()
	if _, err := db.NewInsert().Model(v).Exec(ctx); err != nil {
		t.Fatalf("insert vehicle: %v", err)
	}

	seats := make([]models.Seat, 0, len(seatNumbers))
	for _, n := range seatNumbers {
		seats = append(seats, models.Seat{
			ID:         SeatID(number, n),
			VehicleID:  v.ID,
			SeatNumber: n,
		})
	}
	if len(seats) > 0 {
		if _, err := db.NewInsert().Model(&seats).Exec(ctx); err != nil {
			t.Fatalf("insert seats: %v", err)
		}
	}
	return v, seats
}

func SeatID(vehicleNumber, seatNumber string) string {
	return vehicleNumber + "-seat-" + seatNumber
}

// InsertBooking writes a booking directly, bypassing the service rules. Useful
// for arranging history such as past journeys.
func InsertBooking(t testing.TB, db bun.IDB, userID, vehicleID string, date models.Date, status models.BookingStatus, seatIDs ...string) *models.Booking {
	t.Helper()

	now := time.Now().UTC()
	b := &models.Booking{
		ID:          uuid.NewString(),
		UserID:      userID,
		VehicleID:   vehicleID,
		JourneyDate: date,
		Status:      status,
		BookedAt:    now,
		UpdatedAt:   now,
	}
	if status == models.StatusCancelled {
		b.CancelledAt = &now
		b.CancellationReason = "Cancelled by user"
	}

	ctx := context.Background()
	if _, err := db.NewInsert().Model(b).Exec(ctx); err != nil {
		t.Fatalf("insert booking: %v", err)
	}
	for _, seatID := range seatIDs {
		bs := &models.BookingSeat{
			BookingID:   b.ID,
			SeatID:      seatID,
			VehicleID:   vehicleID,
			JourneyDate: date,
			Active:      status.OccupiesSeats(),
		}
		if _, err := db.NewInsert().Model(bs).Exec(ctx); err != nil {
			t.Fatalf("insert booking seat: %v", err)
		}
		b.Seats = append(b.Seats, *bs)
	}
	return b
}
