package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/models"
)

type DB struct {
	Bun *bun.DB
}

type bookedCount struct {
	VehicleID string `bun:"vehicle_id"`
	Booked    int    `bun:"booked"`
}

func (d *DB) conn(idb bun.IDB) bun.IDB {
	if idb != nil {
		return idb
	}
	return d.Bun
}

func (d *DB) GetVehicle(ctx context.Context, idb bun.IDB, id string) (*models.Vehicle, error) {
	var v models.Vehicle
	err := d.conn(idb).NewSelect().Model(&v).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundError{Resource: "vehicle", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle %s: %w", id, err)
	}
	return &v, nil
}

// BookedSeatCount counts seats occupied on the vehicle for the date.
func BookedSeatCount(ctx context.Context, idb bun.IDB, vehicleID string, date models.Date) (int, error) {
	n, err := idb.NewSelect().
		Model((*models.BookingSeat)(nil)).
		Where("vehicle_id = ?", vehicleID).
		Where("journey_date = ?", date).
		Where("active = ?", true).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count booked seats for %s on %s: %w", vehicleID, date, err)
	}
	return n, nil
}

// AvailableSeats computes capacity minus occupied seats. Pass the caller's
// transaction as idb to read inside it; nil uses the pool.
func (d *DB) AvailableSeats(ctx context.Context, idb bun.IDB, vehicleID string, date models.Date) (int, error) {
	conn := d.conn(idb)
	v, err := d.GetVehicle(ctx, conn, vehicleID)
	if err != nil {
		return 0, err
	}
	booked, err := BookedSeatCount(ctx, conn, vehicleID, date)
	if err != nil {
		return 0, err
	}
	return available(v.TotalSeats, booked), nil
}

const likeEscape = "!"

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern builds a LIKE pattern matching needle as a literal,
// lowercased substring. SQLite's LOWER folds ASCII only, so non-ASCII
// letters match case-insensitively on postgres alone.
func containsPattern(needle string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(needle)) + "%"
}

func (d *DB) ListVehicles(ctx context.Context, filter models.VehicleFilter) ([]models.VehicleAvailability, error) {
	var vehicles []models.Vehicle
	q := d.Bun.NewSelect().
		Model(&vehicles).
		Where("is_active = ?", true).
		OrderExpr("start_time ASC, number ASC")
	if origin := strings.TrimSpace(filter.Origin); origin != "" {
		q = q.Where("LOWER(origin) LIKE ? ESCAPE ?", containsPattern(origin), likeEscape)
	}
	if dest := strings.TrimSpace(filter.Destination); dest != "" {
		q = q.Where("LOWER(destination) LIKE ? ESCAPE ?", containsPattern(dest), likeEscape)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}

	out := make([]models.VehicleAvailability, 0, len(vehicles))
	if filter.JourneyDate == nil {
		for _, v := range vehicles {
			out = append(out, models.VehicleAvailability{Vehicle: v, AvailableSeats: v.TotalSeats})
		}
		return out, nil
	}
	if len(vehicles) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(vehicles))
	for _, v := range vehicles {
		ids = append(ids, v.ID)
	}

	var counts []bookedCount
	err := d.Bun.NewSelect().
		Model((*models.BookingSeat)(nil)).
		Column("vehicle_id").
		ColumnExpr("COUNT(*) AS booked").
		Where("vehicle_id IN (?)", bun.In(ids)).
		Where("journey_date = ?", *filter.JourneyDate).
		Where("active = ?", true).
		Group("vehicle_id").
		Scan(ctx, &counts)
	if err != nil {
		return nil, fmt.Errorf("aggregate booked seats: %w", err)
	}

	booked := make(map[string]int, len(counts))
	for _, c := range counts {
		booked[c.VehicleID] = c.Booked
	}

	for _, v := range vehicles {
		free := available(v.TotalSeats, booked[v.ID])
		if free == 0 {
			continue
		}
		out = append(out, models.VehicleAvailability{Vehicle: v, AvailableSeats: free})
	}
	return out, nil
}

// SeatMap returns the vehicle's seats ordered by number, with the ids of the
// seats occupied on date. A nil date yields no occupied seats.
func (d *DB) SeatMap(ctx context.Context, vehicleID string, date *models.Date) ([]models.Seat, map[string]bool, error) {
	var seats []models.Seat
	err := d.Bun.NewSelect().
		Model(&seats).
		Where("vehicle_id = ?", vehicleID).
		OrderExpr("seat_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list seats for %s: %w", vehicleID, err)
	}

	taken := make(map[string]bool)
	if date == nil {
		return seats, taken, nil
	}

	var seatIDs []string
	err = d.Bun.NewSelect().
		Model((*models.BookingSeat)(nil)).
		Column("seat_id").
		Where("vehicle_id = ?", vehicleID).
		Where("journey_date = ?", *date).
		Where("active = ?", true).
		Scan(ctx, &seatIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("list occupied seats for %s: %w", vehicleID, err)
	}
	for _, id := range seatIDs {
		taken[id] = true
	}
	return seats, taken, nil
}

// CreateVehicle inserts a vehicle and its seats in one transaction.
func (d *DB) CreateVehicle(ctx context.Context, v *models.Vehicle, seats []models.Seat) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(v).Exec(ctx); err != nil {
			return fmt.Errorf("insert vehicle %s: %w", v.Number, err)
		}
		if len(seats) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&seats).Exec(ctx); err != nil {
			return fmt.Errorf("insert seats for %s: %w", v.Number, err)
		}
		return nil
	})
}

func (d *DB) VehicleNumberExists(ctx context.Context, number string) (bool, error) {
	return d.Bun.NewSelect().Model((*models.Vehicle)(nil)).Where("number = ?", number).Exists(ctx)
}

func available(total, booked int) int {
	if free := total - booked; free > 0 {
		return free
	}
	return 0
}
