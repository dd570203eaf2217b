package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/uptrace/bun"

	"ms-reservation/internal/apperr"
	catalogdb "ms-reservation/internal/catalog/db"
	"ms-reservation/internal/database"
	"ms-reservation/internal/models"
)

// DB is the reservation ledger. Every write runs in one transaction that
// locks the rows it decides on.
type DB struct {
	Bun *bun.DB
}

// Reserve writes a new booking and its seat rows. Seats are locked in id
// order, checked against the vehicle, then re-checked for occupancy on the
// journey date before anything is inserted. Either every seat is reserved or
// none is.
func (d *DB) Reserve(ctx context.Context, b *models.Booking, seatIDs []string) error {
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var v models.Vehicle
		err := tx.NewSelect().Model(&v).Where("id = ?", b.VehicleID).Limit(1).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !v.IsActive) {
			return apperr.NotFoundError{Resource: "vehicle", ID: b.VehicleID}
		}
		if err != nil {
			return fmt.Errorf("load vehicle: %w", err)
		}

		seats, err := lockSeats(ctx, tx, seatIDs)
		if err != nil {
			return err
		}
		for _, seat := range seats {
			if seat.VehicleID != b.VehicleID {
				return apperr.ValidationError{
					Field: "seat_ids",
					Msg:   fmt.Sprintf("seat %s does not belong to vehicle %s", seat.SeatNumber, v.Number),
				}
			}
		}

		occupy := b.Status.OccupiesSeats()
		if occupy {
			if err := ensureFree(ctx, tx, b.VehicleID, b.JourneyDate, seats); err != nil {
				return err
			}
			if err := ensureCapacity(ctx, tx, &v, b.JourneyDate, len(seats)); err != nil {
				return err
			}
		}

		if _, err := tx.NewInsert().Model(b).Exec(ctx); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}

		rows := make([]models.BookingSeat, 0, len(seats))
		for i := range seats {
			rows = append(rows, models.BookingSeat{
				BookingID:   b.ID,
				SeatID:      seats[i].ID,
				VehicleID:   b.VehicleID,
				JourneyDate: b.JourneyDate,
				Active:      occupy,
			})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert booking seats: %w", err)
		}

		for i := range rows {
			rows[i].Seat = &seats[i]
		}
		b.Seats = rows
		b.Vehicle = &v
		return nil
	})
	return mapWriteError(err)
}

// Transition locks the booking, hands it to apply, and persists whatever
// status and cancellation fields apply left on it. Returning an error from
// apply rolls back with nothing written. When the new status occupies seats
// and the old one did not, the seats are locked and re-checked against
// occupancy and capacity first.
func (d *DB) Transition(ctx context.Context, bookingID string, apply func(b *models.Booking) error) (*models.Booking, error) {
	var out *models.Booking
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		b, err := lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		prev := b.Status
		if err := apply(b); err != nil {
			return err
		}
		if b.Status == prev {
			out = b
			return nil
		}

		occupy := b.Status.OccupiesSeats()
		if occupy && !prev.OccupiesSeats() {
			seats, err := lockSeats(ctx, tx, b.SeatIDs())
			if err != nil {
				return err
			}
			if err := ensureFree(ctx, tx, b.VehicleID, b.JourneyDate, seats); err != nil {
				return err
			}
			var v models.Vehicle
			if err := tx.NewSelect().Model(&v).Where("id = ?", b.VehicleID).Limit(1).Scan(ctx); err != nil {
				return fmt.Errorf("load vehicle: %w", err)
			}
			if err := ensureCapacity(ctx, tx, &v, b.JourneyDate, len(seats)); err != nil {
				return err
			}
		}

		_, err = tx.NewUpdate().
			Model(b).
			Column("status", "updated_at", "cancelled_at", "cancellation_reason").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update booking %s: %w", b.ID, err)
		}

		if occupy != prev.OccupiesSeats() {
			_, err = tx.NewUpdate().
				Model((*models.BookingSeat)(nil)).
				Set("active = ?", occupy).
				Where("booking_id = ?", b.ID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("update seats of booking %s: %w", b.ID, err)
			}
			for i := range b.Seats {
				b.Seats[i].Active = occupy
			}
		}

		out = b
		return nil
	})
	if err != nil {
		return nil, mapWriteError(err)
	}
	return out, nil
}

func (d *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Relation("Vehicle").
		Relation("Seats", orderedSeats).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundError{Resource: "booking", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}
	return &b, nil
}

func (d *DB) GetBookingIDByOrder(ctx context.Context, orderID string) (string, error) {
	var id string
	err := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Column("id").
		Where("payment_order_id = ?", orderID).
		Limit(1).
		Scan(ctx, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFoundError{Resource: "booking for payment order", ID: orderID}
	}
	if err != nil {
		return "", fmt.Errorf("find booking for order %s: %w", orderID, err)
	}
	return id, nil
}

// ListUserBookings returns the user's bookings newest first. An empty status
// returns all of them.
func (d *DB) ListUserBookings(ctx context.Context, userID string, status models.BookingStatus) ([]models.Booking, error) {
	var bookings []models.Booking
	q := d.Bun.NewSelect().
		Model(&bookings).
		Relation("Vehicle").
		Relation("Seats", orderedSeats).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.booked_at DESC")
	if status != "" {
		q = q.Where("?TableAlias.status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list bookings for %s: %w", userID, err)
	}
	return bookings, nil
}

// DueForCompletion lists confirmed bookings whose journey date is before the given day.
func (d *DB) DueForCompletion(ctx context.Context, before models.Date, limit int) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Column("id").
		Where("status = ?", models.StatusConfirmed).
		Where("journey_date < ?", before).
		OrderExpr("journey_date ASC").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list bookings due for completion: %w", err)
	}
	return ids, nil
}

func orderedSeats(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Relation("Seat").OrderExpr("?TableAlias.id ASC")
}

func lockBooking(ctx context.Context, tx bun.Tx, id string) (*models.Booking, error) {
	var b models.Booking
	q := tx.NewSelect().Model(&b).Where("id = ?", id).Limit(1)
	if database.IsPostgres(tx) {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundError{Resource: "booking", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("lock booking %s: %w", id, err)
	}

	err = tx.NewSelect().
		Model(&b.Seats).
		Relation("Seat").
		Where("?TableAlias.booking_id = ?", b.ID).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seats of booking %s: %w", id, err)
	}
	return &b, nil
}

// lockSeats loads the seat rows in id order so concurrent writers acquire
// row locks in the same sequence. Unknown ids are reported as not found.
func lockSeats(ctx context.Context, tx bun.Tx, seatIDs []string) ([]models.Seat, error) {
	ids := append([]string(nil), seatIDs...)
	sort.Strings(ids)

	var seats []models.Seat
	q := tx.NewSelect().
		Model(&seats).
		Where("id IN (?)", bun.In(ids)).
		OrderExpr("id ASC")
	if database.IsPostgres(tx) {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("lock seats: %w", err)
	}

	if len(seats) != len(ids) {
		found := make(map[string]bool, len(seats))
		for _, s := range seats {
			found[s.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, apperr.NotFoundError{Resource: "seat", ID: id}
			}
		}
	}
	return seats, nil
}

// ensureCapacity fails with a ConflictError when occupying another n seats
// would exceed the vehicle's capacity for the date.
func ensureCapacity(ctx context.Context, tx bun.Tx, v *models.Vehicle, date models.Date, n int) error {
	booked, err := catalogdb.BookedSeatCount(ctx, tx, v.ID, date)
	if err != nil {
		return err
	}
	if booked+n > v.TotalSeats {
		return apperr.ConflictError{Msg: fmt.Sprintf("vehicle %s is full for %s", v.Number, date)}
	}
	return nil
}

// ensureFree fails with a ConflictError naming every seat already occupied
// on the date.
func ensureFree(ctx context.Context, tx bun.Tx, vehicleID string, date models.Date, seats []models.Seat) error {
	ids := make([]string, 0, len(seats))
	for _, s := range seats {
		ids = append(ids, s.ID)
	}

	var taken []string
	err := tx.NewSelect().
		Model((*models.BookingSeat)(nil)).
		Column("seat_id").
		Where("vehicle_id = ?", vehicleID).
		Where("journey_date = ?", date).
		Where("active = ?", true).
		Where("seat_id IN (?)", bun.In(ids)).
		Scan(ctx, &taken)
	if err != nil {
		return fmt.Errorf("check seat occupancy: %w", err)
	}
	if len(taken) == 0 {
		return nil
	}

	isTaken := make(map[string]bool, len(taken))
	for _, id := range taken {
		isTaken[id] = true
	}
	numbers := make([]string, 0, len(taken))
	for _, s := range seats {
		if isTaken[s.ID] {
			numbers = append(numbers, s.SeatNumber)
		}
	}
	sort.Strings(numbers)
	return apperr.ConflictError{SeatNumbers: numbers}
}

// mapWriteError turns a unique index hit at commit time into the error a
// caller can act on. The active seat index is the last line of defense
// behind ensureFree.
func mapWriteError(err error) error {
	if err == nil || !database.IsUniqueViolation(err) {
		return err
	}
	if strings.Contains(err.Error(), "payment_order_id") {
		return apperr.ValidationError{Field: "payment_order_id", Msg: "already used by another booking", Err: err}
	}
	return apperr.ConflictError{Err: err}
}
