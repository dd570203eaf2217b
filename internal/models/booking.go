package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID                 string        `bun:"id,pk" json:"id"`
	UserID             string        `bun:"user_id,notnull" json:"user_id"`
	VehicleID          string        `bun:"vehicle_id,notnull" json:"vehicle_id"`
	JourneyDate        Date          `bun:"journey_date,type:date,notnull" json:"journey_date"`
	Status             BookingStatus `bun:"status,notnull" json:"status"`
	PaymentOrderID     string        `bun:"payment_order_id,nullzero,unique" json:"payment_order_id,omitempty"`
	BookedAt           time.Time     `bun:"booked_at,notnull" json:"booked_at"`
	UpdatedAt          time.Time     `bun:"updated_at,notnull" json:"updated_at"`
	CancelledAt        *time.Time    `bun:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason string        `bun:"cancellation_reason" json:"cancellation_reason,omitempty"`

	Vehicle *Vehicle      `bun:"rel:belongs-to,join:vehicle_id=id" json:"vehicle,omitempty"`
	Seats   []BookingSeat `bun:"rel:has-many,join:id=booking_id" json:"seats"`
}

// SeatIDs lists the seats held by the booking in insertion order.
func (b *Booking) SeatIDs() []string {
	ids := make([]string, 0, len(b.Seats))
	for _, s := range b.Seats {
		ids = append(ids, s.SeatID)
	}
	return ids
}

func (b *Booking) SeatNumbers() []string {
	numbers := make([]string, 0, len(b.Seats))
	for _, s := range b.Seats {
		if s.Seat != nil {
			numbers = append(numbers, s.Seat.SeatNumber)
		}
	}
	return numbers
}

// BookingSeat links a booking to one seat. Active mirrors whether the parent
// booking currently occupies the seat, which lets the store enforce one
// occupant per (vehicle, seat, journey_date) with a partial unique index.
type BookingSeat struct {
	bun.BaseModel `bun:"table:booking_seats"`

	ID          int64  `bun:"id,pk,autoincrement" json:"-"`
	BookingID   string `bun:"booking_id,notnull" json:"-"`
	SeatID      string `bun:"seat_id,notnull" json:"seat_id"`
	VehicleID   string `bun:"vehicle_id,notnull" json:"-"`
	JourneyDate Date   `bun:"journey_date,type:date,notnull" json:"-"`
	Active      bool   `bun:"active,notnull" json:"-"`

	Seat *Seat `bun:"rel:belongs-to,join:seat_id=id" json:"seat,omitempty"`
}

// UserStats is the per-user booking summary.
type UserStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Past      int `json:"past"`
	Cancelled int `json:"cancelled"`
}
