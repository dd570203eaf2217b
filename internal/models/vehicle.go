package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Vehicle struct {
	bun.BaseModel `bun:"table:vehicles"`

	ID          string     `bun:"id,pk" json:"id"`
	Name        string     `bun:"name,notnull" json:"name"`
	Number      string     `bun:"number,notnull,unique" json:"number"`
	Origin      string     `bun:"origin,notnull" json:"origin"`
	Destination string     `bun:"destination,notnull" json:"destination"`
	Features    string     `bun:"features" json:"features,omitempty"`
	StartTime   string     `bun:"start_time" json:"start_time"`
	ReachTime   string     `bun:"reach_time" json:"reach_time"`
	DepartureAt *time.Time `bun:"departure_at" json:"departure_at,omitempty"`
	TotalSeats  int        `bun:"total_seats,notnull" json:"total_seats"`
	PriceCents  int64      `bun:"price_cents,notnull" json:"price_cents"`
	IsActive    bool       `bun:"is_active,notnull" json:"is_active"`
	CreatedAt   time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull" json:"updated_at"`

	Seats []Seat `bun:"rel:has-many,join:id=vehicle_id" json:"-"`
}

type Seat struct {
	bun.BaseModel `bun:"table:seats"`

	ID         string `bun:"id,pk" json:"id"`
	VehicleID  string `bun:"vehicle_id,notnull,unique:seats_vehicle_number" json:"vehicle_id"`
	SeatNumber string `bun:"seat_number,notnull,unique:seats_vehicle_number" json:"seat_number"`
}

// VehicleFilter narrows ListVehicles. Zero fields are ignored.
type VehicleFilter struct {
	Origin      string
	Destination string
	JourneyDate *Date
}

// VehicleAvailability is a catalog row annotated with free seats for a date.
type VehicleAvailability struct {
	Vehicle
	AvailableSeats int `json:"available_seats"`
}

// SeatStatus is one cell of a seat map.
type SeatStatus struct {
	ID         string `json:"id"`
	SeatNumber string `json:"seat_number"`
	IsBooked   bool   `json:"is_booked"`
}

type VehicleDetail struct {
	Vehicle
	JourneyDate    *Date        `json:"journey_date,omitempty"`
	AvailableSeats int          `json:"available_seats"`
	Seats          []SeatStatus `json:"seats"`
}
