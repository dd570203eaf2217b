package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/models"
)

type Store interface {
	GetVehicle(ctx context.Context, idb bun.IDB, id string) (*models.Vehicle, error)
	AvailableSeats(ctx context.Context, idb bun.IDB, vehicleID string, date models.Date) (int, error)
	ListVehicles(ctx context.Context, filter models.VehicleFilter) ([]models.VehicleAvailability, error)
	SeatMap(ctx context.Context, vehicleID string, date *models.Date) ([]models.Seat, map[string]bool, error)
	CreateVehicle(ctx context.Context, v *models.Vehicle, seats []models.Seat) error
	VehicleNumberExists(ctx context.Context, number string) (bool, error)
}

// Service answers availability questions. It never writes booking state and
// never caches counts between calls.
type Service struct {
	DB  Store
	now func() time.Time
}

func NewService(store Store) *Service {
	return &Service{DB: store, now: time.Now}
}

func (s *Service) AvailableSeats(ctx context.Context, vehicleID string, date models.Date) (int, error) {
	return s.DB.AvailableSeats(ctx, nil, vehicleID, date)
}

func (s *Service) IsFull(ctx context.Context, vehicleID string, date models.Date) (bool, error) {
	free, err := s.AvailableSeats(ctx, vehicleID, date)
	if err != nil {
		return false, err
	}
	return free == 0, nil
}

func (s *Service) ListVehicles(ctx context.Context, filter models.VehicleFilter) ([]models.VehicleAvailability, error) {
	return s.DB.ListVehicles(ctx, filter)
}

// GetVehicle returns an active vehicle with its seat map for the date.
func (s *Service) GetVehicle(ctx context.Context, id string, date *models.Date) (*models.VehicleDetail, error) {
	v, err := s.DB.GetVehicle(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if !v.IsActive {
		return nil, apperr.NotFoundError{Resource: "vehicle", ID: id}
	}

	seats, taken, err := s.DB.SeatMap(ctx, id, date)
	if err != nil {
		return nil, err
	}

	detail := &models.VehicleDetail{
		Vehicle:        *v,
		JourneyDate:    date,
		AvailableSeats: v.TotalSeats - len(taken),
		Seats:          make([]models.SeatStatus, 0, len(seats)),
	}
	if detail.AvailableSeats < 0 {
		detail.AvailableSeats = 0
	}
	for _, seat := range seats {
		detail.Seats = append(detail.Seats, models.SeatStatus{
			ID:         seat.ID,
			SeatNumber: seat.SeatNumber,
			IsBooked:   taken[seat.ID],
		})
	}
	return detail, nil
}

type NewVehicle struct {
	Name        string
	Number      string
	Origin      string
	Destination string
	Features    string
	StartTime   string
	ReachTime   string
	DepartureAt *time.Time
	TotalSeats  int
	PriceCents  int64
	SeatNumbers []string
}

// CreateVehicle registers a vehicle with its seats. Capacity is fixed here;
// there is no update path once seats exist.
func (s *Service) CreateVehicle(ctx context.Context, in NewVehicle) (*models.Vehicle, error) {
	if strings.TrimSpace(in.Number) == "" {
		return nil, apperr.ValidationError{Field: "number", Msg: "is required"}
	}
	if in.TotalSeats < 0 {
		return nil, apperr.ValidationError{Field: "total_seats", Msg: "must not be negative"}
	}
	if len(in.SeatNumbers) > in.TotalSeats {
		return nil, apperr.ValidationError{
			Field: "seats",
			Msg:   fmt.Sprintf("%d seats exceed capacity %d", len(in.SeatNumbers), in.TotalSeats),
		}
	}

	exists, err := s.DB.VehicleNumberExists(ctx, in.Number)
	if err != nil {
		return nil, apperr.Internal("check vehicle number", err)
	}
	if exists {
		return nil, apperr.ValidationError{Field: "number", Msg: fmt.Sprintf("vehicle %s already exists", in.Number)}
	}

	now := s.now().UTC()
	v := &models.Vehicle{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Number:      in.Number,
		Origin:      in.Origin,
		Destination: in.Destination,
		Features:    in.Features,
		StartTime:   in.StartTime,
		ReachTime:   in.ReachTime,
		DepartureAt: in.DepartureAt,
		TotalSeats:  in.TotalSeats,
		PriceCents:  in.PriceCents,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	seen := make(map[string]bool, len(in.SeatNumbers))
	seats := make([]models.Seat, 0, len(in.SeatNumbers))
	for _, n := range in.SeatNumbers {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			return nil, apperr.ValidationError{Field: "seats", Msg: fmt.Sprintf("invalid or duplicate seat number %q", n)}
		}
		seen[n] = true
		seats = append(seats, models.Seat{ID: uuid.NewString(), VehicleID: v.ID, SeatNumber: n})
	}

	if err := s.DB.CreateVehicle(ctx, v, seats); err != nil {
		return nil, apperr.Internal("create vehicle", err)
	}
	return v, nil
}
