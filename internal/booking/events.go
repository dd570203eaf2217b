package booking

import (
	"context"
	"time"

	"ms-reservation/internal/models"
)

const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCompleted = "booking.completed"
)

// EventPublisher is satisfied by the kafka producer.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Event is the message written to the booking events topic, keyed by booking id.
type Event struct {
	Type               string               `json:"type"`
	BookingID          string               `json:"booking_id"`
	UserID             string               `json:"user_id"`
	VehicleID          string               `json:"vehicle_id"`
	JourneyDate        models.Date          `json:"journey_date"`
	Status             models.BookingStatus `json:"status"`
	SeatIDs            []string             `json:"seat_ids"`
	PaymentOrderID     string               `json:"payment_order_id,omitempty"`
	CancellationReason string               `json:"cancellation_reason,omitempty"`
	OccurredAt         time.Time            `json:"occurred_at"`
}

func NewEvent(eventType string, b *models.Booking, at time.Time) Event {
	return Event{
		Type:               eventType,
		BookingID:          b.ID,
		UserID:             b.UserID,
		VehicleID:          b.VehicleID,
		JourneyDate:        b.JourneyDate,
		Status:             b.Status,
		SeatIDs:            b.SeatIDs(),
		PaymentOrderID:     b.PaymentOrderID,
		CancellationReason: b.CancellationReason,
		OccurredAt:         at.UTC(),
	}
}
