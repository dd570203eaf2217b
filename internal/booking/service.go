package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

const (
	DefaultCancelReason   = "Cancelled by user"
	ReasonPaymentFailed   = "payment failed"
	ReasonSeatUnavailable = "seat no longer available"
)

type Ledger interface {
	Reserve(ctx context.Context, b *models.Booking, seatIDs []string) error
	Transition(ctx context.Context, bookingID string, apply func(b *models.Booking) error) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBookingIDByOrder(ctx context.Context, orderID string) (string, error)
	ListUserBookings(ctx context.Context, userID string, status models.BookingStatus) ([]models.Booking, error)
	DueForCompletion(ctx context.Context, before models.Date, limit int) ([]string, error)
}

// SeatGate is an optional cross-process lock taken before the ledger
// transaction. The ledger stays correct without it.
type SeatGate interface {
	LockSeats(ctx context.Context, vehicleID string, date models.Date, seatIDs []string, owner string) (bool, error)
	UnlockSeats(ctx context.Context, vehicleID string, date models.Date, seatIDs []string, owner string) error
}

type Options struct {
	// Location decides which calendar day "today" is.
	Location *time.Location
	// PaymentFirst makes bookings that carry a payment order start pending.
	PaymentFirst bool
	EventsTopic  string
	Now          func() time.Time
}

type CreateBookingInput struct {
	UserID         string   `json:"-"`
	VehicleID      string   `json:"vehicle_id"`
	SeatIDs        []string `json:"seat_ids"`
	JourneyDate    string   `json:"journey_date"`
	PaymentOrderID string   `json:"payment_order_id,omitempty"`
}

// BookingService is the only writer of booking state.
type BookingService struct {
	DB     Ledger
	Gate   SeatGate
	Events EventPublisher
	Logger *logger.Logger

	loc          *time.Location
	paymentFirst bool
	topic        string
	now          func() time.Time
}

func NewBookingService(db Ledger, gate SeatGate, events EventPublisher, log *logger.Logger, opts Options) *BookingService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EventsTopic == "" {
		opts.EventsTopic = "reservation.bookings"
	}
	if log == nil {
		log = logger.Discard()
	}
	return &BookingService{
		DB:           db,
		Gate:         gate,
		Events:       events,
		Logger:       log,
		loc:          opts.Location,
		paymentFirst: opts.PaymentFirst,
		topic:        opts.EventsTopic,
		now:          opts.Now,
	}
}

// Today is the current calendar day in the configured zone.
func (s *BookingService) Today() models.Date {
	return models.DateOf(s.now().In(s.loc))
}

func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*models.Booking, error) {
	date, seatIDs, err := s.validateCreate(in)
	if err != nil {
		s.Logger.Warn("BOOKING", fmt.Sprintf("CreateBooking rejected for user %s: %v", in.UserID, err))
		return nil, err
	}

	now := s.now().UTC()
	b := &models.Booking{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		VehicleID:      in.VehicleID,
		JourneyDate:    date,
		Status:         models.StatusConfirmed,
		PaymentOrderID: strings.TrimSpace(in.PaymentOrderID),
		BookedAt:       now,
		UpdatedAt:      now,
	}
	if s.paymentFirst && b.PaymentOrderID != "" {
		b.Status = models.StatusPending
	}

	if s.Gate != nil {
		ok, err := s.Gate.LockSeats(ctx, b.VehicleID, date, seatIDs, b.ID)
		switch {
		case err != nil:
			s.Logger.Warn("REDIS", fmt.Sprintf("Seat gate unavailable, relying on database locks: %v", err))
		case !ok:
			s.Logger.Info("BOOKING", fmt.Sprintf("Seats %v on %s are being reserved by another request", seatIDs, date))
			return nil, apperr.ConflictError{Msg: "seat is being reserved by another request"}
		default:
			defer func() {
				if err := s.Gate.UnlockSeats(context.WithoutCancel(ctx), b.VehicleID, date, seatIDs, b.ID); err != nil {
					s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release seat gate for %s: %v", b.ID, err))
				}
			}()
		}
	}

	if err := s.DB.Reserve(ctx, b, seatIDs); err != nil {
		s.Logger.Warn("BOOKING", fmt.Sprintf("Reserve failed for vehicle %s on %s: %v", b.VehicleID, date, err))
		return nil, classify("create booking", err)
	}

	s.Logger.LogBooking("CREATE", b.ID, fmt.Sprintf("%s %d seat(s) on %s for %s", b.Status, len(seatIDs), date, b.UserID))
	s.publish(ctx, EventBookingCreated, b)
	return b, nil
}

func (s *BookingService) validateCreate(in CreateBookingInput) (models.Date, []string, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return models.Date{}, nil, apperr.ValidationError{Field: "user_id", Msg: "is required"}
	}
	if strings.TrimSpace(in.VehicleID) == "" {
		return models.Date{}, nil, apperr.ValidationError{Field: "vehicle_id", Msg: "is required"}
	}
	if len(in.SeatIDs) == 0 {
		return models.Date{}, nil, apperr.ValidationError{Field: "seat_ids", Msg: "at least one seat is required"}
	}

	seen := make(map[string]bool, len(in.SeatIDs))
	seatIDs := make([]string, 0, len(in.SeatIDs))
	for _, id := range in.SeatIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return models.Date{}, nil, apperr.ValidationError{Field: "seat_ids", Msg: "seat id must not be empty"}
		}
		if seen[id] {
			return models.Date{}, nil, apperr.ValidationError{Field: "seat_ids", Msg: fmt.Sprintf("seat %s requested twice", id)}
		}
		seen[id] = true
		seatIDs = append(seatIDs, id)
	}

	if strings.TrimSpace(in.JourneyDate) == "" {
		return models.Date{}, nil, apperr.ValidationError{Field: "journey_date", Msg: "is required"}
	}
	date, err := models.ParseDate(strings.TrimSpace(in.JourneyDate))
	if err != nil {
		return models.Date{}, nil, apperr.ValidationError{Field: "journey_date", Msg: err.Error()}
	}
	if date.Before(s.Today()) {
		return models.Date{}, nil, apperr.ValidationError{Field: "journey_date", Msg: "must not be in the past"}
	}
	return date, seatIDs, nil
}

func (s *BookingService) CancelBooking(ctx context.Context, bookingID, actingUserID, reason string) (*models.Booking, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}

	b, err := s.DB.Transition(ctx, bookingID, func(b *models.Booking) error {
		if b.UserID != actingUserID {
			return apperr.AuthorizationError{Msg: "booking belongs to another user"}
		}
		return s.move(b, models.StatusCancelled, reason, "booking cannot be cancelled")
	})
	if err != nil {
		s.Logger.Warn("BOOKING", fmt.Sprintf("CancelBooking %s by %s failed: %v", bookingID, actingUserID, err))
		return nil, classify("cancel booking", err)
	}

	s.Logger.LogBooking("CANCEL", b.ID, reason)
	s.publish(ctx, EventBookingCancelled, b)
	return b, nil
}

// CompleteBooking marks the journey as consumed. Completed bookings no longer
// hold their seats.
func (s *BookingService) CompleteBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := s.DB.Transition(ctx, bookingID, func(b *models.Booking) error {
		return s.move(b, models.StatusCompleted, "", "booking cannot be completed")
	})
	if err != nil {
		return nil, classify("complete booking", err)
	}

	s.Logger.LogBooking("COMPLETE", b.ID, fmt.Sprintf("journey %s", b.JourneyDate))
	s.publish(ctx, EventBookingCompleted, b)
	return b, nil
}

// ConfirmPayment applies a "paid" notification. It is safe to call any number
// of times: only a pending booking changes, and an unknown order is ignored.
// If the seats were taken while the booking waited for payment, the booking
// is cancelled and a ConflictError returned.
func (s *BookingService) ConfirmPayment(ctx context.Context, orderID string) (*models.Booking, error) {
	id, err := s.bookingForOrder(ctx, orderID)
	if err != nil || id == "" {
		return nil, err
	}

	changed := false
	b, err := s.DB.Transition(ctx, id, func(b *models.Booking) error {
		if b.Status != models.StatusPending {
			return nil
		}
		changed = true
		return s.move(b, models.StatusConfirmed, "", "")
	})
	if apperr.IsConflict(err) {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Order %s paid but seats of booking %s were taken", orderID, id))
		if _, cerr := s.releasePending(ctx, id, ReasonSeatUnavailable); cerr != nil {
			s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to cancel booking %s after seat conflict: %v", id, cerr))
		}
		return nil, err
	}
	if err != nil {
		return nil, classify("confirm payment", err)
	}

	if changed {
		s.Logger.LogBooking("CONFIRM", b.ID, fmt.Sprintf("payment order %s", orderID))
		s.publish(ctx, EventBookingConfirmed, b)
	} else {
		s.Logger.Info("PAYMENT", fmt.Sprintf("Order %s already applied, booking %s is %s", orderID, b.ID, b.Status))
	}
	return b, nil
}

// FailPayment cancels a booking still waiting for payment. Any other state is left alone.
func (s *BookingService) FailPayment(ctx context.Context, orderID string) (*models.Booking, error) {
	id, err := s.bookingForOrder(ctx, orderID)
	if err != nil || id == "" {
		return nil, err
	}
	return s.releasePending(ctx, id, ReasonPaymentFailed)
}

func (s *BookingService) releasePending(ctx context.Context, id, reason string) (*models.Booking, error) {
	changed := false
	b, err := s.DB.Transition(ctx, id, func(b *models.Booking) error {
		if b.Status != models.StatusPending {
			return nil
		}
		changed = true
		return s.move(b, models.StatusCancelled, reason, "")
	})
	if err != nil {
		return nil, classify("cancel pending booking", err)
	}
	if changed {
		s.Logger.LogBooking("CANCEL", b.ID, reason)
		s.publish(ctx, EventBookingCancelled, b)
	}
	return b, nil
}

func (s *BookingService) bookingForOrder(ctx context.Context, orderID string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", apperr.ValidationError{Field: "order_id", Msg: "is required"}
	}
	id, err := s.DB.GetBookingIDByOrder(ctx, orderID)
	if apperr.IsNotFound(err) {
		s.Logger.Info("PAYMENT", fmt.Sprintf("No booking for payment order %s, ignoring", orderID))
		return "", nil
	}
	if err != nil {
		return "", classify("find booking by order", err)
	}
	return id, nil
}

// GetBooking returns the booking if actingUserID owns it.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, actingUserID string) (*models.Booking, error) {
	b, err := s.DB.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, classify("get booking", err)
	}
	if b.UserID != actingUserID {
		return nil, apperr.AuthorizationError{Msg: "booking belongs to another user"}
	}
	return b, nil
}

func (s *BookingService) ListUserBookings(ctx context.Context, userID, status string) ([]models.Booking, error) {
	st := models.BookingStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return nil, apperr.ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", status)}
	}
	bookings, err := s.DB.ListUserBookings(ctx, userID, st)
	if err != nil {
		return nil, classify("list bookings", err)
	}
	return bookings, nil
}

// DueForCompletion lists confirmed bookings whose journey day has passed.
func (s *BookingService) DueForCompletion(ctx context.Context, limit int) ([]string, error) {
	ids, err := s.DB.DueForCompletion(ctx, s.Today(), limit)
	if err != nil {
		return nil, classify("list due bookings", err)
	}
	return ids, nil
}

// move applies one state machine step to b in memory.
func (s *BookingService) move(b *models.Booking, to models.BookingStatus, reason, refusal string) error {
	res := models.Transition(b.Status, to)
	if !res.OK() {
		return apperr.IllegalStateError{From: string(res.From), To: string(res.To), Msg: refusal}
	}

	now := s.now().UTC()
	b.Status = to
	b.UpdatedAt = now
	if to == models.StatusCancelled {
		b.CancelledAt = &now
		b.CancellationReason = reason
	}
	return nil
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *models.Booking) {
	if s.Events == nil {
		return
	}
	payload, err := json.Marshal(NewEvent(eventType, b, s.now()))
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to encode %s for %s: %v", eventType, b.ID, err))
		return
	}
	if err := s.Events.Publish(context.WithoutCancel(ctx), s.topic, b.ID, payload); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", eventType, b.ID, err))
		return
	}
	s.Logger.LogKafka("PUBLISH", s.topic, fmt.Sprintf("%s %s", eventType, b.ID))
}

// classify keeps taxonomy errors as they are and wraps anything else as internal.
func classify(op string, err error) error {
	if apperr.IsValidation(err) || apperr.IsConflict(err) || apperr.IsNotFound(err) ||
		apperr.IsAuthorization(err) || apperr.IsIllegalState(err) {
		return err
	}
	return apperr.Internal(op, err)
}
