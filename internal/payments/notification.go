package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

const (
	StatusPaid   = "paid"
	StatusFailed = "failed"
)

// Notification is what the payment gateway reports for an order. It may be
// delivered any number of times.
type Notification struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (n Notification) Validate() error {
	if strings.TrimSpace(n.OrderID) == "" {
		return apperr.ValidationError{Field: "order_id", Msg: "is required"}
	}
	switch n.Status {
	case StatusPaid, StatusFailed:
		return nil
	default:
		return apperr.ValidationError{Field: "status", Msg: fmt.Sprintf("must be %q or %q", StatusPaid, StatusFailed)}
	}
}

// Confirmer is implemented by booking.BookingService.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, orderID string) (*models.Booking, error)
	FailPayment(ctx context.Context, orderID string) (*models.Booking, error)
}

type Processor struct {
	Bookings Confirmer
	Logger   *logger.Logger
}

func NewProcessor(bookings Confirmer, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Discard()
	}
	return &Processor{Bookings: bookings, Logger: log}
}

// Apply moves the booking behind the order. It returns the booking, or nil when
// no booking carries the order id.
func (p *Processor) Apply(ctx context.Context, n Notification) (*models.Booking, error) {
	n.Status = strings.ToLower(strings.TrimSpace(n.Status))
	if err := n.Validate(); err != nil {
		return nil, err
	}

	p.Logger.Info("PAYMENT", fmt.Sprintf("Order %s reported %s", n.OrderID, n.Status))
	if n.Status == StatusPaid {
		return p.Bookings.ConfirmPayment(ctx, n.OrderID)
	}
	return p.Bookings.FailPayment(ctx, n.OrderID)
}

// HandleMessage is the kafka consumer handler. Malformed messages and business
// outcomes such as a seat conflict are acknowledged; only internal failures are
// returned so the consumer retries them.
func (p *Processor) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var n Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		p.Logger.Warn("PAYMENT", fmt.Sprintf("Dropping malformed notification at offset %d: %v", msg.Offset, err))
		return nil
	}

	_, err := p.Apply(ctx, n)
	if err == nil {
		return nil
	}
	if status, _ := apperr.HTTPStatus(err); status < 500 {
		p.Logger.Warn("PAYMENT", fmt.Sprintf("Notification for order %s not applied: %v", n.OrderID, err))
		return nil
	}
	return err
}
