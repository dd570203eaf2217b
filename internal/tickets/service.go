package tickets

import (
	"context"
	"fmt"
	"time"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/tickets/pdf"
	"ms-reservation/internal/tickets/qr"
)

// BookingReader is satisfied by booking.BookingService; it enforces ownership.
type BookingReader interface {
	GetBooking(ctx context.Context, bookingID, actingUserID string) (*models.Booking, error)
}

type Service struct {
	Bookings BookingReader
	QR       *qr.QRGenerator
	PDF      *pdf.BoardingPassGenerator
	Logger   *logger.Logger
	now      func() time.Time
}

func NewService(bookings BookingReader, qrGen *qr.QRGenerator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		Bookings: bookings,
		QR:       qrGen,
		PDF:      pdf.NewBoardingPassGenerator(),
		Logger:   log,
		now:      time.Now,
	}
}

func (s *Service) ticketable(ctx context.Context, bookingID, userID string) (*models.Booking, error) {
	b, err := s.Bookings.GetBooking(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusConfirmed {
		return nil, apperr.IllegalStateError{
			From: string(b.Status),
			To:   string(models.StatusConfirmed),
			Msg:  "tickets are issued for confirmed bookings only",
		}
	}
	return b, nil
}

// QRCode returns the PNG QR code of a confirmed booking.
func (s *Service) QRCode(ctx context.Context, bookingID, userID string) ([]byte, error) {
	b, err := s.ticketable(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	img, err := s.QR.PNG(qr.PayloadFor(b, s.now()))
	if err != nil {
		return nil, apperr.Internal("render qr code", err)
	}
	return img, nil
}

// BoardingPass returns a PDF with the booking details and its QR code.
func (s *Service) BoardingPass(ctx context.Context, bookingID, userID string) ([]byte, error) {
	b, err := s.ticketable(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	img, err := s.QR.PNG(qr.PayloadFor(b, s.now()))
	if err != nil {
		return nil, apperr.Internal("render qr code", err)
	}
	doc, err := s.PDF.Generate(b, img)
	if err != nil {
		return nil, apperr.Internal("render boarding pass", err)
	}
	s.Logger.LogBooking("TICKET", b.ID, fmt.Sprintf("boarding pass issued, %d bytes", len(doc)))
	return doc, nil
}
