package booking_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/booking"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/utils"
)

type Bookings interface {
	CreateBooking(ctx context.Context, in booking.CreateBookingInput) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, actingUserID, reason string) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID, actingUserID string) (*models.Booking, error)
	ListUserBookings(ctx context.Context, userID, status string) ([]models.Booking, error)
}

type Tickets interface {
	QRCode(ctx context.Context, bookingID, userID string) ([]byte, error)
	BoardingPass(ctx context.Context, bookingID, userID string) ([]byte, error)
}

type Handler struct {
	Bookings Bookings
	Tickets  Tickets
	Logger   *logger.Logger
}

func NewHandler(bookings Bookings, tickets Tickets, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{Bookings: bookings, Tickets: tickets, Logger: log}
}

// RegisterRoutes expects r to sit behind auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/bookings", func(r chi.Router) {
		r.Post("/", h.CreateBooking)
		r.Get("/{bookingId}", h.GetBooking)
		r.Post("/{bookingId}/cancel", h.CancelBooking)
		r.Get("/{bookingId}/ticket.png", h.TicketQR)
		r.Get("/{bookingId}/ticket.pdf", h.TicketPDF)
	})
	r.Get("/api/users/me/bookings", h.ListMyBookings)
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type CancelResponse struct {
	Detail      string               `json:"detail"`
	BookingID   string               `json:"booking_id"`
	Status      models.BookingStatus `json:"status"`
	CancelledAt *time.Time           `json:"cancelled_at"`
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var in booking.CreateBookingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateBooking: failed to decode request body: %v", err))
		utils.WriteError(w, "Invalid request body", apperr.ValidationError{Field: "body", Msg: "malformed JSON", Err: err})
		return
	}
	in.UserID = auth.UserID(r.Context())

	b, err := h.Bookings.CreateBooking(r.Context(), in)
	if err != nil {
		utils.WriteError(w, "Booking failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created", b))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.GetBooking(r.Context(), chi.URLParam(r, "bookingId"), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "Booking not available", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking retrieved", b))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	userID := auth.UserID(r.Context())

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.WriteError(w, "Invalid request body", apperr.ValidationError{Field: "body", Msg: "malformed JSON", Err: err})
		return
	}

	b, err := h.Bookings.CancelBooking(r.Context(), bookingID, userID, req.Reason)
	if err != nil {
		utils.WriteError(w, "Cancellation failed", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CancelBooking: %s cancelled by %s", bookingID, userID))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking cancelled", CancelResponse{
		Detail:      "Booking cancelled successfully",
		BookingID:   b.ID,
		Status:      b.Status,
		CancelledAt: b.CancelledAt,
	}))
}

func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Bookings.ListUserBookings(r.Context(), auth.UserID(r.Context()), r.URL.Query().Get("status"))
	if err != nil {
		utils.WriteError(w, "Could not list bookings", err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bookings retrieved", bookings))
}

func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	img, err := h.Tickets.QRCode(r.Context(), chi.URLParam(r, "bookingId"), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "Ticket not available", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(img)
}

func (h *Handler) TicketPDF(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	doc, err := h.Tickets.BoardingPass(r.Context(), bookingID, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "Ticket not available", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="boarding-pass-%s.pdf"`, bookingID))
	_, _ = w.Write(doc)
}
