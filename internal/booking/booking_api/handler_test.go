package booking_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/booking"
	"ms-reservation/internal/models"
)

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) CreateBooking(ctx context.Context, in booking.CreateBookingInput) (*models.Booking, error) {
	args := m.Called(ctx, in)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) CancelBooking(ctx context.Context, bookingID, actingUserID, reason string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, actingUserID, reason)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) GetBooking(ctx context.Context, bookingID, actingUserID string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, actingUserID)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) ListUserBookings(ctx context.Context, userID, status string) ([]models.Booking, error) {
	args := m.Called(ctx, userID, status)
	list, _ := args.Get(0).([]models.Booking)
	return list, args.Error(1)
}

type mockTickets struct {
	mock.Mock
}

func (m *mockTickets) QRCode(ctx context.Context, bookingID, userID string) ([]byte, error) {
	args := m.Called(ctx, bookingID, userID)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockTickets) BoardingPass(ctx context.Context, bookingID, userID string) ([]byte, error) {
	args := m.Called(ctx, bookingID, userID)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func newRouter(b *mockBookings, tk *mockTickets) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), "alice")))
		})
	})
	NewHandler(b, tk, nil).RegisterRoutes(r)
	return r
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestCreateBooking(t *testing.T) {
	b := &mockBookings{}
	want := booking.CreateBookingInput{
		UserID:      "alice",
		VehicleID:   "v-1",
		SeatIDs:     []string{"s1", "s2"},
		JourneyDate: "2025-01-10",
	}
	b.On("CreateBooking", mock.Anything, want).
		Return(&models.Booking{ID: "b-1", UserID: "alice", Status: models.StatusConfirmed}, nil).Once()

	rec := do(newRouter(b, nil), http.MethodPost, "/api/bookings",
		`{"vehicle_id":"v-1","seat_ids":["s1","s2"],"journey_date":"2025-01-10","user_id":"mallory"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	env := decode(t, rec)
	assert.True(t, env.Success)
	var got models.Booking
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "b-1", got.ID)
	b.AssertExpectations(t)
}

func TestCreateBookingErrors(t *testing.T) {
	b := &mockBookings{}
	b.On("CreateBooking", mock.Anything, mock.MatchedBy(func(in booking.CreateBookingInput) bool { return in.VehicleID == "taken" })).
		Return(nil, apperr.ConflictError{SeatNumbers: []string{"A1"}})
	b.On("CreateBooking", mock.Anything, mock.MatchedBy(func(in booking.CreateBookingInput) bool { return in.VehicleID == "" })).
		Return(nil, apperr.ValidationError{Field: "vehicle_id", Msg: "is required"})
	router := newRouter(b, nil)

	rec := do(router, http.MethodPost, "/api/bookings", `{"vehicle_id":"taken","seat_ids":["s1"],"journey_date":"2025-01-10"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "seat_conflict", decode(t, rec).Code)

	rec = do(router, http.MethodPost, "/api/bookings", `{"seat_ids":["s1"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/api/bookings", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelBooking(t *testing.T) {
	at := time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)
	b := &mockBookings{}
	b.On("CancelBooking", mock.Anything, "b-1", "alice", "sick").
		Return(&models.Booking{ID: "b-1", Status: models.StatusCancelled, CancelledAt: &at}, nil).Once()
	b.On("CancelBooking", mock.Anything, "b-1", "alice", "").
		Return(nil, apperr.IllegalStateError{From: "cancelled", To: "cancelled", Msg: "booking cannot be cancelled"}).Once()
	router := newRouter(b, nil)

	rec := do(router, http.MethodPost, "/api/bookings/b-1/cancel", `{"reason":"sick"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp CancelResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &resp))
	assert.Equal(t, "Booking cancelled successfully", resp.Detail)
	assert.Equal(t, models.StatusCancelled, resp.Status)
	require.NotNil(t, resp.CancelledAt)
	assert.True(t, resp.CancelledAt.Equal(at))

	// no body at all is fine
	rec = do(router, http.MethodPost, "/api/bookings/b-1/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "illegal_state", decode(t, rec).Code)

	b.AssertExpectations(t)
}

func TestGetBookingForbidden(t *testing.T) {
	b := &mockBookings{}
	b.On("GetBooking", mock.Anything, "b-2", "alice").Return(nil, apperr.AuthorizationError{Msg: "booking belongs to another user"})
	b.On("GetBooking", mock.Anything, "nope", "alice").Return(nil, apperr.NotFoundError{Resource: "booking", ID: "nope"})
	router := newRouter(b, nil)

	assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/api/bookings/b-2", "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/bookings/nope", "").Code)
}

func TestListMyBookings(t *testing.T) {
	b := &mockBookings{}
	b.On("ListUserBookings", mock.Anything, "alice", "confirmed").Return([]models.Booking{{ID: "b-1"}}, nil)
	b.On("ListUserBookings", mock.Anything, "alice", "").Return(nil, nil)
	router := newRouter(b, nil)

	rec := do(router, http.MethodGet, "/api/users/me/bookings?status=confirmed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Booking
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &list))
	assert.Len(t, list, 1)

	rec = do(router, http.MethodGet, "/api/users/me/bookings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(decode(t, rec).Data))
}

func TestTickets(t *testing.T) {
	tk := &mockTickets{}
	tk.On("QRCode", mock.Anything, "b-1", "alice").Return([]byte("\x89PNG..."), nil)
	tk.On("BoardingPass", mock.Anything, "b-1", "alice").Return([]byte("%PDF-1.3"), nil)
	tk.On("BoardingPass", mock.Anything, "b-9", "alice").Return(nil, apperr.IllegalStateError{From: "pending", To: "confirmed"})
	router := newRouter(&mockBookings{}, tk)

	rec := do(router, http.MethodGet, "/api/bookings/b-1/ticket.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = do(router, http.MethodGet, "/api/bookings/b-1/ticket.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "boarding-pass-b-1.pdf")

	rec = do(router, http.MethodGet, "/api/bookings/b-9/ticket.pdf", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
