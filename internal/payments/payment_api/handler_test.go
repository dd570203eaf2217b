package payment_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/models"
	"ms-reservation/internal/payments"
)

type mockConfirmer struct {
	mock.Mock
}

func (m *mockConfirmer) ConfirmPayment(ctx context.Context, orderID string) (*models.Booking, error) {
	args := m.Called(ctx, orderID)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockConfirmer) FailPayment(ctx context.Context, orderID string) (*models.Booking, error) {
	args := m.Called(ctx, orderID)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func newRouter(c *mockConfirmer) http.Handler {
	h := NewHandler(payments.NewProcessor(c, nil), "s3cret", nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func post(router http.Handler, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/notifications", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNotifyRequiresSecret(t *testing.T) {
	c := &mockConfirmer{}
	router := newRouter(c)

	assert.Equal(t, http.StatusUnauthorized, post(router, "", `{"order_id":"o","status":"paid"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(router, "wrong", `{"order_id":"o","status":"paid"}`).Code)
	c.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
}

func TestNotifyPaid(t *testing.T) {
	c := &mockConfirmer{}
	c.On("ConfirmPayment", mock.Anything, "ord-1").Return(&models.Booking{ID: "b1", Status: models.StatusConfirmed}, nil).Twice()
	router := newRouter(c)

	for i := 0; i < 2; i++ {
		rec := post(router, "s3cret", `{"order_id":"ord-1","status":"paid"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data map[string]string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "confirmed", body.Data["status"])
	}
	c.AssertExpectations(t)
}

func TestNotifyErrors(t *testing.T) {
	c := &mockConfirmer{}
	c.On("ConfirmPayment", mock.Anything, "ord-taken").Return(nil, apperr.ConflictError{SeatNumbers: []string{"A1"}})
	c.On("FailPayment", mock.Anything, "ord-none").Return(nil, nil)
	router := newRouter(c)

	assert.Equal(t, http.StatusBadRequest, post(router, "s3cret", `nope`).Code)
	assert.Equal(t, http.StatusBadRequest, post(router, "s3cret", `{"order_id":"x","status":"maybe"}`).Code)
	assert.Equal(t, http.StatusConflict, post(router, "s3cret", `{"order_id":"ord-taken","status":"paid"}`).Code)
	assert.Equal(t, http.StatusOK, post(router, "s3cret", `{"order_id":"ord-none","status":"failed"}`).Code)
}
