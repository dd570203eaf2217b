package payments_test

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
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

func TestApplyRoutesByStatus(t *testing.T) {
	c := &mockConfirmer{}
	c.On("ConfirmPayment", mock.Anything, "ord-1").Return(&models.Booking{ID: "b1", Status: models.StatusConfirmed}, nil).Once()
	c.On("FailPayment", mock.Anything, "ord-2").Return(&models.Booking{ID: "b2", Status: models.StatusCancelled}, nil).Once()
	p := payments.NewProcessor(c, nil)

	b, err := p.Apply(context.Background(), payments.Notification{OrderID: "ord-1", Status: " PAID "})
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)

	b, err = p.Apply(context.Background(), payments.Notification{OrderID: "ord-2", Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, b.Status)

	c.AssertExpectations(t)
}

func TestApplyValidates(t *testing.T) {
	c := &mockConfirmer{}
	p := payments.NewProcessor(c, nil)

	_, err := p.Apply(context.Background(), payments.Notification{Status: "paid"})
	assert.True(t, apperr.IsValidation(err))

	_, err = p.Apply(context.Background(), payments.Notification{OrderID: "ord-1", Status: "refunded"})
	assert.True(t, apperr.IsValidation(err))

	c.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
}

func TestHandleMessage(t *testing.T) {
	c := &mockConfirmer{}
	c.On("ConfirmPayment", mock.Anything, "ord-conflict").Return(nil, apperr.ConflictError{SeatNumbers: []string{"A1"}})
	c.On("ConfirmPayment", mock.Anything, "ord-down").Return(nil, apperr.Internal("confirm payment", errors.New("db down")))
	c.On("ConfirmPayment", mock.Anything, "ord-unknown").Return(nil, nil)
	p := payments.NewProcessor(c, nil)
	ctx := context.Background()

	assert.NoError(t, p.HandleMessage(ctx, kafka.Message{Value: []byte("{not json")}))
	assert.NoError(t, p.HandleMessage(ctx, kafka.Message{Value: []byte(`{"order_id":"ord-conflict","status":"paid"}`)}))
	assert.NoError(t, p.HandleMessage(ctx, kafka.Message{Value: []byte(`{"order_id":"ord-unknown","status":"paid"}`)}))
	assert.Error(t, p.HandleMessage(ctx, kafka.Message{Value: []byte(`{"order_id":"ord-down","status":"paid"}`)}))
}
