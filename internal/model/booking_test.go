package model

import (
	"testing"
	"time"

	apperrors "go-gin-flight-booking/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		want     bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusPending, false},
		{BookingStatusCancelled, BookingStatusConfirmed, false},
		{BookingStatusCancelled, BookingStatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestBooking_Cancel(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		b := &Booking{ID: "b1", Status: BookingStatusConfirmed, PaymentStatus: PaymentStatusCompleted, PricePaid: 300}
		at := time.Now()

		require.NoError(t, b.Cancel(75, 225, "plans changed", at))

		assert.Equal(t, BookingStatusCancelled, b.Status)
		assert.Equal(t, PaymentStatusRefunded, b.PaymentStatus)
		require.NotNil(t, b.RefundAmount)
		assert.Equal(t, 225.0, *b.RefundAmount)
		assert.Equal(t, 75, *b.RefundPercentage)
		assert.Equal(t, "plans changed", b.CancellationReason)
	})

	t.Run("Failed - already cancelled", func(t *testing.T) {
		b := &Booking{ID: "b1", Status: BookingStatusConfirmed}
		require.NoError(t, b.Cancel(100, 10, "", time.Now()))

		err := b.Cancel(50, 5, "", time.Now())
		assert.ErrorIs(t, err, apperrors.ErrAlreadyCancelled)
		assert.Equal(t, 10.0, *b.RefundAmount, "refund data is write-once")
	})
}

func TestBooking_CloneIsDeep(t *testing.T) {
	amount := 10.0
	b := &Booking{SeatNumbers: []string{"1A"}, Passengers: []Passenger{{Name: "Ada"}}, RefundAmount: &amount}
	c := b.Clone()

	c.SeatNumbers[0] = "2B"
	c.Passengers[0].Name = "Grace"
	*c.RefundAmount = 99

	assert.Equal(t, "1A", b.SeatNumbers[0])
	assert.Equal(t, "Ada", b.Passengers[0].Name)
	assert.Equal(t, 10.0, *b.RefundAmount)
}
