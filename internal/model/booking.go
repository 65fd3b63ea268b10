package model

import (
	"fmt"
	"time"

	apperrors "go-gin-flight-booking/pkg/app_errors"
)

// BookingStatus 訂位狀態類型
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusWaitlist  BookingStatus = "waitlist"
)

// IsValid 驗證狀態是否有效
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusWaitlist:
		return true
	}
	return false
}

// CanTransitionTo 檢查是否可以轉換到目標狀態
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	transitions := map[BookingStatus][]BookingStatus{
		BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
		BookingStatusConfirmed: {BookingStatusCancelled},
		BookingStatusWaitlist:  {BookingStatusCancelled},
		BookingStatusCancelled: {}, // 不能轉換到任何狀態
	}

	allowed, ok := transitions[s]
	if !ok {
		return false
	}

	for _, status := range allowed {
		if status == target {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type Passenger struct {
	Name        string     `json:"name" binding:"required"`
	Email       string     `json:"email" binding:"omitempty,email"`
	Phone       string     `json:"phone,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	Passport    string     `json:"passport,omitempty"`
	Nationality string     `json:"nationality,omitempty"`
}

// Booking 訂位模型
type Booking struct {
	ID                    string        `json:"id" db:"id"`
	PNR                   string        `json:"pnr" db:"pnr"`
	UserID                string        `json:"user_id" db:"user_id"`
	FlightID              string        `json:"flight_id" db:"flight_id"`
	SeatNumbers           []string      `json:"seat_numbers" db:"seat_numbers"`
	Passengers            []Passenger   `json:"passengers" db:"passengers"`
	PricePaid             float64       `json:"price_paid" db:"price_paid"`
	BaseFarePerSeat       float64       `json:"base_fare_per_seat" db:"base_fare_per_seat"`
	DynamicPricingApplied bool          `json:"dynamic_pricing_applied" db:"dynamic_pricing_applied"`
	Status                BookingStatus `json:"status" db:"status"`
	PaymentStatus         PaymentStatus `json:"payment_status" db:"payment_status"`
	TransactionID         string        `json:"transaction_id" db:"transaction_id"`
	SeatLockExpiry        time.Time     `json:"seat_lock_expiry" db:"seat_lock_expiry"`
	ConfirmationEmailSent bool          `json:"confirmation_email_sent" db:"confirmation_email_sent"`
	RefundAmount          *float64      `json:"refund_amount,omitempty" db:"refund_amount"`
	RefundPercentage      *int          `json:"refund_percentage,omitempty" db:"refund_percentage"`
	CancellationDate      *time.Time    `json:"cancellation_date,omitempty" db:"cancellation_date"`
	CancellationReason    string        `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedAt             time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at" db:"updated_at"`
}

func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// TransitionTo 依狀態機變更狀態
func (b *Booking) TransitionTo(target BookingStatus) error {
	if !b.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidStatusTransition, b.Status, target)
	}
	b.Status = target
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel 標記取消並寫入退款資料；退款欄位只能寫入一次
func (b *Booking) Cancel(refundPercentage int, refundAmount float64, reason string, at time.Time) error {
	if b.IsCancelled() {
		return apperrors.ErrAlreadyCancelled
	}
	if b.RefundAmount != nil || b.RefundPercentage != nil || b.CancellationDate != nil {
		return fmt.Errorf("%w: refund data already recorded for booking %s", apperrors.ErrInvalidStatusTransition, b.ID)
	}
	if err := b.TransitionTo(BookingStatusCancelled); err != nil {
		return err
	}
	b.PaymentStatus = PaymentStatusRefunded
	b.RefundPercentage = &refundPercentage
	b.RefundAmount = &refundAmount
	cancelledAt := at.UTC()
	b.CancellationDate = &cancelledAt
	b.CancellationReason = reason
	return nil
}

func (b *Booking) Clone() *Booking {
	c := *b
	c.SeatNumbers = append([]string(nil), b.SeatNumbers...)
	c.Passengers = append([]Passenger(nil), b.Passengers...)
	if b.RefundAmount != nil {
		v := *b.RefundAmount
		c.RefundAmount = &v
	}
	if b.RefundPercentage != nil {
		v := *b.RefundPercentage
		c.RefundPercentage = &v
	}
	if b.CancellationDate != nil {
		v := *b.CancellationDate
		c.CancellationDate = &v
	}
	return &c
}

// SelectSeatsRequest 選位 (鎖定座位) 請求
type SelectSeatsRequest struct {
	FlightID    string   `json:"flightId" binding:"required"`
	SeatNumbers []string `json:"seatNumbers" binding:"required,min=1,dive,seatnumber"`
}

// SeatSelection 鎖定結果
type SeatSelection struct {
	LockID      string    `json:"lockId"`
	FlightID    string    `json:"flightId"`
	SeatNumbers []string  `json:"seatNumbers"`
	LockExpiry  time.Time `json:"lockExpiry"`
}

// CreateBookingRequest 建立訂位請求
type CreateBookingRequest struct {
	FlightID    string      `json:"flightId" binding:"required"`
	LockID      string      `json:"lockId" binding:"required"`
	SeatNumbers []string    `json:"seatNumbers" binding:"required,min=1,dive,seatnumber"`
	Passengers  []Passenger `json:"passengers" binding:"required,min=1,dive"`
}

// CancelBookingRequest 取消原因可省略
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// CancellationResult 取消訂位回應
type CancellationResult struct {
	BookingID        string  `json:"bookingId"`
	PNR              string  `json:"pnr"`
	RefundAmount     float64 `json:"refundAmount"`
	RefundPercentage int     `json:"refundPercentage"`
}
