package model

import "time"

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusProcessed RefundStatus = "processed"
	RefundStatusFailed    RefundStatus = "failed"
)

// CancellationLog 取消紀錄，只新增不修改
type CancellationLog struct {
	ID                string       `json:"id" db:"id"`
	BookingID         string       `json:"booking_id" db:"booking_id"`
	UserID            string       `json:"user_id" db:"user_id"`
	FlightID          string       `json:"flight_id" db:"flight_id"`
	PNR               string       `json:"pnr" db:"pnr"`
	Reason            string       `json:"reason,omitempty" db:"reason"`
	OriginalPricePaid float64      `json:"original_price_paid" db:"original_price_paid"`
	RefundAmount      float64      `json:"refund_amount" db:"refund_amount"`
	RefundPercentage  int          `json:"refund_percentage" db:"refund_percentage"`
	RefundStatus      RefundStatus `json:"refund_status" db:"refund_status"`
	CancelledAt       time.Time    `json:"cancelled_at" db:"cancelled_at"`
	RefundProcessedAt *time.Time   `json:"refund_processed_at,omitempty" db:"refund_processed_at"`
}
