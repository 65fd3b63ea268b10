package notification

import (
	"time"

	"go-gin-flight-booking/internal/model"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingCancelled EventType = "booking.cancelled"
)

// Event is the message carried by the notification queue and the Kafka topic.
type Event struct {
	ID               string            `json:"id"`
	Type             EventType         `json:"type"`
	BookingID        string            `json:"booking_id"`
	PNR              string            `json:"pnr"`
	UserID           string            `json:"user_id"`
	FlightID         string            `json:"flight_id"`
	FlightNumber     string            `json:"flight_number"`
	Origin           string            `json:"origin"`
	Destination      string            `json:"destination"`
	DepartureTime    time.Time         `json:"departure_time"`
	SeatNumbers      []string          `json:"seat_numbers"`
	Passengers       []model.Passenger `json:"passengers"`
	PricePaid        float64           `json:"price_paid"`
	TransactionID    string            `json:"transaction_id,omitempty"`
	RefundAmount     float64           `json:"refund_amount,omitempty"`
	RefundPercentage int               `json:"refund_percentage,omitempty"`
	OccurredAt       time.Time         `json:"occurred_at"`
}

func newEvent(eventType EventType, b *model.Booking, f *model.Flight) Event {
	return Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		BookingID:     b.ID,
		PNR:           b.PNR,
		UserID:        b.UserID,
		FlightID:      f.ID,
		FlightNumber:  f.FlightNumber,
		Origin:        f.Origin,
		Destination:   f.Destination,
		DepartureTime: f.DepartureTime,
		SeatNumbers:   append([]string(nil), b.SeatNumbers...),
		Passengers:    append([]model.Passenger(nil), b.Passengers...),
		PricePaid:     b.PricePaid,
		TransactionID: b.TransactionID,
		OccurredAt:    time.Now().UTC(),
	}
}

func NewBookingConfirmedEvent(b *model.Booking, f *model.Flight) Event {
	return newEvent(EventBookingConfirmed, b, f)
}

func NewBookingCancelledEvent(b *model.Booking, f *model.Flight) Event {
	evt := newEvent(EventBookingCancelled, b, f)
	if b.RefundAmount != nil {
		evt.RefundAmount = *b.RefundAmount
	}
	if b.RefundPercentage != nil {
		evt.RefundPercentage = *b.RefundPercentage
	}
	return evt
}

// Recipient 第一位有 email 的乘客
func (e Event) Recipient() string {
	for _, p := range e.Passengers {
		if p.Email != "" {
			return p.Email
		}
	}
	return ""
}
