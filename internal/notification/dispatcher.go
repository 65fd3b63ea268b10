package notification

import (
	"context"
	"fmt"

	"go-gin-flight-booking/internal/model"
	"go-gin-flight-booking/internal/repository"
	"go-gin-flight-booking/pkg/logger"

	"go.uber.org/zap"
)

// Dispatcher handles one queued event: sends the email, renders the receipt
// and records that the confirmation went out.
type Dispatcher struct {
	email    EmailSender
	receipts ReceiptGenerator
	bookings repository.BookingRepository
}

func NewDispatcher(email EmailSender, receipts ReceiptGenerator, bookings repository.BookingRepository) *Dispatcher {
	return &Dispatcher{
		email:    email,
		receipts: receipts,
		bookings: bookings,
	}
}

func (d *Dispatcher) Handle(ctx context.Context, evt Event) error {
	log := logger.WithComponent("notification")
	to := evt.Recipient()

	switch evt.Type {
	case EventBookingConfirmed:
		receipt, err := d.receipts.Generate(evt)
		if err != nil {
			// 收據失敗不影響確認信
			log.Warn("generate receipt failed", zap.String("pnr", evt.PNR), zap.Error(err))
		}
		if to == "" {
			log.Info("no recipient for confirmation", zap.String("pnr", evt.PNR))
			return nil
		}
		subject, body := confirmationEmail(evt, receipt)
		if err := d.email.Send(ctx, to, subject, body); err != nil {
			return fmt.Errorf("send confirmation email: %w", err)
		}
		_, err = d.bookings.Update(ctx, evt.BookingID, func(b *model.Booking) error {
			b.ConfirmationEmailSent = true
			return nil
		})
		if err != nil {
			log.Warn("mark confirmation email sent failed", zap.String("booking_id", evt.BookingID), zap.Error(err))
		}
		return nil

	case EventBookingCancelled:
		if to == "" {
			return nil
		}
		subject, body := cancellationEmail(evt)
		if err := d.email.Send(ctx, to, subject, body); err != nil {
			return fmt.Errorf("send cancellation email: %w", err)
		}
		return nil

	default:
		log.Warn("unknown event type, dropping", zap.String("type", string(evt.Type)), zap.String("event_id", evt.ID))
		return nil
	}
}
