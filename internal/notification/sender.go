package notification

import (
	"context"
	"fmt"
	"strings"

	"go-gin-flight-booking/pkg/logger"

	"go.uber.org/zap"
)

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type ReceiptGenerator interface {
	Generate(evt Event) ([]byte, error)
}

// LogEmailSender writes the email to the log instead of an SMTP server.
type LogEmailSender struct{}

func (LogEmailSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.WithComponent("notification").Info("email sent",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}

// TextReceiptGenerator renders a plain-text e-ticket receipt.
type TextReceiptGenerator struct{}

func (TextReceiptGenerator) Generate(evt Event) ([]byte, error) {
	if evt.PNR == "" {
		return nil, fmt.Errorf("receipt requires a pnr")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "E-TICKET RECEIPT\n")
	fmt.Fprintf(&b, "PNR: %s\n", evt.PNR)
	fmt.Fprintf(&b, "Flight: %s %s -> %s\n", evt.FlightNumber, evt.Origin, evt.Destination)
	fmt.Fprintf(&b, "Departure: %s\n", evt.DepartureTime.Format("2006-01-02 15:04 MST"))
	for i, p := range evt.Passengers {
		seat := ""
		if i < len(evt.SeatNumbers) {
			seat = evt.SeatNumbers[i]
		}
		fmt.Fprintf(&b, "Passenger %d: %s seat %s\n", i+1, p.Name, seat)
	}
	fmt.Fprintf(&b, "Total paid: %.2f\n", evt.PricePaid)
	if evt.TransactionID != "" {
		fmt.Fprintf(&b, "Transaction: %s\n", evt.TransactionID)
	}
	return []byte(b.String()), nil
}

func confirmationEmail(evt Event, receipt []byte) (string, string) {
	subject := fmt.Sprintf("Booking confirmed - PNR %s", evt.PNR)
	body := fmt.Sprintf("Your booking on flight %s is confirmed.\n\n%s", evt.FlightNumber, receipt)
	return subject, body
}

func cancellationEmail(evt Event) (string, string) {
	subject := fmt.Sprintf("Booking cancelled - PNR %s", evt.PNR)
	body := fmt.Sprintf("Your booking on flight %s has been cancelled.\nRefund: %.2f (%d%%)\n",
		evt.FlightNumber, evt.RefundAmount, evt.RefundPercentage)
	return subject, body
}
