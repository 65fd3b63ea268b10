package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-gin-flight-booking/internal/model"
	apperrors "go-gin-flight-booking/pkg/app_errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookingUpdateFunc mutates a booking under a row lock; an error aborts the update.
type BookingUpdateFunc func(booking *model.Booking) error

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) (*model.Booking, error)
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindByPNR(ctx context.Context, pnr string) (*model.Booking, error)
	FindByUserID(ctx context.Context, userID string) ([]*model.Booking, error)
	ExistsByPNR(ctx context.Context, pnr string) (bool, error)
	Update(ctx context.Context, id string, fn BookingUpdateFunc) (*model.Booking, error)
}

type BookingRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) BookingRepository {
	return &BookingRepositoryImpl{
		pool: pool,
	}
}

const bookingColumns = `
	id, pnr, user_id, flight_id, seat_numbers, passengers, price_paid, base_fare_per_seat,
	dynamic_pricing_applied, status, payment_status, transaction_id, seat_lock_expiry,
	confirmation_email_sent, refund_amount, refund_percentage, cancellation_date,
	cancellation_reason, created_at, updated_at`

func scanBooking(row rowScanner) (*model.Booking, error) {
	var booking model.Booking
	err := row.Scan(
		&booking.ID,
		&booking.PNR,
		&booking.UserID,
		&booking.FlightID,
		&booking.SeatNumbers,
		&booking.Passengers,
		&booking.PricePaid,
		&booking.BaseFarePerSeat,
		&booking.DynamicPricingApplied,
		&booking.Status,
		&booking.PaymentStatus,
		&booking.TransactionID,
		&booking.SeatLockExpiry,
		&booking.ConfirmationEmailSent,
		&booking.RefundAmount,
		&booking.RefundPercentage,
		&booking.CancellationDate,
		&booking.CancellationReason,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *BookingRepositoryImpl) Create(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	query := `
		INSERT INTO bookings (
			id, pnr, user_id, flight_id, seat_numbers, passengers, price_paid, base_fare_per_seat,
			dynamic_pricing_applied, status, payment_status, transaction_id, seat_lock_expiry
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + bookingColumns

	created, err := scanBooking(r.pool.QueryRow(ctx, query,
		booking.ID, booking.PNR, booking.UserID, booking.FlightID, booking.SeatNumbers,
		booking.Passengers, booking.PricePaid, booking.BaseFarePerSeat,
		booking.DynamicPricingApplied, booking.Status, booking.PaymentStatus,
		booking.TransactionID, booking.SeatLockExpiry,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "bookings_pnr_key" {
			return nil, apperrors.ErrDuplicatePNR
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	return created, nil
}

func (r *BookingRepositoryImpl) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrBookingNotFound
		}
		return nil, err
	}
	return booking, nil
}

func (r *BookingRepositoryImpl) FindByPNR(ctx context.Context, pnr string) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE pnr = $1`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, pnr))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrBookingNotFound
		}
		return nil, err
	}
	return booking, nil
}

func (r *BookingRepositoryImpl) FindByUserID(ctx context.Context, userID string) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]*model.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bookings, nil
}

func (r *BookingRepositoryImpl) ExistsByPNR(ctx context.Context, pnr string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE pnr = $1)`, pnr).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *BookingRepositoryImpl) Update(ctx context.Context, id string, fn BookingUpdateFunc) (*model.Booking, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	booking, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrBookingNotFound
		}
		return nil, err
	}

	if err := fn(booking); err != nil {
		return nil, err
	}

	query := `
		UPDATE bookings
		SET status = $1, payment_status = $2, confirmation_email_sent = $3, refund_amount = $4,
			refund_percentage = $5, cancellation_date = $6, cancellation_reason = $7, updated_at = $8
		WHERE id = $9
		RETURNING ` + bookingColumns

	updated, err := scanBooking(tx.QueryRow(ctx, query,
		booking.Status, booking.PaymentStatus, booking.ConfirmationEmailSent, booking.RefundAmount,
		booking.RefundPercentage, booking.CancellationDate, booking.CancellationReason,
		time.Now().UTC(), id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return updated, nil
}
