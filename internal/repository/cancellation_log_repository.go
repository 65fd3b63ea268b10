package repository

import (
	"context"
	"fmt"

	"go-gin-flight-booking/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CancellationLogRepository interface {
	Create(ctx context.Context, log *model.CancellationLog) (*model.CancellationLog, error)
	FindByBookingID(ctx context.Context, bookingID string) ([]*model.CancellationLog, error)
}

type CancellationLogRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewCancellationLogRepository(pool *pgxpool.Pool) CancellationLogRepository {
	return &CancellationLogRepositoryImpl{
		pool: pool,
	}
}

const cancellationLogColumns = `
	id, booking_id, user_id, flight_id, pnr, reason, original_price_paid, refund_amount,
	refund_percentage, refund_status, cancelled_at, refund_processed_at`

func scanCancellationLog(row rowScanner) (*model.CancellationLog, error) {
	var log model.CancellationLog
	err := row.Scan(
		&log.ID,
		&log.BookingID,
		&log.UserID,
		&log.FlightID,
		&log.PNR,
		&log.Reason,
		&log.OriginalPricePaid,
		&log.RefundAmount,
		&log.RefundPercentage,
		&log.RefundStatus,
		&log.CancelledAt,
		&log.RefundProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *CancellationLogRepositoryImpl) Create(ctx context.Context, log *model.CancellationLog) (*model.CancellationLog, error) {
	query := `
		INSERT INTO cancellation_logs (
			id, booking_id, user_id, flight_id, pnr, reason, original_price_paid, refund_amount,
			refund_percentage, refund_status, cancelled_at, refund_processed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + cancellationLogColumns

	created, err := scanCancellationLog(r.pool.QueryRow(ctx, query,
		log.ID, log.BookingID, log.UserID, log.FlightID, log.PNR, log.Reason,
		log.OriginalPricePaid, log.RefundAmount, log.RefundPercentage, log.RefundStatus,
		log.CancelledAt, log.RefundProcessedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create cancellation log: %w", err)
	}
	return created, nil
}

func (r *CancellationLogRepositoryImpl) FindByBookingID(ctx context.Context, bookingID string) ([]*model.CancellationLog, error) {
	query := `SELECT ` + cancellationLogColumns + `
		FROM cancellation_logs
		WHERE booking_id = $1
		ORDER BY cancelled_at ASC
	`

	rows, err := r.pool.Query(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]*model.CancellationLog, 0)
	for rows.Next() {
		log, err := scanCancellationLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}
