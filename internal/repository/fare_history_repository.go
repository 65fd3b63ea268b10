package repository

import (
	"context"
	"fmt"

	"go-gin-flight-booking/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type FareHistoryRepository interface {
	Create(ctx context.Context, record *model.FareHistory) error
	// ListByFlightID 依時間由新到舊回傳最多 limit 筆
	ListByFlightID(ctx context.Context, flightID string, limit int) ([]*model.FareHistory, error)
}

type FareHistoryRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewFareHistoryRepository(pool *pgxpool.Pool) FareHistoryRepository {
	return &FareHistoryRepositoryImpl{
		pool: pool,
	}
}

func (r *FareHistoryRepositoryImpl) Create(ctx context.Context, record *model.FareHistory) error {
	query := `
		INSERT INTO fare_history (
			id, flight_id, timestamp, base_fare, calculated_fare, dynamic_multiplier,
			remaining_seats_percentage, hours_until_departure, demand_level, seat_lock_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		record.ID, record.FlightID, record.Timestamp, record.BaseFare, record.CalculatedFare,
		record.DynamicMultiplier, record.RemainingSeatsPercentage, record.HoursUntilDeparture,
		record.DemandLevel, record.SeatLockCount,
	)
	if err != nil {
		return fmt.Errorf("failed to record fare history: %w", err)
	}
	return nil
}

func (r *FareHistoryRepositoryImpl) ListByFlightID(ctx context.Context, flightID string, limit int) ([]*model.FareHistory, error) {
	query := `
		SELECT id, flight_id, timestamp, base_fare, calculated_fare, dynamic_multiplier,
			remaining_seats_percentage, hours_until_departure, demand_level, seat_lock_count
		FROM fare_history
		WHERE flight_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, flightID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*model.FareHistory, 0)
	for rows.Next() {
		var h model.FareHistory
		err := rows.Scan(
			&h.ID,
			&h.FlightID,
			&h.Timestamp,
			&h.BaseFare,
			&h.CalculatedFare,
			&h.DynamicMultiplier,
			&h.RemainingSeatsPercentage,
			&h.HoursUntilDeparture,
			&h.DemandLevel,
			&h.SeatLockCount,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, &h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
