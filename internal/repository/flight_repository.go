package repository

import (
	"context"
	"fmt"
	"time"

	"go-gin-flight-booking/internal/model"
	apperrors "go-gin-flight-booking/pkg/app_errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FlightUpdateFunc mutates a flight inside its critical section. Returning an
// error aborts the update and nothing is written.
type FlightUpdateFunc func(flight *model.Flight) error

type FlightRepository interface {
	Create(ctx context.Context, flight *model.Flight) (*model.Flight, error)
	FindByID(ctx context.Context, id string) (*model.Flight, error)
	Search(ctx context.Context, origin, destination string, from, to time.Time) ([]*model.Flight, error)

	// Update 在單一航班的臨界區內執行 fn (per-flight serialization)
	Update(ctx context.Context, id string, fn FlightUpdateFunc) (*model.Flight, error)

	// ListWithExpiredLocks 回傳有座位鎖在 before 之前到期的航班 ID
	ListWithExpiredLocks(ctx context.Context, before time.Time) ([]string, error)
}

type FlightRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewFlightRepository(pool *pgxpool.Pool) FlightRepository {
	return &FlightRepositoryImpl{
		pool: pool,
	}
}

const flightColumns = `
	id, flight_number, airline, origin, destination, departure_time, arrival_time,
	duration, aircraft, base_fare, current_dynamic_price, price_floor, price_ceiling,
	total_seats, available_seats, seat_map, booking_count, cancellation_count,
	is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlight(row rowScanner) (*model.Flight, error) {
	var flight model.Flight
	var seatMap []byte
	err := row.Scan(
		&flight.ID,
		&flight.FlightNumber,
		&flight.Airline,
		&flight.Origin,
		&flight.Destination,
		&flight.DepartureTime,
		&flight.ArrivalTime,
		&flight.Duration,
		&flight.Aircraft,
		&flight.BaseFare,
		&flight.CurrentDynamicPrice,
		&flight.PriceFloor,
		&flight.PriceCeiling,
		&flight.TotalSeats,
		&flight.AvailableSeats,
		&seatMap,
		&flight.BookingCount,
		&flight.CancellationCount,
		&flight.IsActive,
		&flight.CreatedAt,
		&flight.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if flight.SeatMap, err = model.UnmarshalStoredSeatMap(seatMap); err != nil {
		return nil, fmt.Errorf("failed to decode seat map of flight %s: %w", flight.ID, err)
	}
	return &flight, nil
}

func (r *FlightRepositoryImpl) Create(ctx context.Context, flight *model.Flight) (*model.Flight, error) {
	if err := flight.CheckInvariant(); err != nil {
		return nil, err
	}
	seatMap, err := flight.SeatMap.MarshalStorage()
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO flights (
			id, flight_number, airline, origin, destination, departure_time, arrival_time,
			duration, aircraft, base_fare, current_dynamic_price, price_floor, price_ceiling,
			total_seats, available_seats, seat_map, booking_count, cancellation_count, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING ` + flightColumns

	created, err := scanFlight(r.pool.QueryRow(ctx, query,
		flight.ID, flight.FlightNumber, flight.Airline, flight.Origin, flight.Destination,
		flight.DepartureTime, flight.ArrivalTime, flight.Duration, flight.Aircraft,
		flight.BaseFare, flight.CurrentDynamicPrice, flight.PriceFloor, flight.PriceCeiling,
		flight.TotalSeats, flight.AvailableSeats, seatMap, flight.BookingCount,
		flight.CancellationCount, flight.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create flight: %w", err)
	}
	return created, nil
}

func (r *FlightRepositoryImpl) FindByID(ctx context.Context, id string) (*model.Flight, error) {
	query := `SELECT ` + flightColumns + ` FROM flights WHERE id = $1`

	flight, err := scanFlight(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrFlightNotFound
		}
		return nil, err
	}
	return flight, nil
}

func (r *FlightRepositoryImpl) Search(ctx context.Context, origin, destination string, from, to time.Time) ([]*model.Flight, error) {
	query := `SELECT ` + flightColumns + `
		FROM flights
		WHERE is_active = TRUE
		  AND origin = $1
		  AND destination = $2
		  AND departure_time BETWEEN $3 AND $4
		ORDER BY departure_time ASC
	`

	rows, err := r.pool.Query(ctx, query, origin, destination, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flights := make([]*model.Flight, 0)
	for rows.Next() {
		flight, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, flight)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return flights, nil
}

func (r *FlightRepositoryImpl) Update(ctx context.Context, id string, fn FlightUpdateFunc) (*model.Flight, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// 鎖定該航班列，同一航班的座位操作在此序列化
	flight, err := scanFlight(tx.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrFlightNotFound
		}
		return nil, err
	}

	if err := fn(flight); err != nil {
		return nil, err
	}
	if err := flight.CheckInvariant(); err != nil {
		return nil, err
	}
	seatMap, err := flight.SeatMap.MarshalStorage()
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE flights
		SET available_seats = $1, seat_map = $2, booking_count = $3, cancellation_count = $4,
			current_dynamic_price = $5, is_active = $6, updated_at = $7
		WHERE id = $8
		RETURNING ` + flightColumns

	updated, err := scanFlight(tx.QueryRow(ctx, query,
		flight.AvailableSeats, seatMap, flight.BookingCount, flight.CancellationCount,
		flight.CurrentDynamicPrice, flight.IsActive, time.Now().UTC(), id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update flight: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *FlightRepositoryImpl) ListWithExpiredLocks(ctx context.Context, before time.Time) ([]string, error) {
	query := `
		SELECT id
		FROM flights
		WHERE EXISTS (
			SELECT 1
			FROM jsonb_array_elements(seat_map) AS seat
			WHERE seat->>'status' = 'locked'
			  AND COALESCE((seat->>'lockExpiresAt')::timestamptz, '-infinity') < $1
		)
	`

	rows, err := r.pool.Query(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
