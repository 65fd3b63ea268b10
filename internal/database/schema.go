package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements 建立服務需要的資料表；全部可重複執行
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS flights (
		id                    TEXT PRIMARY KEY,
		flight_number         TEXT NOT NULL,
		airline               TEXT NOT NULL,
		origin                CHAR(3) NOT NULL,
		destination           CHAR(3) NOT NULL,
		departure_time        TIMESTAMPTZ NOT NULL,
		arrival_time          TIMESTAMPTZ NOT NULL,
		duration              INTEGER NOT NULL,
		aircraft              TEXT NOT NULL DEFAULT '',
		base_fare             DOUBLE PRECISION NOT NULL CHECK (base_fare > 0),
		current_dynamic_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		price_floor           DOUBLE PRECISION NOT NULL DEFAULT 0,
		price_ceiling         DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_seats           INTEGER NOT NULL CHECK (total_seats > 0),
		available_seats       INTEGER NOT NULL CHECK (available_seats >= 0),
		seat_map              JSONB NOT NULL,
		booking_count         INTEGER NOT NULL DEFAULT 0,
		cancellation_count    INTEGER NOT NULL DEFAULT 0,
		is_active             BOOLEAN NOT NULL DEFAULT TRUE,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (available_seats <= total_seats)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_flights_route ON flights (origin, destination, departure_time)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id                      TEXT PRIMARY KEY,
		pnr                     CHAR(6) NOT NULL,
		user_id                 TEXT NOT NULL,
		flight_id               TEXT NOT NULL REFERENCES flights (id),
		seat_numbers            TEXT[] NOT NULL,
		passengers              JSONB NOT NULL,
		price_paid              DOUBLE PRECISION NOT NULL CHECK (price_paid >= 0),
		base_fare_per_seat      DOUBLE PRECISION NOT NULL,
		dynamic_pricing_applied BOOLEAN NOT NULL DEFAULT FALSE,
		status                  TEXT NOT NULL,
		payment_status          TEXT NOT NULL,
		transaction_id          TEXT NOT NULL DEFAULT '',
		seat_lock_expiry        TIMESTAMPTZ NOT NULL,
		confirmation_email_sent BOOLEAN NOT NULL DEFAULT FALSE,
		refund_amount           DOUBLE PRECISION,
		refund_percentage       INTEGER,
		cancellation_date       TIMESTAMPTZ,
		cancellation_reason     TEXT NOT NULL DEFAULT '',
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT bookings_pnr_key UNIQUE (pnr)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS cancellation_logs (
		id                  TEXT PRIMARY KEY,
		booking_id          TEXT NOT NULL REFERENCES bookings (id),
		user_id             TEXT NOT NULL,
		flight_id           TEXT NOT NULL,
		pnr                 CHAR(6) NOT NULL,
		reason              TEXT NOT NULL DEFAULT '',
		original_price_paid DOUBLE PRECISION NOT NULL,
		refund_amount       DOUBLE PRECISION NOT NULL,
		refund_percentage   INTEGER NOT NULL,
		refund_status       TEXT NOT NULL,
		cancelled_at        TIMESTAMPTZ NOT NULL,
		refund_processed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS fare_history (
		id                         TEXT PRIMARY KEY,
		flight_id                  TEXT NOT NULL REFERENCES flights (id),
		timestamp                  TIMESTAMPTZ NOT NULL,
		base_fare                  DOUBLE PRECISION NOT NULL,
		calculated_fare            DOUBLE PRECISION NOT NULL,
		dynamic_multiplier         DOUBLE PRECISION NOT NULL,
		remaining_seats_percentage DOUBLE PRECISION NOT NULL,
		hours_until_departure      DOUBLE PRECISION NOT NULL,
		demand_level               TEXT NOT NULL,
		seat_lock_count            INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fare_history_flight ON fare_history (flight_id, timestamp DESC)`,
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
