package model

import "time"

const DemandLevelUnknown = "unknown"

// FareHistory 每次查價的快照，只新增不修改
type FareHistory struct {
	ID                       string    `json:"id" db:"id"`
	FlightID                 string    `json:"flight_id" db:"flight_id"`
	Timestamp                time.Time `json:"timestamp" db:"timestamp"`
	BaseFare                 float64   `json:"base_fare" db:"base_fare"`
	CalculatedFare           float64   `json:"calculated_fare" db:"calculated_fare"`
	DynamicMultiplier        float64   `json:"dynamic_multiplier" db:"dynamic_multiplier"`
	RemainingSeatsPercentage float64   `json:"remaining_seats_percentage" db:"remaining_seats_percentage"`
	HoursUntilDeparture      float64   `json:"hours_until_departure" db:"hours_until_departure"`
	DemandLevel              string    `json:"demand_level" db:"demand_level"`
	SeatLockCount            int       `json:"seat_lock_count" db:"seat_lock_count"`
}
