package model

import (
	"fmt"
	"time"

	apperrors "go-gin-flight-booking/pkg/app_errors"
)

// Flight 航班模型；座位狀態只透過 SeatMap 讀寫
type Flight struct {
	ID                  string    `json:"id" db:"id"`
	FlightNumber        string    `json:"flight_number" db:"flight_number"`
	Airline             string    `json:"airline" db:"airline"`
	Origin              string    `json:"origin" db:"origin"`
	Destination         string    `json:"destination" db:"destination"`
	DepartureTime       time.Time `json:"departure_time" db:"departure_time"`
	ArrivalTime         time.Time `json:"arrival_time" db:"arrival_time"`
	Duration            int       `json:"duration" db:"duration"`
	Aircraft            string    `json:"aircraft,omitempty" db:"aircraft"`
	BaseFare            float64   `json:"base_fare" db:"base_fare"`
	CurrentDynamicPrice float64   `json:"current_dynamic_price" db:"current_dynamic_price"`
	PriceFloor          float64   `json:"price_floor" db:"price_floor"`
	PriceCeiling        float64   `json:"price_ceiling" db:"price_ceiling"`
	TotalSeats          int       `json:"total_seats" db:"total_seats"`
	AvailableSeats      int       `json:"available_seats" db:"available_seats"`
	SeatMap             *SeatMap  `json:"seat_map" db:"seat_map"`
	BookingCount        int       `json:"booking_count" db:"booking_count"`
	CancellationCount   int       `json:"cancellation_count" db:"cancellation_count"`
	IsActive            bool      `json:"is_active" db:"is_active"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// CreateFlightParams 建立航班所需欄位
type CreateFlightParams struct {
	FlightNumber  string    `json:"flight_number" binding:"required"`
	Airline       string    `json:"airline" binding:"required"`
	Origin        string    `json:"origin" binding:"required,len=3"`
	Destination   string    `json:"destination" binding:"required,len=3"`
	DepartureTime time.Time `json:"departure_time" binding:"required"`
	ArrivalTime   time.Time `json:"arrival_time" binding:"required"`
	BaseFare      float64   `json:"base_fare" binding:"required,gt=0"`
	TotalSeats    int       `json:"total_seats" binding:"required,min=1,max=600"`
	Aircraft      string    `json:"aircraft"`
}

// NewFlight builds a scheduled flight with every seat available, a price
// floor 20% below the base fare and a ceiling at twice the base fare.
func NewFlight(id string, p CreateFlightParams) (*Flight, error) {
	if !p.ArrivalTime.After(p.DepartureTime) {
		return nil, fmt.Errorf("%w: arrival must be after departure", apperrors.ErrInvalidInput)
	}
	seatMap, err := NewSeatMap(GenerateSeatNumbers(p.TotalSeats))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Flight{
		ID:                  id,
		FlightNumber:        p.FlightNumber,
		Airline:             p.Airline,
		Origin:              p.Origin,
		Destination:         p.Destination,
		DepartureTime:       p.DepartureTime.UTC(),
		ArrivalTime:         p.ArrivalTime.UTC(),
		Duration:            int(p.ArrivalTime.Sub(p.DepartureTime).Round(time.Minute) / time.Minute),
		Aircraft:            p.Aircraft,
		BaseFare:            p.BaseFare,
		CurrentDynamicPrice: p.BaseFare,
		PriceFloor:          p.BaseFare * 0.8,
		PriceCeiling:        p.BaseFare * 2.0,
		TotalSeats:          p.TotalSeats,
		AvailableSeats:      p.TotalSeats,
		SeatMap:             seatMap,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// FarePerSeat 目前動態價格，未設定時使用基本票價
func (f *Flight) FarePerSeat() float64 {
	if f.CurrentDynamicPrice > 0 {
		return f.CurrentDynamicPrice
	}
	return f.BaseFare
}

func (f *Flight) HoursUntilDeparture(now time.Time) float64 {
	return f.DepartureTime.Sub(now).Hours()
}

func (f *Flight) RemainingSeatsPercentage() float64 {
	if f.TotalSeats == 0 {
		return 0
	}
	return float64(f.AvailableSeats) / float64(f.TotalSeats) * 100
}

// CheckInvariant 驗證座位數量一致性；違反代表程式邏輯錯誤
func (f *Flight) CheckInvariant() error {
	if f.SeatMap == nil {
		return fmt.Errorf("%w: flight %s has no seat map", apperrors.ErrInvariantViolation, f.ID)
	}
	if f.SeatMap.Len() != f.TotalSeats {
		return fmt.Errorf("%w: flight %s has %d seats in map, expected %d",
			apperrors.ErrInvariantViolation, f.ID, f.SeatMap.Len(), f.TotalSeats)
	}
	if counted := f.SeatMap.CountAvailable(); counted != f.AvailableSeats {
		return fmt.Errorf("%w: flight %s available_seats=%d but %d seats are available",
			apperrors.ErrInvariantViolation, f.ID, f.AvailableSeats, counted)
	}
	return nil
}

func (f *Flight) LockSeats(seatIDs []string, lockID string, expiresAt time.Time) error {
	if err := f.SeatMap.Lock(seatIDs, lockID, expiresAt); err != nil {
		return err
	}
	f.AvailableSeats -= len(seatIDs)
	return f.CheckInvariant()
}

// ReleaseSeats 釋放仍由 lockID 鎖定的座位，回傳實際釋放的座位
func (f *Flight) ReleaseSeats(seatIDs []string, lockID string) ([]string, error) {
	released := f.SeatMap.Release(seatIDs, lockID)
	f.AvailableSeats += len(released)
	return released, f.CheckInvariant()
}

// ReleaseExpiredLocks 釋放到期時間早於 before 的鎖定座位
func (f *Flight) ReleaseExpiredLocks(before time.Time) ([]SeatLock, error) {
	released := f.SeatMap.ReleaseExpired(before)
	f.AvailableSeats += len(released)
	return released, f.CheckInvariant()
}

func (f *Flight) ConfirmSeats(seatIDs []string, lockID string) error {
	if err := f.SeatMap.Confirm(seatIDs, lockID); err != nil {
		return err
	}
	return f.CheckInvariant()
}

func (f *Flight) VacateSeats(seatIDs []string) ([]string, error) {
	vacated := f.SeatMap.Vacate(seatIDs)
	f.AvailableSeats += len(vacated)
	return vacated, f.CheckInvariant()
}

func (f *Flight) Clone() *Flight {
	c := *f
	if f.SeatMap != nil {
		c.SeatMap = f.SeatMap.Clone()
	}
	return &c
}

// FlightResponse 航班詳細資訊，附上可選座位
type FlightResponse struct {
	*Flight
	AvailableSeatNumbers []string `json:"available_seat_numbers"`
}

func NewFlightResponse(f *Flight) FlightResponse {
	return FlightResponse{
		Flight:               f,
		AvailableSeatNumbers: f.SeatMap.SeatsWithStatus(SeatAvailable),
	}
}

// FlightSearchParams 查詢條件
type FlightSearchParams struct {
	Origin        string  `form:"origin" binding:"required,len=3"`
	Destination   string  `form:"destination" binding:"required,len=3"`
	DepartureDate string  `form:"departureDate" binding:"required,datetime=2006-01-02"`
	SortBy        string  `form:"sortBy" binding:"omitempty,oneof=price duration departure"`
	FilterPrice   float64 `form:"filterPrice" binding:"omitempty,gt=0"`
}

// PriceQuote 定價服務回傳的報價
type PriceQuote struct {
	Price       float64 `json:"price"`
	Multiplier  float64 `json:"multiplier"`
	DemandLevel string  `json:"demandLevel"`
}
