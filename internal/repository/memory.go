package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go-gin-flight-booking/internal/model"
	apperrors "go-gin-flight-booking/pkg/app_errors"
)

// In-memory stores used by STORAGE_DRIVER=memory and by service tests. Every
// read returns a copy so callers never share state with the store.

type MemoryFlightRepository struct {
	mu      sync.RWMutex
	flights map[string]*model.Flight
	// 每個航班一把鎖，Update 在此序列化
	locks map[string]*sync.Mutex
}

func NewMemoryFlightRepository() *MemoryFlightRepository {
	return &MemoryFlightRepository{
		flights: make(map[string]*model.Flight),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *MemoryFlightRepository) Create(ctx context.Context, flight *model.Flight) (*model.Flight, error) {
	if err := flight.CheckInvariant(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.flights[flight.ID]; exists {
		return nil, fmt.Errorf("%w: flight %s already exists", apperrors.ErrInvalidInput, flight.ID)
	}
	r.flights[flight.ID] = flight.Clone()
	r.locks[flight.ID] = &sync.Mutex{}
	return flight.Clone(), nil
}

func (r *MemoryFlightRepository) FindByID(ctx context.Context, id string) (*model.Flight, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flight, ok := r.flights[id]
	if !ok {
		return nil, apperrors.ErrFlightNotFound
	}
	return flight.Clone(), nil
}

func (r *MemoryFlightRepository) Search(ctx context.Context, origin, destination string, from, to time.Time) ([]*model.Flight, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flights := make([]*model.Flight, 0)
	for _, f := range r.flights {
		if !f.IsActive || f.Origin != origin || f.Destination != destination {
			continue
		}
		if f.DepartureTime.Before(from) || f.DepartureTime.After(to) {
			continue
		}
		flights = append(flights, f.Clone())
	}
	sort.Slice(flights, func(i, j int) bool {
		return flights[i].DepartureTime.Before(flights[j].DepartureTime)
	})
	return flights, nil
}

func (r *MemoryFlightRepository) Update(ctx context.Context, id string, fn FlightUpdateFunc) (*model.Flight, error) {
	r.mu.RLock()
	lock, ok := r.locks[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrFlightNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	working := r.flights[id].Clone()
	r.mu.RUnlock()

	// fn 失敗時不提交，原狀態保持不變
	if err := fn(working); err != nil {
		return nil, err
	}
	if err := working.CheckInvariant(); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	r.flights[id] = working
	r.mu.Unlock()

	return working.Clone(), nil
}

func (r *MemoryFlightRepository) ListWithExpiredLocks(ctx context.Context, before time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0)
	for id, f := range r.flights {
		if f.SeatMap.HasExpiredLocks(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*model.Booking
	byPNR    map[string]string
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings: make(map[string]*model.Booking),
		byPNR:    make(map[string]string),
	}
}

func (r *MemoryBookingRepository) Create(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byPNR[booking.PNR]; exists {
		return nil, apperrors.ErrDuplicatePNR
	}
	if _, exists := r.bookings[booking.ID]; exists {
		return nil, fmt.Errorf("%w: booking %s already exists", apperrors.ErrInvalidInput, booking.ID)
	}

	stored := booking.Clone()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.bookings[stored.ID] = stored
	r.byPNR[stored.PNR] = stored.ID
	return stored.Clone(), nil
}

func (r *MemoryBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	booking, ok := r.bookings[id]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}
	return booking.Clone(), nil
}

func (r *MemoryBookingRepository) FindByPNR(ctx context.Context, pnr string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPNR[pnr]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}
	return r.bookings[id].Clone(), nil
}

func (r *MemoryBookingRepository) FindByUserID(ctx context.Context, userID string) ([]*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bookings := make([]*model.Booking, 0)
	for _, b := range r.bookings {
		if b.UserID == userID {
			bookings = append(bookings, b.Clone())
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})
	return bookings, nil
}

func (r *MemoryBookingRepository) ExistsByPNR(ctx context.Context, pnr string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byPNR[pnr]
	return ok, nil
}

func (r *MemoryBookingRepository) Update(ctx context.Context, id string, fn BookingUpdateFunc) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.bookings[id]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	r.bookings[id] = working
	return working.Clone(), nil
}

type MemoryCancellationLogRepository struct {
	mu   sync.RWMutex
	logs []*model.CancellationLog
}

func NewMemoryCancellationLogRepository() *MemoryCancellationLogRepository {
	return &MemoryCancellationLogRepository{}
}

func (r *MemoryCancellationLogRepository) Create(ctx context.Context, log *model.CancellationLog) (*model.CancellationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *log
	r.logs = append(r.logs, &stored)
	created := stored
	return &created, nil
}

func (r *MemoryCancellationLogRepository) FindByBookingID(ctx context.Context, bookingID string) ([]*model.CancellationLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	logs := make([]*model.CancellationLog, 0)
	for _, l := range r.logs {
		if l.BookingID == bookingID {
			c := *l
			logs = append(logs, &c)
		}
	}
	return logs, nil
}

type MemoryFareHistoryRepository struct {
	mu      sync.RWMutex
	records map[string][]model.FareHistory
}

func NewMemoryFareHistoryRepository() *MemoryFareHistoryRepository {
	return &MemoryFareHistoryRepository{
		records: make(map[string][]model.FareHistory),
	}
}

func (r *MemoryFareHistoryRepository) Create(ctx context.Context, record *model.FareHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[record.FlightID] = append(r.records[record.FlightID], *record)
	return nil
}

func (r *MemoryFareHistoryRepository) ListByFlightID(ctx context.Context, flightID string, limit int) ([]*model.FareHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.records[flightID]
	result := make([]*model.FareHistory, 0, len(history))
	// 由新到舊
	for i := len(history) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		h := history[i]
		result = append(result, &h)
	}
	return result, nil
}
