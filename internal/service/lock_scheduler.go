package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-gin-flight-booking/internal/metrics"
	"go-gin-flight-booking/internal/model"
	"go-gin-flight-booking/internal/repository"
	apperrors "go-gin-flight-booking/pkg/app_errors"
	"go-gin-flight-booking/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LockHandle describes one acquired group of seat locks.
type LockHandle struct {
	ID          string
	FlightID    string
	SeatNumbers []string
	ExpiresAt   time.Time
}

type LockScheduler interface {
	// Acquire 鎖定座位並排程 TTL 到期釋放
	Acquire(ctx context.Context, flightID string, seatIDs []string) (*LockHandle, error)
	// Disarm 取消 lockID 對這些座位的到期釋放；任何一個座位不屬於 lockID
	// (已過期、被他人重新鎖定或從未鎖定) 時回傳 false 且不做任何變更
	Disarm(flightID, lockID string, seatIDs []string) (expiresAt time.Time, ok bool)
	Shutdown()
}

type seatKey struct {
	flightID string
	seat     string
}

type activeLock struct {
	handle    LockHandle
	timer     *time.Timer
	remaining map[string]struct{}
}

type LockSchedulerImpl struct {
	flights repository.FlightRepository
	ttl     time.Duration
	metrics *metrics.Metrics

	mu     sync.Mutex
	owners map[seatKey]string
	locks  map[string]*activeLock
	closed bool
	wg     sync.WaitGroup
}

func NewLockScheduler(flights repository.FlightRepository, ttl time.Duration, m *metrics.Metrics) *LockSchedulerImpl {
	return &LockSchedulerImpl{
		flights: flights,
		ttl:     ttl,
		metrics: m,
		owners:  make(map[seatKey]string),
		locks:   make(map[string]*activeLock),
	}
}

func (s *LockSchedulerImpl) Acquire(ctx context.Context, flightID string, seatIDs []string) (*LockHandle, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: lock scheduler stopped", apperrors.ErrInternalServerError)
	}

	handle := LockHandle{
		ID:          uuid.New().String(),
		FlightID:    flightID,
		SeatNumbers: append([]string(nil), seatIDs...),
		ExpiresAt:   time.Now().Add(s.ttl).UTC(),
	}

	_, err := s.flights.Update(ctx, flightID, func(f *model.Flight) error {
		return f.LockSeats(seatIDs, handle.ID, handle.ExpiresAt)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrSeatUnavailable) {
			s.metrics.SeatLocksTotal.WithLabelValues("unavailable").Inc()
		} else {
			s.metrics.SeatLocksTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	lock := &activeLock{
		handle:    handle,
		remaining: make(map[string]struct{}, len(seatIDs)),
	}

	s.mu.Lock()
	for _, seat := range seatIDs {
		s.owners[seatKey{flightID, seat}] = handle.ID
		lock.remaining[seat] = struct{}{}
	}
	s.locks[handle.ID] = lock
	lock.timer = time.AfterFunc(s.ttl, func() { s.expire(handle.ID) })
	s.mu.Unlock()

	s.metrics.SeatLocksTotal.WithLabelValues("success").Inc()
	logger.WithComponent("scheduler").Debug("seats locked",
		zap.String("lock_id", handle.ID),
		zap.String("flight_id", flightID),
		zap.Strings("seats", seatIDs),
		zap.Time("expires_at", handle.ExpiresAt),
	)

	out := handle
	return &out, nil
}

func (s *LockSchedulerImpl) Disarm(flightID, lockID string, seatIDs []string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(seatIDs) == 0 || lockID == "" {
		return time.Time{}, false
	}
	lock, ok := s.locks[lockID]
	if !ok || lock.handle.FlightID != flightID {
		return time.Time{}, false
	}
	for _, seat := range seatIDs {
		if s.owners[seatKey{flightID, seat}] != lockID {
			return time.Time{}, false
		}
		if _, held := lock.remaining[seat]; !held {
			return time.Time{}, false
		}
	}

	for _, seat := range seatIDs {
		delete(s.owners, seatKey{flightID, seat})
		delete(lock.remaining, seat)
	}
	if len(lock.remaining) == 0 {
		lock.timer.Stop()
		delete(s.locks, lockID)
	}
	return lock.handle.ExpiresAt, true
}

// expire 在計時器觸發時執行：只釋放仍屬於這把鎖且仍為 locked 的座位
func (s *LockSchedulerImpl) expire(lockID string) {
	s.mu.Lock()
	lock, ok := s.locks[lockID]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.locks, lockID)

	seats := make([]string, 0, len(lock.remaining))
	for _, seat := range lock.handle.SeatNumbers {
		if _, owned := lock.remaining[seat]; !owned {
			continue
		}
		key := seatKey{lock.handle.FlightID, seat}
		if s.owners[key] == lockID {
			delete(s.owners, key)
			seats = append(seats, seat)
		}
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if len(seats) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var released []string
	_, err := s.flights.Update(ctx, lock.handle.FlightID, func(f *model.Flight) error {
		var err error
		released, err = f.ReleaseSeats(seats, lockID)
		return err
	})

	log := logger.WithComponent("scheduler")
	if err != nil {
		log.Error("release expired seat lock failed",
			zap.String("lock_id", lockID),
			zap.String("flight_id", lock.handle.FlightID),
			zap.Strings("seats", seats),
			zap.Error(err),
		)
		return
	}
	if len(released) > 0 {
		s.metrics.SeatLockExpirationsTotal.Inc()
	}
	log.Info("seat lock expired",
		zap.String("lock_id", lockID),
		zap.String("flight_id", lock.handle.FlightID),
		zap.Strings("released", released),
	)
}

// Shutdown stops every pending timer and waits for releases already running.
// Seats still locked stay locked in storage until ReleaseExpiredLocks frees
// them after their expiry.
func (s *LockSchedulerImpl) Shutdown() {
	s.mu.Lock()
	s.closed = true
	for id, lock := range s.locks {
		lock.timer.Stop()
		delete(s.locks, id)
	}
	s.owners = make(map[seatKey]string)
	s.mu.Unlock()

	s.wg.Wait()
}

// ReleaseExpiredLocks 釋放儲存中到期超過 grace 的座位鎖，回傳釋放的座位數。
// 計時器因重啟或釋放失敗而遺失時由此補上。
func (s *LockSchedulerImpl) ReleaseExpiredLocks(ctx context.Context, grace time.Duration) (int, error) {
	before := time.Now().Add(-grace)

	flightIDs, err := s.flights.ListWithExpiredLocks(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("list flights with expired locks: %w", err)
	}

	log := logger.WithComponent("scheduler")
	total := 0
	for _, flightID := range flightIDs {
		var released []model.SeatLock
		_, err := s.flights.Update(ctx, flightID, func(f *model.Flight) error {
			var err error
			released, err = f.ReleaseExpiredLocks(before)
			return err
		})
		if err != nil {
			log.Error("release expired seat locks failed", zap.String("flight_id", flightID), zap.Error(err))
			continue
		}

		lockIDs := s.forget(flightID, released)
		s.metrics.SeatLockExpirationsTotal.Add(float64(lockIDs))
		total += len(released)
		log.Info("expired seat locks released",
			zap.String("flight_id", flightID),
			zap.Int("seats", len(released)),
		)
	}
	return total, nil
}

// forget 移除已在儲存中釋放的座位擁有權，回傳涉及的鎖數量
func (s *LockSchedulerImpl) forget(flightID string, released []model.SeatLock) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockIDs := make(map[string]struct{})
	for _, l := range released {
		lockIDs[l.LockID] = struct{}{}

		key := seatKey{flightID, l.Seat}
		if s.owners[key] != l.LockID {
			continue
		}
		delete(s.owners, key)
		if lock, ok := s.locks[l.LockID]; ok {
			delete(lock.remaining, l.Seat)
			if len(lock.remaining) == 0 {
				lock.timer.Stop()
				delete(s.locks, l.LockID)
			}
		}
	}
	return len(lockIDs)
}

// PendingLocks 目前尚未到期也未解除的鎖數量
func (s *LockSchedulerImpl) PendingLocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
