package service

import (
	"context"
	"testing"
	"time"

	"go-gin-flight-booking/internal/metrics"
	"go-gin-flight-booking/internal/model"
	"go-gin-flight-booking/internal/repository"
	apperrors "go-gin-flight-booking/pkg/app_errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seatStatus(t *testing.T, repo repository.FlightRepository, flightID, seat string) model.SeatStatus {
	t.Helper()
	f, err := repo.FindByID(context.Background(), flightID)
	require.NoError(t, err)
	st, ok := f.SeatMap.Status(seat)
	require.True(t, ok)
	return st
}

func TestLockScheduler_ExpiryReleasesSeats(t *testing.T) {
	flights := repository.NewMemoryFlightRepository()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	scheduler := NewLockScheduler(flights, 30*time.Millisecond, m)
	defer scheduler.Shutdown()
	flight := createTestFlight(t, flights, 6, time.Now().Add(24*time.Hour))

	handle, err := scheduler.Acquire(context.Background(), flight.ID, []string{"1A", "1B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1A", "1B"}, handle.SeatNumbers)
	assert.Equal(t, 1, scheduler.PendingLocks())

	assert.Eventually(t, func() bool {
		return seatStatus(t, flights, flight.ID, "1A") == model.SeatAvailable &&
			seatStatus(t, flights, flight.ID, "1B") == model.SeatAvailable
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.SeatLockExpirationsTotal) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, scheduler.PendingLocks())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SeatLocksTotal.WithLabelValues("success")))
}

func TestLockScheduler_DisarmStopsExpiry(t *testing.T) {
	flights := repository.NewMemoryFlightRepository()
	scheduler := NewLockScheduler(flights, 30*time.Millisecond, metrics.NewNop())
	defer scheduler.Shutdown()
	flight := createTestFlight(t, flights, 6, time.Now().Add(24*time.Hour))

	handle, err := scheduler.Acquire(context.Background(), flight.ID, []string{"1A"})
	require.NoError(t, err)

	expiresAt, ok := scheduler.Disarm(flight.ID, handle.ID, []string{"1A"})
	require.True(t, ok)
	assert.Equal(t, handle.ExpiresAt, expiresAt)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, model.SeatLocked, seatStatus(t, flights, flight.ID, "1A"))

	_, ok = scheduler.Disarm(flight.ID, handle.ID, []string{"1A"})
	assert.False(t, ok, "already disarmed")
}

func TestLockScheduler_DisarmRequiresEverySeat(t *testing.T) {
	flights := repository.NewMemoryFlightRepository()
	scheduler := NewLockScheduler(flights, time.Minute, metrics.NewNop())
	defer scheduler.Shutdown()
	flight := createTestFlight(t, flights, 6, time.Now().Add(24*time.Hour))

	handle, err := scheduler.Acquire(context.Background(), flight.ID, []string{"1A"})
	require.NoError(t, err)
	other, err := scheduler.Acquire(context.Background(), flight.ID, []string{"1B"})
	require.NoError(t, err)

	_, ok := scheduler.Disarm(flight.ID, handle.ID, []string{"1A", "1B"})
	assert.False(t, ok, "1B belongs to another lock")

	_, ok = scheduler.Disarm(flight.ID, other.ID, []string{"1A"})
	assert.False(t, ok)

	_, ok = scheduler.Disarm("other-flight", handle.ID, []string{"1A"})
	assert.False(t, ok)

	// 1A 仍在排程中
	_, ok = scheduler.Disarm(flight.ID, handle.ID, []string{"1A"})
	assert.True(t, ok)

	_, ok = scheduler.Disarm(flight.ID, other.ID, nil)
	assert.False(t, ok)
	assert.Equal(t, 1, scheduler.PendingLocks())
}

// 部分座位解除後，到期只釋放剩下的座位
func TestLockScheduler_PartialDisarm(t *testing.T) {
	flights := repository.NewMemoryFlightRepository()
	scheduler := NewLockScheduler(flights, 30*time.Millisecond, metrics.NewNop())
	defer scheduler.Shutdown()
	flight := createTestFlight(t, flights, 6, time.Now().Add(24*time.Hour))

	handle, err := scheduler.Acquire(context.Background(), flight.ID, []string{"1A", "1B"})
	require.NoError(t, err)
	_, ok := scheduler.Disarm(flight.ID, handle.ID, []string{"1A"})
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		return seatStatus(t, flights, flight.ID, "1B") == model.SeatAvailable
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.SeatLocked, seatStatus(t, flights, flight.ID, "1A"))
}

func TestLockScheduler_ExpiryLeavesBookedSeats(t *testing.T) {
	flights := repository.NewMemoryFlightRepository()
	scheduler := NewLockScheduler(flights, 50*time.Millisecond, metrics.NewNop())
	defer scheduler.Shutdown()
	flight := createTestFlight(t, flights, 6, time.Now().Add(24*time.Hour))
	ctx := context.Background()

	handle, err := scheduler.Acquire(ctx, flight.ID, []string{"2A"})
	require.NoError(t, err)

	// 計時器仍在，但座位已被確認
	_, err = flights.Update(ctx, flight.ID, func(f *model.Flight) error {
		return f.ConfirmSeats([]string{"2A"}, handle.ID)
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return scheduler.PendingLocks() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, model.SeatBooked, seatStatus(t, flights, flight.ID, "2A"))

	stored, err := flights.FindByID(ctx, flight.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.AvailableSeats)
}

func TestLockScheduler_AcquireConflict(t *testing.T) {
	flights := repository.NewMemoryFlightRepository()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	scheduler := NewLockScheduler(flights, time.Minute, m)
	defer scheduler.Shutdown()
	flight := createTestFlight(t, flights, 6, time.Now().Add(24*time.Hour))

	_, err := scheduler.Acquire(context.Background(), flight.ID, []string{"1A"})
	require.NoError(t, err)

	_, err = scheduler.Acquire(context.Background(), flight.ID, []string{"1A", "1C"})
	assert.ErrorIs(t, err, apperrors.ErrSeatUnavailable)
	assert.Equal(t, 1, scheduler.PendingLocks())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SeatLocksTotal.WithLabelValues("unavailable")))
}

func TestLockScheduler_Shutdown(t *testing.T) {
	flights := repository.NewMemoryFlightRepository()
	scheduler := NewLockScheduler(flights, 30*time.Millisecond, metrics.NewNop())
	flight := createTestFlight(t, flights, 6, time.Now().Add(24*time.Hour))

	_, err := scheduler.Acquire(context.Background(), flight.ID, []string{"1A"})
	require.NoError(t, err)

	scheduler.Shutdown()
	assert.Equal(t, 0, scheduler.PendingLocks())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, model.SeatLocked, seatStatus(t, flights, flight.ID, "1A"), "no release after shutdown")

	_, err = scheduler.Acquire(context.Background(), flight.ID, []string{"1B"})
	assert.ErrorIs(t, err, apperrors.ErrInternalServerError)
}

// 鎖到期後座位被重新選取，舊鎖不能解除或釋放新鎖
func TestLockScheduler_ExpiredLockCannotDisarmNewLock(t *testing.T) {
	flights := repository.NewMemoryFlightRepository()
	scheduler := NewLockScheduler(flights, 30*time.Millisecond, metrics.NewNop())
	defer scheduler.Shutdown()
	flight := createTestFlight(t, flights, 6, time.Now().Add(24*time.Hour))
	ctx := context.Background()

	first, err := scheduler.Acquire(ctx, flight.ID, []string{"1A"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return seatStatus(t, flights, flight.ID, "1A") == model.SeatAvailable
	}, time.Second, 5*time.Millisecond)

	scheduler.ttl = time.Minute
	second, err := scheduler.Acquire(ctx, flight.ID, []string{"1A"})
	require.NoError(t, err)

	_, ok := scheduler.Disarm(flight.ID, first.ID, []string{"1A"})
	assert.False(t, ok)

	expiresAt, ok := scheduler.Disarm(flight.ID, second.ID, []string{"1A"})
	require.True(t, ok)
	assert.Equal(t, second.ExpiresAt, expiresAt)
}

func TestLockScheduler_ReleaseExpiredLocks(t *testing.T) {
	flights := repository.NewMemoryFlightRepository()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	scheduler := NewLockScheduler(flights, time.Minute, m)
	defer scheduler.Shutdown()
	flight := createTestFlight(t, flights, 6, time.Now().Add(24*time.Hour))
	ctx := context.Background()

	// 重啟前留下的鎖：儲存中已過期，沒有計時器
	_, err := flights.Update(ctx, flight.ID, func(f *model.Flight) error {
		if err := f.LockSeats([]string{"1A", "1B"}, "orphan", time.Now().Add(-time.Hour)); err != nil {
			return err
		}
		return f.LockSeats([]string{"1C"}, "recent", time.Now().Add(-time.Second))
	})
	require.NoError(t, err)

	live, err := scheduler.Acquire(ctx, flight.ID, []string{"2A"})
	require.NoError(t, err)

	released, err := scheduler.ReleaseExpiredLocks(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, released)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SeatLockExpirationsTotal))

	assert.Equal(t, model.SeatAvailable, seatStatus(t, flights, flight.ID, "1A"))
	assert.Equal(t, model.SeatAvailable, seatStatus(t, flights, flight.ID, "1B"))
	assert.Equal(t, model.SeatLocked, seatStatus(t, flights, flight.ID, "1C"), "within grace")
	assert.Equal(t, model.SeatLocked, seatStatus(t, flights, flight.ID, "2A"))

	stored, err := flights.FindByID(ctx, flight.ID)
	require.NoError(t, err)
	require.NoError(t, stored.CheckInvariant())

	released, err = scheduler.ReleaseExpiredLocks(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	_, ok := scheduler.Disarm(flight.ID, live.ID, []string{"2A"})
	assert.True(t, ok)
}

// 儲存中先被掃除的座位也要從排程移除，避免計時器之後誤判
func TestLockScheduler_ReleaseExpiredLocksForgetsOwnership(t *testing.T) {
	flights := repository.NewMemoryFlightRepository()
	scheduler := NewLockScheduler(flights, time.Minute, metrics.NewNop())
	defer scheduler.Shutdown()
	flight := createTestFlight(t, flights, 6, time.Now().Add(24*time.Hour))
	ctx := context.Background()

	handle, err := scheduler.Acquire(ctx, flight.ID, []string{"1A"})
	require.NoError(t, err)

	// 儲存中的到期時間提早，模擬計時器遺失
	_, err = flights.Update(ctx, flight.ID, func(f *model.Flight) error {
		if _, err := f.ReleaseSeats([]string{"1A"}, handle.ID); err != nil {
			return err
		}
		return f.LockSeats([]string{"1A"}, handle.ID, time.Now().Add(-time.Hour))
	})
	require.NoError(t, err)

	released, err := scheduler.ReleaseExpiredLocks(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, 0, scheduler.PendingLocks())

	_, ok := scheduler.Disarm(flight.ID, handle.ID, []string{"1A"})
	assert.False(t, ok)
}
