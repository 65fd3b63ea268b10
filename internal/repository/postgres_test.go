package repository_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"go-gin-flight-booking/config"
	"go-gin-flight-booking/internal/database"
	"go-gin-flight-booking/internal/model"
	"go-gin-flight-booking/internal/repository"
	apperrors "go-gin-flight-booking/pkg/app_errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDBOnce sync.Once
	testDB     *pgxpool.Pool
	testDBErr  error
)

// getTestDB 連線到 docker 測試資料庫 (port 5433)；未設定 INTEGRATION 時跳過
func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run postgres repository tests")
	}

	testDBOnce.Do(func() {
		cfg := config.LoadTestConfig()
		testDB, testDBErr = database.InitDatabase(&cfg.Database)
		if testDBErr != nil {
			return
		}
		testDBErr = database.EnsureSchema(context.Background(), testDB)
	})
	require.NoError(t, testDBErr)

	_, err := testDB.Exec(context.Background(), "TRUNCATE fare_history, cancellation_logs, bookings, flights CASCADE")
	require.NoError(t, err)
	return testDB
}

func TestFlightRepository_Postgres(t *testing.T) {
	pool := getTestDB(t)
	repo := repository.NewFlightRepository(pool)
	ctx := context.Background()

	departure := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	created, err := repo.Create(ctx, newFlight(t, uuid.NewString(), 12, departure))
	require.NoError(t, err)
	assert.Equal(t, 12, created.AvailableSeats)
	assert.Equal(t, 12, created.SeatMap.Len())

	t.Run("Update locks seats", func(t *testing.T) {
		updated, err := repo.Update(ctx, created.ID, func(f *model.Flight) error {
			return f.LockSeats([]string{"1A", "2C"}, "lock-1", departure.Add(-71*time.Hour))
		})
		require.NoError(t, err)
		assert.Equal(t, 10, updated.AvailableSeats)

		found, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"1A", "2C"}, found.SeatMap.SeatsWithStatus(model.SeatLocked))
		assert.True(t, found.SeatMap.LockedBy([]string{"1A", "2C"}, "lock-1"))
		require.NoError(t, found.CheckInvariant())
	})

	t.Run("Rejected update rolls back", func(t *testing.T) {
		_, err := repo.Update(ctx, created.ID, func(f *model.Flight) error {
			return f.LockSeats([]string{"1A"}, "lock-2", departure)
		})
		assert.ErrorIs(t, err, apperrors.ErrSeatUnavailable)

		found, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, found.AvailableSeats)
	})

	t.Run("List flights with expired locks", func(t *testing.T) {
		ids, err := repo.ListWithExpiredLocks(ctx, departure.Add(-72*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, ids)

		ids, err = repo.ListWithExpiredLocks(ctx, departure.Add(-70*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{created.ID}, ids)
	})

	t.Run("Search", func(t *testing.T) {
		flights, err := repo.Search(ctx, "LHR", "JFK", departure.Add(-time.Hour), departure.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, flights, 1)
		assert.Equal(t, created.ID, flights[0].ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, apperrors.ErrFlightNotFound)
	})
}

func TestBookingRepository_Postgres(t *testing.T) {
	pool := getTestDB(t)
	flights := repository.NewFlightRepository(pool)
	repo := repository.NewBookingRepository(pool)
	ctx := context.Background()

	flight, err := flights.Create(ctx, newFlight(t, uuid.NewString(), 6, time.Now().Add(48*time.Hour)))
	require.NoError(t, err)

	booking := &model.Booking{
		ID:              uuid.NewString(),
		PNR:             "QX7K2M",
		UserID:          "user-1",
		FlightID:        flight.ID,
		SeatNumbers:     []string{"1A", "1B"},
		Passengers:      []model.Passenger{{Name: "Ada Lovelace"}, {Name: "Charles Babbage"}},
		PricePaid:       840,
		BaseFarePerSeat: 420,
		Status:          model.BookingStatusPending,
		PaymentStatus:   model.PaymentStatusCompleted,
		TransactionID:   "TXN_0123456789ABCDEF",
		SeatLockExpiry:  time.Now().Add(2 * time.Minute),
	}

	created, err := repo.Create(ctx, booking)
	require.NoError(t, err)
	assert.Equal(t, []string{"1A", "1B"}, created.SeatNumbers)
	assert.Len(t, created.Passengers, 2)

	t.Run("Duplicate PNR", func(t *testing.T) {
		dup := booking.Clone()
		dup.ID = uuid.NewString()
		_, err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, apperrors.ErrDuplicatePNR)
	})

	t.Run("Cancel through Update", func(t *testing.T) {
		updated, err := repo.Update(ctx, created.ID, func(b *model.Booking) error {
			return b.Cancel(75, 630, "schedule change", time.Now())
		})
		require.NoError(t, err)
		assert.Equal(t, model.BookingStatusCancelled, updated.Status)
		require.NotNil(t, updated.RefundAmount)
		assert.Equal(t, 630.0, *updated.RefundAmount)

		byPNR, err := repo.FindByPNR(ctx, "QX7K2M")
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusRefunded, byPNR.PaymentStatus)
	})

	t.Run("FindByUserID", func(t *testing.T) {
		list, err := repo.FindByUserID(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}
