package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-gin-flight-booking/internal/model"
	"go-gin-flight-booking/internal/repository"
	apperrors "go-gin-flight-booking/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOracle 依航班 ID 回傳固定報價；未列出的航班視為定價服務失敗
type stubOracle struct {
	mu     sync.Mutex
	quotes map[string]model.PriceQuote
	calls  int
}

func (o *stubOracle) Quote(ctx context.Context, f *model.Flight) (model.PriceQuote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	q, ok := o.quotes[f.ID]
	if !ok {
		return model.PriceQuote{}, errors.New("pricing service unavailable")
	}
	return q, nil
}

type flightFixture struct {
	flights     *repository.MemoryFlightRepository
	fareHistory *repository.MemoryFareHistoryRepository
	oracle      *stubOracle
	service     *FlightServiceImpl
}

func newFlightFixture() *flightFixture {
	fx := &flightFixture{
		flights:     repository.NewMemoryFlightRepository(),
		fareHistory: repository.NewMemoryFareHistoryRepository(),
		oracle:      &stubOracle{quotes: map[string]model.PriceQuote{}},
	}
	fx.service = NewFlightService(fx.flights, fx.fareHistory, fx.oracle).(*FlightServiceImpl)
	return fx
}

func (fx *flightFixture) addFlight(t *testing.T, departure time.Time, duration time.Duration, baseFare float64) *model.Flight {
	t.Helper()
	flight, err := fx.service.CreateFlight(context.Background(), model.CreateFlightParams{
		FlightNumber:  "VS3",
		Airline:       "Virgin Atlantic",
		Origin:        "LHR",
		Destination:   "JFK",
		DepartureTime: departure,
		ArrivalTime:   departure.Add(duration),
		BaseFare:      baseFare,
		TotalSeats:    30,
	})
	require.NoError(t, err)
	return flight
}

func TestFlightService_CreateFlight(t *testing.T) {
	fx := newFlightFixture()
	departure := time.Date(2026, 12, 1, 9, 0, 0, 0, time.UTC)

	flight := fx.addFlight(t, departure, 7*time.Hour+30*time.Minute, 400)
	assert.NotEmpty(t, flight.ID)
	assert.Equal(t, 450, flight.Duration)
	assert.Equal(t, 30, flight.AvailableSeats)
	assert.Equal(t, 320.0, flight.PriceFloor)
	assert.Equal(t, 800.0, flight.PriceCeiling)

	t.Run("Arrival before departure", func(t *testing.T) {
		_, err := fx.service.CreateFlight(context.Background(), model.CreateFlightParams{
			FlightNumber: "VS3", Airline: "Virgin Atlantic", Origin: "LHR", Destination: "JFK",
			DepartureTime: departure, ArrivalTime: departure.Add(-time.Hour), BaseFare: 400, TotalSeats: 30,
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestFlightService_GetFlight(t *testing.T) {
	fx := newFlightFixture()
	flight := fx.addFlight(t, time.Now().Add(48*time.Hour), 8*time.Hour, 420)

	_, err := fx.flights.Update(context.Background(), flight.ID, func(f *model.Flight) error {
		return f.LockSeats([]string{"1A"}, "lock-1", time.Now().Add(time.Minute))
	})
	require.NoError(t, err)

	resp, err := fx.service.GetFlight(context.Background(), flight.ID)
	require.NoError(t, err)
	assert.Len(t, resp.AvailableSeatNumbers, 29)
	assert.NotContains(t, resp.AvailableSeatNumbers, "1A")

	_, err = fx.service.GetFlight(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrFlightNotFound)
}

func TestFlightService_SearchFlights(t *testing.T) {
	fx := newFlightFixture()
	day := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	early := fx.addFlight(t, day.Add(6*time.Hour), 9*time.Hour, 500)
	late := fx.addFlight(t, day.Add(20*time.Hour), 7*time.Hour, 300)
	noon := fx.addFlight(t, day.Add(12*time.Hour), 8*time.Hour, 400)
	fx.addFlight(t, day.Add(30*time.Hour), 8*time.Hour, 100) // 隔天

	fx.oracle.quotes[early.ID] = model.PriceQuote{Price: 450, Multiplier: 0.9, DemandLevel: "low"}
	fx.oracle.quotes[late.ID] = model.PriceQuote{Price: 540, Multiplier: 1.8, DemandLevel: "high"}
	// noon 查價失敗，退回基本票價

	ctx := context.Background()

	t.Run("Default sort by price", func(t *testing.T) {
		flights, err := fx.service.SearchFlights(ctx, model.FlightSearchParams{
			Origin: "LHR", Destination: "JFK", DepartureDate: "2026-12-01",
		})
		require.NoError(t, err)
		require.Len(t, flights, 3)
		assert.Equal(t, []string{noon.ID, early.ID, late.ID}, ids(flights))
		assert.Equal(t, 400.0, flights[0].CurrentDynamicPrice)
		assert.Equal(t, 450.0, flights[1].CurrentDynamicPrice)
	})

	t.Run("Sort by duration", func(t *testing.T) {
		flights, err := fx.service.SearchFlights(ctx, model.FlightSearchParams{
			Origin: "LHR", Destination: "JFK", DepartureDate: "2026-12-01", SortBy: "duration",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{late.ID, noon.ID, early.ID}, ids(flights))
	})

	t.Run("Sort by departure", func(t *testing.T) {
		flights, err := fx.service.SearchFlights(ctx, model.FlightSearchParams{
			Origin: "LHR", Destination: "JFK", DepartureDate: "2026-12-01", SortBy: "departure",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{early.ID, noon.ID, late.ID}, ids(flights))
	})

	t.Run("Filter by max price", func(t *testing.T) {
		flights, err := fx.service.SearchFlights(ctx, model.FlightSearchParams{
			Origin: "LHR", Destination: "JFK", DepartureDate: "2026-12-01", FilterPrice: 450,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{noon.ID, early.ID}, ids(flights))
	})

	t.Run("No flights on route", func(t *testing.T) {
		flights, err := fx.service.SearchFlights(ctx, model.FlightSearchParams{
			Origin: "CDG", Destination: "JFK", DepartureDate: "2026-12-01",
		})
		require.NoError(t, err)
		assert.Empty(t, flights)
	})

	t.Run("Bad date", func(t *testing.T) {
		_, err := fx.service.SearchFlights(ctx, model.FlightSearchParams{
			Origin: "LHR", Destination: "JFK", DepartureDate: "01/12/2026",
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Dynamic price persisted", func(t *testing.T) {
		stored, err := fx.flights.FindByID(ctx, late.ID)
		require.NoError(t, err)
		assert.Equal(t, 540.0, stored.CurrentDynamicPrice)

		stored, err = fx.flights.FindByID(ctx, noon.ID)
		require.NoError(t, err)
		assert.Equal(t, 400.0, stored.CurrentDynamicPrice)
	})
}

func TestFlightService_FareHistory(t *testing.T) {
	fx := newFlightFixture()
	now := time.Date(2026, 11, 30, 9, 0, 0, 0, time.UTC)
	fx.service.now = func() time.Time { return now }
	ctx := context.Background()

	priced := fx.addFlight(t, time.Date(2026, 12, 1, 9, 0, 0, 0, time.UTC), 8*time.Hour, 400)
	fallback := fx.addFlight(t, time.Date(2026, 12, 1, 15, 0, 0, 0, time.UTC), 8*time.Hour, 350)
	fx.oracle.quotes[priced.ID] = model.PriceQuote{Price: 480, Multiplier: 1.2, DemandLevel: "high"}

	_, err := fx.service.SearchFlights(ctx, model.FlightSearchParams{Origin: "LHR", Destination: "JFK", DepartureDate: "2026-12-01"})
	require.NoError(t, err)
	_, err = fx.service.SearchFlights(ctx, model.FlightSearchParams{Origin: "LHR", Destination: "JFK", DepartureDate: "2026-12-01"})
	require.NoError(t, err)

	history, err := fx.service.GetFareHistory(ctx, priced.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 480.0, history[0].CalculatedFare)
	assert.Equal(t, 1.2, history[0].DynamicMultiplier)
	assert.Equal(t, "high", history[0].DemandLevel)
	assert.Equal(t, 24.0, history[0].HoursUntilDeparture)
	assert.Equal(t, 100.0, history[0].RemainingSeatsPercentage)

	history, err = fx.service.GetFareHistory(ctx, fallback.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 350.0, history[0].CalculatedFare)
	assert.Equal(t, 1.0, history[0].DynamicMultiplier)
	assert.Equal(t, model.DemandLevelUnknown, history[0].DemandLevel)

	_, err = fx.service.GetFareHistory(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrFlightNotFound)
}

func ids(flights []*model.Flight) []string {
	out := make([]string, 0, len(flights))
	for _, f := range flights {
		out = append(out, f.ID)
	}
	return out
}
