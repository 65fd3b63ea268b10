package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go-gin-flight-booking/internal/external"
	"go-gin-flight-booking/internal/model"
	"go-gin-flight-booking/internal/repository"
	apperrors "go-gin-flight-booking/pkg/app_errors"
	"go-gin-flight-booking/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const fareHistoryLimit = 100

type FlightService interface {
	CreateFlight(ctx context.Context, params model.CreateFlightParams) (*model.Flight, error)
	GetFlight(ctx context.Context, id string) (*model.FlightResponse, error)
	// SearchFlights 查詢當日航班，逐一向定價服務查價並記錄票價歷史
	SearchFlights(ctx context.Context, params model.FlightSearchParams) ([]*model.Flight, error)
	GetFareHistory(ctx context.Context, flightID string) ([]*model.FareHistory, error)
}

type FlightServiceImpl struct {
	flights     repository.FlightRepository
	fareHistory repository.FareHistoryRepository
	oracle      external.PricingOracle
	now         func() time.Time
}

func NewFlightService(
	flights repository.FlightRepository,
	fareHistory repository.FareHistoryRepository,
	oracle external.PricingOracle,
) FlightService {
	return &FlightServiceImpl{
		flights:     flights,
		fareHistory: fareHistory,
		oracle:      oracle,
		now:         time.Now,
	}
}

func (s *FlightServiceImpl) CreateFlight(ctx context.Context, params model.CreateFlightParams) (*model.Flight, error) {
	flight, err := model.NewFlight(uuid.New().String(), params)
	if err != nil {
		return nil, err
	}
	return s.flights.Create(ctx, flight)
}

func (s *FlightServiceImpl) GetFlight(ctx context.Context, id string) (*model.FlightResponse, error) {
	flight, err := s.flights.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := model.NewFlightResponse(flight)
	return &resp, nil
}

func (s *FlightServiceImpl) SearchFlights(ctx context.Context, params model.FlightSearchParams) ([]*model.Flight, error) {
	day, err := time.Parse("2006-01-02", params.DepartureDate)
	if err != nil {
		return nil, fmt.Errorf("%w: departureDate must be YYYY-MM-DD", apperrors.ErrInvalidInput)
	}
	from := day.UTC()
	to := from.Add(24*time.Hour - time.Second)

	flights, err := s.flights.Search(ctx, params.Origin, params.Destination, from, to)
	if err != nil {
		return nil, err
	}

	priced := make([]*model.Flight, 0, len(flights))
	for _, flight := range flights {
		s.applyPrice(ctx, flight)
		if params.FilterPrice > 0 && flight.CurrentDynamicPrice > params.FilterPrice {
			continue
		}
		priced = append(priced, flight)
	}

	sortFlights(priced, params.SortBy)
	return priced, nil
}

// applyPrice 查價失敗時退回基本票價；查價結果不影響搜尋成敗
func (s *FlightServiceImpl) applyPrice(ctx context.Context, flight *model.Flight) {
	log := logger.WithComponent("pricing")
	quote, err := s.oracle.Quote(ctx, flight)
	if err != nil {
		log.Warn("dynamic price unavailable, using base fare",
			zap.String("flight_id", flight.ID),
			zap.Error(err),
		)
		quote = model.PriceQuote{Price: flight.BaseFare, Multiplier: 1, DemandLevel: model.DemandLevelUnknown}
		flight.CurrentDynamicPrice = flight.BaseFare
	} else if quote.Price != flight.CurrentDynamicPrice {
		flight.CurrentDynamicPrice = quote.Price
		_, err := s.flights.Update(ctx, flight.ID, func(f *model.Flight) error {
			f.CurrentDynamicPrice = quote.Price
			return nil
		})
		if err != nil {
			log.Warn("persist dynamic price failed", zap.String("flight_id", flight.ID), zap.Error(err))
		}
	}

	s.recordFare(ctx, flight, quote)
}

func (s *FlightServiceImpl) recordFare(ctx context.Context, flight *model.Flight, quote model.PriceQuote) {
	now := s.now()
	record := &model.FareHistory{
		ID:                       uuid.New().String(),
		FlightID:                 flight.ID,
		Timestamp:                now.UTC(),
		BaseFare:                 flight.BaseFare,
		CalculatedFare:           quote.Price,
		DynamicMultiplier:        quote.Multiplier,
		RemainingSeatsPercentage: flight.RemainingSeatsPercentage(),
		HoursUntilDeparture:      flight.HoursUntilDeparture(now),
		DemandLevel:              quote.DemandLevel,
		SeatLockCount:            len(flight.SeatMap.SeatsWithStatus(model.SeatLocked)),
	}
	if err := s.fareHistory.Create(ctx, record); err != nil {
		logger.WithComponent("pricing").Warn("record fare history failed",
			zap.String("flight_id", flight.ID),
			zap.Error(err),
		)
	}
}

func sortFlights(flights []*model.Flight, sortBy string) {
	var less func(a, b *model.Flight) bool
	switch sortBy {
	case "duration":
		less = func(a, b *model.Flight) bool { return a.Duration < b.Duration }
	case "departure":
		less = func(a, b *model.Flight) bool { return a.DepartureTime.Before(b.DepartureTime) }
	default:
		less = func(a, b *model.Flight) bool { return a.CurrentDynamicPrice < b.CurrentDynamicPrice }
	}
	sort.SliceStable(flights, func(i, j int) bool { return less(flights[i], flights[j]) })
}

func (s *FlightServiceImpl) GetFareHistory(ctx context.Context, flightID string) ([]*model.FareHistory, error) {
	if _, err := s.flights.FindByID(ctx, flightID); err != nil {
		return nil, err
	}
	return s.fareHistory.ListByFlightID(ctx, flightID, fareHistoryLimit)
}
