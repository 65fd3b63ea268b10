package mocks

import (
	"context"

	"go-gin-flight-booking/internal/model"

	"github.com/stretchr/testify/mock"
)

type FlightServiceMock struct {
	mock.Mock
}

func NewFlightServiceMock() *FlightServiceMock {
	return &FlightServiceMock{}
}

func (m *FlightServiceMock) CreateFlight(ctx context.Context, params model.CreateFlightParams) (*model.Flight, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Flight), args.Error(1)
}

func (m *FlightServiceMock) GetFlight(ctx context.Context, id string) (*model.FlightResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FlightResponse), args.Error(1)
}

func (m *FlightServiceMock) SearchFlights(ctx context.Context, params model.FlightSearchParams) ([]*model.Flight, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Flight), args.Error(1)
}

func (m *FlightServiceMock) GetFareHistory(ctx context.Context, flightID string) ([]*model.FareHistory, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.FareHistory), args.Error(1)
}
