package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-gin-flight-booking/internal/cache"
	"go-gin-flight-booking/internal/handler"
	"go-gin-flight-booking/internal/model"
	"go-gin-flight-booking/internal/service/mocks"
	apperrors "go-gin-flight-booking/pkg/app_errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupFlightTestRouter(t *testing.T, mockService *mocks.FlightServiceMock) *gin.Engine {
	router := newTestRouter(t)
	handler.NewFlightHandler(mockService).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func testFlight(t *testing.T) *model.Flight {
	t.Helper()
	departure := time.Date(2026, 12, 1, 9, 0, 0, 0, time.UTC)
	f, err := model.NewFlight("fl-1", model.CreateFlightParams{
		FlightNumber:  "BA117",
		Airline:       "British Airways",
		Origin:        "LHR",
		Destination:   "JFK",
		DepartureTime: departure,
		ArrivalTime:   departure.Add(8 * time.Hour),
		BaseFare:      420,
		TotalSeats:    6,
	})
	require.NoError(t, err)
	return f
}

func TestSearchFlights(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockService := mocks.NewFlightServiceMock()
		router := setupFlightTestRouter(t, mockService)

		expected := model.FlightSearchParams{Origin: "LHR", Destination: "JFK", DepartureDate: "2026-12-01", SortBy: "duration"}
		mockService.On("SearchFlights", mock.Anything, expected).Return([]*model.Flight{testFlight(t)}, nil).Once()

		req, _ := http.NewRequest("GET", "/api/v1/flights/search?origin=LHR&destination=JFK&departureDate=2026-12-01&sortBy=duration", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1.0, decodeBody(t, w.Body)["count"])
		mockService.AssertExpectations(t)
	})

	t.Run("Failed - missing destination", func(t *testing.T) {
		mockService := mocks.NewFlightServiceMock()
		router := setupFlightTestRouter(t, mockService)

		req, _ := http.NewRequest("GET", "/api/v1/flights/search?origin=LHR&departureDate=2026-12-01", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "SearchFlights", mock.Anything, mock.Anything)
	})

	t.Run("Failed - unknown sort", func(t *testing.T) {
		mockService := mocks.NewFlightServiceMock()
		router := setupFlightTestRouter(t, mockService)

		req, _ := http.NewRequest("GET", "/api/v1/flights/search?origin=LHR&destination=JFK&departureDate=2026-12-01&sortBy=seats", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSearchFlights_RateLimited(t *testing.T) {
	mockService := mocks.NewFlightServiceMock()
	router := newTestRouter(t)
	handler.NewFlightHandler(mockService).
		WithSearchRateLimit(handler.RateLimit(cache.NewMemoryRateLimiter(1, time.Minute), handler.SearchRateLimitMessage)).
		RegisterRoutes(router.Group("/api/v1"))

	mockService.On("SearchFlights", mock.Anything, mock.Anything).Return([]*model.Flight{}, nil).Once()

	url := "/api/v1/flights/search?origin=LHR&destination=JFK&departureDate=2026-12-01"
	req, _ := http.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req, _ = http.NewRequest("GET", url, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// 限流不影響其他航班路由
	resp := model.NewFlightResponse(testFlight(t))
	mockService.On("GetFlight", mock.Anything, "fl-1").Return(&resp, nil).Once()
	req, _ = http.NewRequest("GET", "/api/v1/flights/fl-1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	mockService.AssertExpectations(t)
}

func TestGetFlight(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockService := mocks.NewFlightServiceMock()
		router := setupFlightTestRouter(t, mockService)

		resp := model.NewFlightResponse(testFlight(t))
		mockService.On("GetFlight", mock.Anything, "fl-1").Return(&resp, nil).Once()

		req, _ := http.NewRequest("GET", "/api/v1/flights/fl-1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w.Body)
		assert.Len(t, body["available_seat_numbers"], 6)
		mockService.AssertExpectations(t)
	})

	t.Run("Failed - not found", func(t *testing.T) {
		mockService := mocks.NewFlightServiceMock()
		router := setupFlightTestRouter(t, mockService)

		mockService.On("GetFlight", mock.Anything, "missing").Return(nil, apperrors.ErrFlightNotFound).Once()

		req, _ := http.NewRequest("GET", "/api/v1/flights/missing", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCreateFlight(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockService := mocks.NewFlightServiceMock()
		router := setupFlightTestRouter(t, mockService)

		mockService.On("CreateFlight", mock.Anything, mock.AnythingOfType("model.CreateFlightParams")).Return(testFlight(t), nil).Once()

		body := map[string]interface{}{
			"flight_number":  "BA117",
			"airline":        "British Airways",
			"origin":         "LHR",
			"destination":    "JFK",
			"departure_time": "2026-12-01T09:00:00Z",
			"arrival_time":   "2026-12-01T17:00:00Z",
			"base_fare":      420,
			"total_seats":    6,
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, createJSONHTTPRequest("POST", "/api/v1/flights", body))

		assert.Equal(t, http.StatusCreated, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("Failed - invalid input", func(t *testing.T) {
		mockService := mocks.NewFlightServiceMock()
		router := setupFlightTestRouter(t, mockService)

		mockService.On("CreateFlight", mock.Anything, mock.Anything).Return(nil, apperrors.ErrInvalidInput).Once()

		body := map[string]interface{}{
			"flight_number":  "BA117",
			"airline":        "British Airways",
			"origin":         "LHR",
			"destination":    "JFK",
			"departure_time": "2026-12-01T09:00:00Z",
			"arrival_time":   "2026-12-01T07:00:00Z",
			"base_fare":      420,
			"total_seats":    6,
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, createJSONHTTPRequest("POST", "/api/v1/flights", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetFareHistory(t *testing.T) {
	mockService := mocks.NewFlightServiceMock()
	router := setupFlightTestRouter(t, mockService)

	mockService.On("GetFareHistory", mock.Anything, "fl-1").Return([]*model.FareHistory{
		{ID: "fh-1", FlightID: "fl-1", CalculatedFare: 480, DynamicMultiplier: 1.2, DemandLevel: "high"},
	}, nil).Once()

	req, _ := http.NewRequest("GET", "/api/v1/flights/fl-1/fare-history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w.Body)["history"], 1)
	mockService.AssertExpectations(t)
}
