package handler

import (
	"errors"
	"net/http"

	"go-gin-flight-booking/internal/model"
	"go-gin-flight-booking/internal/service"
	apperrors "go-gin-flight-booking/pkg/app_errors"
	"go-gin-flight-booking/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FlightHandler struct {
	service     service.FlightService
	searchLimit gin.HandlerFunc
}

func NewFlightHandler(service service.FlightService) *FlightHandler {
	return &FlightHandler{service: service, searchLimit: passThrough}
}

func (h *FlightHandler) WithSearchRateLimit(mw gin.HandlerFunc) *FlightHandler {
	h.searchLimit = mw
	return h
}

func (h *FlightHandler) RegisterRoutes(r gin.IRouter) {
	router := r.Group("/flights")
	{
		router.GET("/search", h.searchLimit, h.SearchFlights)
		router.POST("", h.CreateFlight)
		router.GET("/:id", h.GetFlight)
		router.GET("/:id/fare-history", h.GetFareHistory)
	}
}

func (h *FlightHandler) SearchFlights(c *gin.Context) {
	var params model.FlightSearchParams
	if err := BindQuery(c, &params); err != nil {
		return
	}

	flights, err := h.service.SearchFlights(c, params)
	if err != nil {
		h.handleFlightError(c, err, "SearchFlights")
		return
	}

	respond(c, gin.H{
		"count":   len(flights),
		"flights": flights,
	}, http.StatusOK)
}

func (h *FlightHandler) CreateFlight(c *gin.Context) {
	var params model.CreateFlightParams
	if err := BindJson(c, &params); err != nil {
		return
	}

	flight, err := h.service.CreateFlight(c, params)
	if err != nil {
		h.handleFlightError(c, err, "CreateFlight")
		return
	}
	respond(c, flight, http.StatusCreated)
}

func (h *FlightHandler) GetFlight(c *gin.Context) {
	flight, err := h.service.GetFlight(c, c.Param("id"))
	if err != nil {
		h.handleFlightError(c, err, "GetFlight")
		return
	}
	respond(c, flight, http.StatusOK)
}

func (h *FlightHandler) GetFareHistory(c *gin.Context) {
	history, err := h.service.GetFareHistory(c, c.Param("id"))
	if err != nil {
		h.handleFlightError(c, err, "GetFareHistory")
		return
	}
	respond(c, gin.H{
		"flightId": c.Param("id"),
		"history":  history,
	}, http.StatusOK)
}

func (h *FlightHandler) handleFlightError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(zap.String("operation", operation), zap.Error(err))
	switch {
	case errors.Is(err, apperrors.ErrFlightNotFound):
		log.Warn("Flight not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "Flight not found"})
	case errors.Is(err, apperrors.ErrInvalidInput):
		log.Warn("Invalid input")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error("Unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
