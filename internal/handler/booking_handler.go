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

type BookingHandler struct {
	service   service.BookingService
	rateLimit gin.HandlerFunc
}

func NewBookingHandler(service service.BookingService) *BookingHandler {
	return &BookingHandler{service: service, rateLimit: passThrough}
}

// WithRateLimit 套用在選位與建立訂位
func (h *BookingHandler) WithRateLimit(mw gin.HandlerFunc) *BookingHandler {
	h.rateLimit = mw
	return h
}

func (h *BookingHandler) RegisterRoutes(r gin.IRouter) {
	router := r.Group("/bookings")
	{
		router.GET("/pnr/:pnr", h.GetBookingByPNR)

		authed := router.Group("", RequireUser())
		authed.POST("/select-seats", h.rateLimit, h.SelectSeats)
		authed.POST("", h.rateLimit, h.CreateBooking)
		authed.GET("", h.ListBookings)
		authed.GET("/:id", h.GetBooking)
		authed.DELETE("/:id", h.CancelBooking)
	}
}

func (h *BookingHandler) SelectSeats(c *gin.Context) {
	var req model.SelectSeatsRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	selection, err := h.service.SelectSeats(c, req)
	if err != nil {
		h.handleBookingError(c, err, "SelectSeats")
		return
	}

	respond(c, gin.H{
		"message":     "Seats locked",
		"lockId":      selection.LockID,
		"seatNumbers": selection.SeatNumbers,
		"lockExpiry":  selection.LockExpiry,
	}, http.StatusOK)
}

func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req model.CreateBookingRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	booking, err := h.service.CreateBooking(c, currentUser(c), req)
	if err != nil {
		h.handleBookingError(c, err, "CreateBooking")
		return
	}

	respond(c, gin.H{
		"message": "Booking confirmed",
		"booking": booking,
	}, http.StatusCreated)
}

func (h *BookingHandler) ListBookings(c *gin.Context) {
	bookings, err := h.service.ListUserBookings(c, currentUser(c))
	if err != nil {
		h.handleBookingError(c, err, "ListBookings")
		return
	}
	respond(c, bookings, http.StatusOK)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, err := h.service.GetBooking(c, c.Param("id"))
	if err != nil {
		h.handleBookingError(c, err, "GetBooking")
		return
	}
	// 只有本人可以查看
	if booking.UserID != currentUser(c) {
		h.handleBookingError(c, apperrors.ErrForbidden, "GetBooking")
		return
	}
	respond(c, booking, http.StatusOK)
}

func (h *BookingHandler) GetBookingByPNR(c *gin.Context) {
	booking, err := h.service.GetBookingByPNR(c, c.Param("pnr"))
	if err != nil {
		h.handleBookingError(c, err, "GetBookingByPNR")
		return
	}
	respond(c, booking, http.StatusOK)
}

func (h *BookingHandler) CancelBooking(c *gin.Context) {
	var req model.CancelBookingRequest
	// body 可省略
	if c.Request.ContentLength > 0 {
		if err := BindJson(c, &req); err != nil {
			return
		}
	}

	result, err := h.service.CancelBooking(c, c.Param("id"), currentUser(c), req.Reason)
	if err != nil {
		h.handleBookingError(c, err, "CancelBooking")
		return
	}

	respond(c, gin.H{
		"message":          "Booking cancelled",
		"pnr":              result.PNR,
		"refundAmount":     result.RefundAmount,
		"refundPercentage": result.RefundPercentage,
	}, http.StatusOK)
}

func (h *BookingHandler) handleBookingError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(zap.String("operation", operation), zap.Error(err))

	var seatErr *model.SeatError
	switch {
	case errors.As(err, &seatErr) && errors.Is(err, apperrors.ErrSeatUnavailable):
		log.Warn("Seat unavailable", zap.Strings("seats", seatErr.Seats))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Seats not available",
			"seats": seatErr.Seats,
		})
	case errors.Is(err, apperrors.ErrSeatUnavailable):
		log.Warn("Seat unavailable")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Seats not available"})
	case errors.Is(err, apperrors.ErrLockExpiredOrMissing):
		log.Warn("Seat lock expired")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Seat lock expired or seats not selected"})
	case errors.Is(err, apperrors.ErrPaymentFailed):
		log.Warn("Payment failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment failed"})
	case errors.Is(err, apperrors.ErrAlreadyCancelled):
		log.Warn("Booking already cancelled")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Booking already cancelled"})
	case errors.Is(err, apperrors.ErrInvalidStatusTransition):
		log.Warn("Invalid booking status transition")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrInvalidInput):
		log.Warn("Invalid input")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrFlightNotFound):
		log.Warn("Flight not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "Flight not found"})
	case errors.Is(err, apperrors.ErrBookingNotFound):
		log.Warn("Booking not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
	case errors.Is(err, apperrors.ErrForbidden):
		log.Warn("Forbidden")
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to access this booking"})
	case errors.Is(err, apperrors.ErrUnauthorized):
		log.Warn("Unauthorized")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	default:
		log.Error("Unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
