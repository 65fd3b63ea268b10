package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-gin-flight-booking/internal/external"
	"go-gin-flight-booking/internal/metrics"
	"go-gin-flight-booking/internal/model"
	"go-gin-flight-booking/internal/repository"
	apperrors "go-gin-flight-booking/pkg/app_errors"
	"go-gin-flight-booking/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingService interface {
	// SelectSeats 鎖定座位並開始 TTL 倒數
	SelectSeats(ctx context.Context, req model.SelectSeatsRequest) (*model.SeatSelection, error)
	// CreateBooking 付款、產生 PNR 並確認已鎖定的座位
	CreateBooking(ctx context.Context, userID string, req model.CreateBookingRequest) (*model.Booking, error)
	CancelBooking(ctx context.Context, bookingID, userID, reason string) (*model.CancellationResult, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	GetBookingByPNR(ctx context.Context, pnr string) (*model.Booking, error)
	ListUserBookings(ctx context.Context, userID string) ([]*model.Booking, error)
}

type BookingServiceImpl struct {
	flights       repository.FlightRepository
	bookings      repository.BookingRepository
	cancellations repository.CancellationLogRepository
	scheduler     LockScheduler
	payments      external.PaymentGateway
	notifier      Notifier
	metrics       *metrics.Metrics

	now    func() time.Time
	newPNR func() (string, error)
}

func NewBookingService(
	flights repository.FlightRepository,
	bookings repository.BookingRepository,
	cancellations repository.CancellationLogRepository,
	scheduler LockScheduler,
	payments external.PaymentGateway,
	notifier Notifier,
	m *metrics.Metrics,
) *BookingServiceImpl {
	return &BookingServiceImpl{
		flights:       flights,
		bookings:      bookings,
		cancellations: cancellations,
		scheduler:     scheduler,
		payments:      payments,
		notifier:      notifier,
		metrics:       m,
		now:           time.Now,
		newPNR:        GeneratePNR,
	}
}

func (s *BookingServiceImpl) SelectSeats(ctx context.Context, req model.SelectSeatsRequest) (*model.SeatSelection, error) {
	if err := model.ValidateSeatIDs(req.SeatNumbers); err != nil {
		return nil, err
	}

	handle, err := s.scheduler.Acquire(ctx, req.FlightID, req.SeatNumbers)
	if err != nil {
		return nil, err
	}

	return &model.SeatSelection{
		LockID:      handle.ID,
		FlightID:    handle.FlightID,
		SeatNumbers: handle.SeatNumbers,
		LockExpiry:  handle.ExpiresAt,
	}, nil
}

func (s *BookingServiceImpl) CreateBooking(ctx context.Context, userID string, req model.CreateBookingRequest) (*model.Booking, error) {
	log := logger.WithComponent("service")

	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if req.LockID == "" {
		return nil, fmt.Errorf("%w: lock id is required", apperrors.ErrInvalidInput)
	}
	if err := model.ValidateSeatIDs(req.SeatNumbers); err != nil {
		return nil, err
	}
	if len(req.Passengers) != len(req.SeatNumbers) {
		return nil, fmt.Errorf("%w: %d passengers for %d seats", apperrors.ErrInvalidInput, len(req.Passengers), len(req.SeatNumbers))
	}

	// 1. 座位必須仍由這次選位的鎖持有
	flight, err := s.flights.FindByID(ctx, req.FlightID)
	if err != nil {
		return nil, err
	}
	if !flight.SeatMap.LockedBy(req.SeatNumbers, req.LockID) {
		s.metrics.BookingsTotal.WithLabelValues("lock_expired").Inc()
		return nil, apperrors.ErrLockExpiredOrMissing
	}

	// 2. 計價
	farePerSeat := flight.FarePerSeat()
	pricePaid := roundCents(farePerSeat * float64(len(req.SeatNumbers)))

	// 3. 付款；失敗立即釋放座位
	payment, err := s.payments.Charge(ctx, pricePaid)
	if err != nil || !payment.Success {
		s.releaseLockedSeats(flight.ID, req.LockID, req.SeatNumbers)
		s.metrics.BookingsTotal.WithLabelValues("payment_failed").Inc()
		if err != nil {
			log.Warn("payment error", zap.String("flight_id", flight.ID), zap.Error(err))
		}
		return nil, apperrors.ErrPaymentFailed
	}

	// 4. 解除到期計時器；鎖已過期或座位已被他人重新鎖定時不能繼續
	lockExpiry, ok := s.scheduler.Disarm(flight.ID, req.LockID, req.SeatNumbers)
	if !ok {
		s.voidPayment(payment)
		s.metrics.BookingsTotal.WithLabelValues("lock_expired").Inc()
		return nil, apperrors.ErrLockExpiredOrMissing
	}

	booking := &model.Booking{
		ID:                    uuid.New().String(),
		UserID:                userID,
		FlightID:              flight.ID,
		SeatNumbers:           append([]string(nil), req.SeatNumbers...),
		Passengers:            append([]model.Passenger(nil), req.Passengers...),
		PricePaid:             pricePaid,
		BaseFarePerSeat:       flight.BaseFare,
		DynamicPricingApplied: farePerSeat != flight.BaseFare,
		Status:                model.BookingStatusPending,
		PaymentStatus:         model.PaymentStatusCompleted,
		TransactionID:         payment.TransactionID,
		SeatLockExpiry:        lockExpiry,
	}

	// 5. 產生 PNR 並寫入 pending 訂位
	created, err := s.createWithUniquePNR(ctx, booking)
	if err != nil {
		log.Error("persist booking failed", zap.String("flight_id", flight.ID), zap.Error(err))
		s.releaseLockedSeats(flight.ID, req.LockID, req.SeatNumbers)
		s.voidPayment(payment)
		s.metrics.BookingsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// 6. 確認座位並累計訂位數 (同一個臨界區)
	confirmedFlight, err := s.flights.Update(ctx, flight.ID, func(f *model.Flight) error {
		if err := f.ConfirmSeats(req.SeatNumbers, req.LockID); err != nil {
			return err
		}
		f.BookingCount++
		return nil
	})
	if err != nil {
		log.Error("confirm seats failed, compensating",
			zap.String("booking_id", created.ID),
			zap.String("pnr", created.PNR),
			zap.Error(err),
		)
		s.compensate(created, false)
		s.releaseLockedSeats(flight.ID, req.LockID, req.SeatNumbers)
		s.voidPayment(payment)
		s.metrics.BookingsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// 7. pending -> confirmed
	confirmed, err := s.bookings.Update(ctx, created.ID, func(b *model.Booking) error {
		return b.TransitionTo(model.BookingStatusConfirmed)
	})
	if err != nil {
		log.Error("confirm booking failed, compensating",
			zap.String("booking_id", created.ID),
			zap.String("pnr", created.PNR),
			zap.Error(err),
		)
		s.compensate(created, true)
		s.voidPayment(payment)
		s.metrics.BookingsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.BookingsTotal.WithLabelValues("confirmed").Inc()
	log.Info("booking confirmed",
		zap.String("booking_id", confirmed.ID),
		zap.String("pnr", confirmed.PNR),
		zap.String("flight_id", flight.ID),
		zap.Strings("seats", confirmed.SeatNumbers),
		zap.Float64("price_paid", confirmed.PricePaid),
	)

	// 8. 非同步通知
	s.notifier.BookingConfirmed(confirmed, confirmedFlight)

	return confirmed, nil
}

// createWithUniquePNR 產生不重複的 PNR；儲存層的唯一約束是最後防線
func (s *BookingServiceImpl) createWithUniquePNR(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	for attempt := 0; attempt < maxPNRAttempts; attempt++ {
		pnr, err := s.newPNR()
		if err != nil {
			return nil, err
		}
		exists, err := s.bookings.ExistsByPNR(ctx, pnr)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		booking.PNR = pnr
		created, err := s.bookings.Create(ctx, booking)
		if errors.Is(err, apperrors.ErrDuplicatePNR) {
			continue
		}
		return created, err
	}
	return nil, apperrors.ErrPNRExhausted
}

// releaseLockedSeats 付款或寫入失敗時歸還仍由 lockID 鎖定的座位
func (s *BookingServiceImpl) releaseLockedSeats(flightID, lockID string, seats []string) {
	s.scheduler.Disarm(flightID, lockID, seats)

	// 回滾使用 context.Background()，確保不受請求取消影響
	_, err := s.flights.Update(context.Background(), flightID, func(f *model.Flight) error {
		_, err := f.ReleaseSeats(seats, lockID)
		return err
	})
	if err != nil {
		logger.WithComponent("service").Error("release seats failed",
			zap.String("flight_id", flightID),
			zap.Strings("seats", seats),
			zap.Error(err),
		)
	}
}

// compensate 把寫入失敗的訂位標為取消並全額退款；seatsBooked 時一併把座位還回可用
func (s *BookingServiceImpl) compensate(booking *model.Booking, seatsBooked bool) {
	ctx := context.Background()
	log := logger.WithComponent("service")

	_, err := s.bookings.Update(ctx, booking.ID, func(b *model.Booking) error {
		return b.Cancel(100, b.PricePaid, "booking could not be completed", s.now())
	})
	if err != nil {
		log.Error("compensate booking failed", zap.String("booking_id", booking.ID), zap.Error(err))
	}

	if !seatsBooked {
		return
	}
	_, err = s.flights.Update(ctx, booking.FlightID, func(f *model.Flight) error {
		if _, err := f.VacateSeats(booking.SeatNumbers); err != nil {
			return err
		}
		if f.BookingCount > 0 {
			f.BookingCount--
		}
		return nil
	})
	if err != nil {
		log.Error("compensate seats failed", zap.String("booking_id", booking.ID), zap.Error(err))
	}
}

func (s *BookingServiceImpl) voidPayment(payment external.PaymentResult) {
	if err := s.payments.Void(context.Background(), payment.TransactionID, payment.Amount); err != nil {
		logger.WithComponent("service").Error("void payment failed",
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err),
		)
		return
	}
	logger.WithComponent("service").Info("payment voided",
		zap.String("transaction_id", payment.TransactionID),
		zap.Float64("amount", payment.Amount),
	)
}

func (s *BookingServiceImpl) CancelBooking(ctx context.Context, bookingID, userID, reason string) (*model.CancellationResult, error) {
	log := logger.WithComponent("service")

	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, apperrors.ErrForbidden
	}
	if booking.IsCancelled() {
		return nil, apperrors.ErrAlreadyCancelled
	}
	if booking.Status == model.BookingStatusPending {
		return nil, fmt.Errorf("%w: booking %s is still being confirmed", apperrors.ErrInvalidStatusTransition, bookingID)
	}

	flight, err := s.flights.FindByID(ctx, booking.FlightID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	percentage := RefundPercentage(flight.HoursUntilDeparture(now))
	amount := RefundAmount(booking.PricePaid, percentage)

	// 在訂位列鎖內再檢查一次，擋下同時送出的重複取消
	cancelled, err := s.bookings.Update(ctx, bookingID, func(b *model.Booking) error {
		if b.Status == model.BookingStatusPending {
			return fmt.Errorf("%w: booking %s is still being confirmed", apperrors.ErrInvalidStatusTransition, b.ID)
		}
		return b.Cancel(percentage, amount, reason, now)
	})
	if err != nil {
		return nil, err
	}

	updatedFlight, err := s.flights.Update(ctx, flight.ID, func(f *model.Flight) error {
		if _, err := f.VacateSeats(cancelled.SeatNumbers); err != nil {
			return err
		}
		f.CancellationCount++
		return nil
	})
	if err != nil {
		// 訂位已取消並退款；座位未歸還只會少賣，不會重複出售
		log.Error("return seats after cancellation failed",
			zap.String("booking_id", bookingID),
			zap.String("flight_id", flight.ID),
			zap.Error(err),
		)
		updatedFlight = flight
	}

	processedAt := now.UTC()
	_, err = s.cancellations.Create(ctx, &model.CancellationLog{
		ID:                uuid.New().String(),
		BookingID:         cancelled.ID,
		UserID:            cancelled.UserID,
		FlightID:          cancelled.FlightID,
		PNR:               cancelled.PNR,
		Reason:            reason,
		OriginalPricePaid: cancelled.PricePaid,
		RefundAmount:      amount,
		RefundPercentage:  percentage,
		RefundStatus:      model.RefundStatusProcessed,
		CancelledAt:       processedAt,
		RefundProcessedAt: &processedAt,
	})
	if err != nil {
		log.Error("write cancellation log failed", zap.String("booking_id", bookingID), zap.Error(err))
	}

	s.metrics.CancellationsTotal.Inc()
	s.metrics.RefundAmountTotal.Add(amount)
	log.Info("booking cancelled",
		zap.String("booking_id", bookingID),
		zap.String("pnr", cancelled.PNR),
		zap.Int("refund_percentage", percentage),
		zap.Float64("refund_amount", amount),
	)

	s.notifier.BookingCancelled(cancelled, updatedFlight)

	return &model.CancellationResult{
		BookingID:        cancelled.ID,
		PNR:              cancelled.PNR,
		RefundAmount:     amount,
		RefundPercentage: percentage,
	}, nil
}

func (s *BookingServiceImpl) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	return s.bookings.FindByID(ctx, id)
}

func (s *BookingServiceImpl) GetBookingByPNR(ctx context.Context, pnr string) (*model.Booking, error) {
	return s.bookings.FindByPNR(ctx, pnr)
}

func (s *BookingServiceImpl) ListUserBookings(ctx context.Context, userID string) ([]*model.Booking, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	return s.bookings.FindByUserID(ctx, userID)
}
