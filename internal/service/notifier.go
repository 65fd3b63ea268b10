package service

import (
	"context"
	"sync"
	"time"

	"go-gin-flight-booking/internal/model"
	"go-gin-flight-booking/internal/notification"
	"go-gin-flight-booking/internal/queue"
	"go-gin-flight-booking/pkg/logger"

	"go.uber.org/zap"
)

// Notifier fires booking side effects without blocking the caller. Failures
// are logged and never roll back the booking.
type Notifier interface {
	BookingConfirmed(booking *model.Booking, flight *model.Flight)
	BookingCancelled(booking *model.Booking, flight *model.Flight)
}

type AsyncNotifier struct {
	queue     queue.NotificationQueue
	publisher notification.EventPublisher
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewAsyncNotifier(q queue.NotificationQueue, publisher notification.EventPublisher) *AsyncNotifier {
	return &AsyncNotifier{
		queue:     q,
		publisher: publisher,
		timeout:   5 * time.Second,
	}
}

func (n *AsyncNotifier) BookingConfirmed(booking *model.Booking, flight *model.Flight) {
	n.dispatch(notification.NewBookingConfirmedEvent(booking, flight))
}

func (n *AsyncNotifier) BookingCancelled(booking *model.Booking, flight *model.Flight) {
	n.dispatch(notification.NewBookingCancelledEvent(booking, flight))
}

func (n *AsyncNotifier) dispatch(evt notification.Event) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		// 與請求生命週期脫鉤，使用者斷線也要送出
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		log := logger.WithComponent("notification")
		if err := n.queue.Publish(ctx, &evt); err != nil {
			log.Error("enqueue notification failed",
				zap.String("type", string(evt.Type)),
				zap.String("pnr", evt.PNR),
				zap.Error(err),
			)
		}
		if err := n.publisher.Publish(ctx, evt); err != nil {
			log.Warn("publish booking event failed",
				zap.String("type", string(evt.Type)),
				zap.String("pnr", evt.PNR),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every in-flight dispatch has finished.
func (n *AsyncNotifier) Wait() {
	n.wg.Wait()
}
