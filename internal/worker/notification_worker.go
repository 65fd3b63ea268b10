package worker

import (
	"context"

	"go-gin-flight-booking/internal/notification"
	"go-gin-flight-booking/internal/queue"
	"go-gin-flight-booking/pkg/logger"

	"go.uber.org/zap"
)

type EventHandler interface {
	Handle(ctx context.Context, evt notification.Event) error
}

type NotificationWorker interface {
	// Run 消費通知隊列直到 ctx 結束
	Run(ctx context.Context) error
}

type NotificationWorkerImpl struct {
	handler EventHandler
	queue   queue.NotificationQueue
}

func NewNotificationWorker(handler EventHandler, queue queue.NotificationQueue) NotificationWorker {
	return &NotificationWorkerImpl{
		handler: handler,
		queue:   queue,
	}
}

func (w *NotificationWorkerImpl) Run(ctx context.Context) error {
	msgs, err := w.queue.Subscribe(ctx)
	if err != nil {
		return err
	}

	log := logger.WithComponent("worker")
	for msg := range msgs {
		if msg.Data == nil {
			msg.Nack(false)
			continue
		}
		if err := w.handler.Handle(ctx, *msg.Data); err != nil {
			// 寄信失敗通常是暫時性的，留給隊列重試
			log.Warn("handle notification failed, requeue",
				zap.String("event_id", msg.Data.ID),
				zap.String("type", string(msg.Data.Type)),
				zap.Error(err),
			)
			msg.Nack(true)
			continue
		}
		msg.Ack()
	}
	return nil
}
