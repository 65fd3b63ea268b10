package queue

import (
	"context"

	"go-gin-flight-booking/internal/notification"
)

type Delivery struct {
	Data *notification.Event
	Ack  func()
	Nack func(requeue bool)
}

type NotificationQueue interface {
	// 發送通知事件到隊列
	Publish(ctx context.Context, evt *notification.Event) error
	// 訂閱通知隊列
	Subscribe(ctx context.Context) (<-chan Delivery, error)
}

// MemoryNotificationQueue 使用 Go channel 模擬 MQ，程序結束即遺失
type MemoryNotificationQueue struct {
	ch chan *notification.Event
}

func NewMemoryNotificationQueue(bufferSize int) NotificationQueue {
	return &MemoryNotificationQueue{
		ch: make(chan *notification.Event, bufferSize),
	}
}

func (q *MemoryNotificationQueue) Publish(ctx context.Context, evt *notification.Event) error {
	select {
	case q.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryNotificationQueue) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-q.ch:
				if !ok {
					return
				}

				d := Delivery{
					Data: evt,
					Ack:  func() {},
					Nack: func(requeue bool) {
						if !requeue {
							return
						}
						// 不阻塞消費者：隊列滿時直接丟棄
						select {
						case q.ch <- evt:
						default:
						}
					},
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
