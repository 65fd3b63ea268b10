package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-gin-flight-booking/internal/notification"
	"go-gin-flight-booking/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultStreamKey   = "notifications:stream"
	ConsumerGroupName  = "notification-workers"
	ConsumerNamePrefix = "notifier"

	// 串流保留上限 (XADD MAXLEN ~)
	streamMaxLen = 100_000
	readBatch    = 10
)

// RedisStreamQueueConfig tunes redelivery; zero values fall back to defaults.
type RedisStreamQueueConfig struct {
	StreamKey          string
	ClaimMinIdleTime   time.Duration // idle time before XAUTOCLAIM hands a pending message to this consumer
	MaxRetryCount      int           // deliveries after which a message is treated as poison
	ReadGroupBlockTime time.Duration
}

func (c RedisStreamQueueConfig) withDefaults() RedisStreamQueueConfig {
	if c.StreamKey == "" {
		c.StreamKey = DefaultStreamKey
	}
	if c.ClaimMinIdleTime <= 0 {
		c.ClaimMinIdleTime = 5 * time.Second
	}
	if c.MaxRetryCount <= 0 {
		c.MaxRetryCount = 5
	}
	if c.ReadGroupBlockTime <= 0 {
		c.ReadGroupBlockTime = 2 * time.Second
	}
	return c
}

// RedisStreamNotificationQueue delivers events at least once through a
// consumer group. Nack(requeue) leaves the entry pending so XAUTOCLAIM
// redelivers it after ClaimMinIdleTime.
type RedisStreamNotificationQueue struct {
	client   *redis.Client
	consumer string
	cfg      RedisStreamQueueConfig
}

func NewRedisStreamNotificationQueue(ctx context.Context, client *redis.Client, consumerID string, cfg RedisStreamQueueConfig) (*RedisStreamNotificationQueue, error) {
	if consumerID == "" {
		consumerID = uuid.New().String()
	}
	q := &RedisStreamNotificationQueue{
		client:   client,
		consumer: ConsumerNamePrefix + ":" + consumerID,
		cfg:      cfg.withDefaults(),
	}

	err := client.XGroupCreateMkStream(ctx, q.cfg.StreamKey, ConsumerGroupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return q, nil
}

func (q *RedisStreamNotificationQueue) Publish(ctx context.Context, evt *notification.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.StreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":  string(evt.Type),
			"event": string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	return nil
}

func (q *RedisStreamNotificationQueue) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	done := make(chan struct{})

	go func() {
		defer close(done)
		q.claimLoop(ctx, out)
	}()
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			q.readNew(ctx, out)
		}
		<-done
	}()
	return out, nil
}

// readNew 只讀新消息 (">")；已投遞過但未 ACK 的交給 claimLoop 重試
func (q *RedisStreamNotificationQueue) readNew(ctx context.Context, out chan<- Delivery) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroupName,
		Consumer: q.consumer,
		Streams:  []string{q.cfg.StreamKey, ">"},
		Count:    readBatch,
		Block:    q.cfg.ReadGroupBlockTime,
	}).Result()
	if errors.Is(err, redis.Nil) || ctx.Err() != nil {
		return
	}
	if err != nil {
		logger.WithComponent("mq").Error("XReadGroup failed", zap.Error(err))
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		return
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if !q.deliver(ctx, out, msg) {
				return
			}
		}
	}
}

func (q *RedisStreamNotificationQueue) claimLoop(ctx context.Context, out chan<- Delivery) {
	ticker := time.NewTicker(q.cfg.ClaimMinIdleTime)
	defer ticker.Stop()
	start := "0-0"

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		msgs, next, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.cfg.StreamKey,
			Group:    ConsumerGroupName,
			Consumer: q.consumer,
			MinIdle:  q.cfg.ClaimMinIdleTime,
			Start:    start,
			Count:    readBatch,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() == nil {
				logger.WithComponent("mq").Error("XAutoClaim failed", zap.Error(err))
			}
			continue
		}
		start = next
		if start == "" {
			start = "0-0"
		}

		for _, msg := range msgs {
			if q.isPoison(ctx, msg.ID) {
				continue
			}
			if !q.deliver(ctx, out, msg) {
				return
			}
		}
	}
}

// isPoison 投遞次數超過上限的消息直接 ACK 丟棄
func (q *RedisStreamNotificationQueue) isPoison(ctx context.Context, id string) bool {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.cfg.StreamKey,
		Group:  ConsumerGroupName,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return false
	}
	if int(pending[0].RetryCount) < q.cfg.MaxRetryCount {
		return false
	}

	logger.WithComponent("mq").Warn("discard poison notification",
		zap.String("message_id", id),
		zap.Int64("deliveries", pending[0].RetryCount),
	)
	q.ack(ctx, id)
	return true
}

// deliver 回傳 false 代表 ctx 已結束
func (q *RedisStreamNotificationQueue) deliver(ctx context.Context, out chan<- Delivery, msg redis.XMessage) bool {
	evt, err := decodeEvent(msg)
	if err != nil {
		logger.WithComponent("mq").Warn("drop malformed notification", zap.String("message_id", msg.ID), zap.Error(err))
		q.ack(ctx, msg.ID)
		return true
	}

	id := msg.ID
	d := Delivery{
		Data: evt,
		Ack:  func() { q.ack(ctx, id) },
		Nack: func(requeue bool) {
			if !requeue {
				q.ack(ctx, id)
			}
		},
	}
	select {
	case out <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func (q *RedisStreamNotificationQueue) ack(ctx context.Context, id string) {
	if err := q.client.XAck(ctx, q.cfg.StreamKey, ConsumerGroupName, id).Err(); err != nil {
		logger.WithComponent("mq").Error("XAck failed", zap.String("message_id", id), zap.Error(err))
	}
}

func decodeEvent(msg redis.XMessage) (*notification.Event, error) {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		return nil, errors.New("missing event field")
	}
	var evt notification.Event
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}
