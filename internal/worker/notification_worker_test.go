package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-gin-flight-booking/internal/notification"
	"go-gin-flight-booking/internal/queue"
	"go-gin-flight-booking/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyHandler struct {
	mu       sync.Mutex
	failures int
	handled  []string
	calls    int
}

func (h *flakyHandler) Handle(ctx context.Context, evt notification.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.failures > 0 {
		h.failures--
		return errors.New("smtp unavailable")
	}
	h.handled = append(h.handled, evt.ID)
	return nil
}

func (h *flakyHandler) snapshot() ([]string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.handled...), h.calls
}

func TestNotificationWorker_Run(t *testing.T) {
	t.Run("Handles events", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		q := queue.NewMemoryNotificationQueue(8)
		h := &flakyHandler{}

		done := make(chan error, 1)
		go func() { done <- worker.NewNotificationWorker(h, q).Run(ctx) }()

		require.NoError(t, q.Publish(ctx, &notification.Event{ID: "e1"}))
		require.NoError(t, q.Publish(ctx, &notification.Event{ID: "e2"}))

		assert.Eventually(t, func() bool {
			handled, _ := h.snapshot()
			return len(handled) == 2
		}, time.Second, 10*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("worker did not stop")
		}
	})

	t.Run("Failed event is retried", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewMemoryNotificationQueue(8)
		h := &flakyHandler{failures: 2}

		go func() { _ = worker.NewNotificationWorker(h, q).Run(ctx) }()
		require.NoError(t, q.Publish(ctx, &notification.Event{ID: "e1"}))

		assert.Eventually(t, func() bool {
			handled, calls := h.snapshot()
			return len(handled) == 1 && calls == 3
		}, time.Second, 10*time.Millisecond)
	})
}
