package worker

import (
	"context"
	"sync"
	"time"

	"go-gin-flight-booking/pkg/logger"

	"go.uber.org/zap"
)

// ExpiredLockReleaser 釋放儲存中已過期的座位鎖
type ExpiredLockReleaser interface {
	ReleaseExpiredLocks(ctx context.Context, grace time.Duration) (int, error)
}

// ExpiredLockSweeper releases seat locks whose timers were lost, such as locks
// left behind by a restart. It sweeps once at start and then every interval.
type ExpiredLockSweeper struct {
	releaser ExpiredLockReleaser
	interval time.Duration
	grace    time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewExpiredLockSweeper(releaser ExpiredLockReleaser, interval, grace time.Duration) *ExpiredLockSweeper {
	return &ExpiredLockSweeper{
		releaser: releaser,
		interval: interval,
		grace:    grace,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start 阻塞直到 ctx 結束或呼叫 Stop
func (s *ExpiredLockSweeper) Start(ctx context.Context) {
	log := logger.WithComponent("worker")
	log.Info("expired lock sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("grace", s.grace),
	)
	defer close(s.doneCh)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("expired lock sweeper stopped")
			return
		case <-s.stopCh:
			log.Info("expired lock sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpiredLockSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *ExpiredLockSweeper) sweep(ctx context.Context) {
	log := logger.WithComponent("worker")

	released, err := s.releaser.ReleaseExpiredLocks(ctx, s.grace)
	if err != nil {
		log.Error("sweep expired seat locks failed", zap.Error(err))
		return
	}
	if released > 0 {
		log.Info("expired seat locks released", zap.Int("seats", released))
	} else {
		log.Debug("no expired seat locks")
	}
}
