package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go-gin-flight-booking/config"
	"go-gin-flight-booking/internal/cache"
	"go-gin-flight-booking/internal/database"
	"go-gin-flight-booking/internal/external"
	"go-gin-flight-booking/internal/handler"
	"go-gin-flight-booking/internal/metrics"
	"go-gin-flight-booking/internal/notification"
	"go-gin-flight-booking/internal/queue"
	"go-gin-flight-booking/internal/repository"
	"go-gin-flight-booking/internal/service"
	"go-gin-flight-booking/internal/worker"
	"go-gin-flight-booking/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type repositories struct {
	flights       repository.FlightRepository
	bookings      repository.BookingRepository
	cancellations repository.CancellationLogRepository
	fareHistory   repository.FareHistoryRepository
}

func main() {
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.L.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.L.Error("Server stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.L.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	repos, closeStorage, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	// Redis 只在 Redis Stream 隊列或報價快取需要時連線
	var rdb *redis.Client
	if cfg.Queue.Driver == "redis" || cfg.Pricing.QuoteTTL > 0 {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			if cfg.Queue.Driver == "redis" {
				return fmt.Errorf("failed to initialize redis: %w", err)
			}
			logger.L.Warn("Redis unavailable, price quotes will not be cached", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	notificationQueue, err := initQueue(ctx, cfg, rdb)
	if err != nil {
		return err
	}

	var publisher notification.EventPublisher = notification.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = notification.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.BookingTopic)
	}
	defer publisher.Close()

	var oracle external.PricingOracle = external.NewHTTPPricingOracle(cfg.Pricing.URL, cfg.Pricing.Timeout)
	if rdb != nil && cfg.Pricing.QuoteTTL > 0 {
		oracle = external.NewCachedPricingOracle(oracle, cache.NewRedisPriceQuoteCache(rdb), cfg.Pricing.QuoteTTL)
	}

	m := metrics.New()
	scheduler := service.NewLockScheduler(repos.flights, cfg.Booking.SeatLockTTL, m)
	notifier := service.NewAsyncNotifier(notificationQueue, publisher)

	bookingService := service.NewBookingService(
		repos.flights,
		repos.bookings,
		repos.cancellations,
		scheduler,
		external.NewPaymentSimulator(cfg.Booking.PaymentSuccessRate),
		notifier,
		m,
	)
	flightService := service.NewFlightService(repos.flights, repos.fareHistory, oracle)

	dispatcher := notification.NewDispatcher(notification.LogEmailSender{}, notification.TextReceiptGenerator{}, repos.bookings)
	notificationWorker := worker.NewNotificationWorker(dispatcher, notificationQueue)
	sweeper := worker.NewExpiredLockSweeper(scheduler, cfg.Booking.LockSweepInterval, cfg.Booking.LockSweepGrace)

	router, err := newRouter(m, bookingService, flightService, newRateLimits(cfg.RateLimit, rdb))
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := notificationWorker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("running notification worker: %w", err)
		}
		return nil
	})

	// 啟動時先清掉前一個行程留下的孤兒鎖
	g.Go(func() error {
		sweeper.Start(runCtx)
		return nil
	})

	g.Go(func() error {
		logger.L.Info("Starting HTTP server", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("starting http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-runCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		logger.L.Info("Shutting down HTTP server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	})

	err = g.Wait()

	// 先停計時器，再等待尚未送出的通知
	scheduler.Shutdown()
	notifier.Wait()
	return err
}

func initStorage(ctx context.Context, cfg *config.Config) (*repositories, func(), error) {
	switch cfg.Storage.Driver {
	case "memory":
		logger.L.Info("Using in-memory storage")
		return &repositories{
			flights:       repository.NewMemoryFlightRepository(),
			bookings:      repository.NewMemoryBookingRepository(),
			cancellations: repository.NewMemoryCancellationLogRepository(),
			fareHistory:   repository.NewMemoryFareHistoryRepository(),
		}, func() {}, nil
	case "postgres":
		pool, err := database.InitDatabase(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		return &repositories{
			flights:       repository.NewFlightRepository(pool),
			bookings:      repository.NewBookingRepository(pool),
			cancellations: repository.NewCancellationLogRepository(pool),
			fareHistory:   repository.NewFareHistoryRepository(pool),
		}, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func initQueue(ctx context.Context, cfg *config.Config, rdb *redis.Client) (queue.NotificationQueue, error) {
	switch cfg.Queue.Driver {
	case "memory":
		return queue.NewMemoryNotificationQueue(cfg.Queue.BufferSize), nil
	case "redis":
		q, err := queue.NewRedisStreamNotificationQueue(ctx, rdb, cfg.Queue.ConsumerID, queue.RedisStreamQueueConfig{
			ClaimMinIdleTime:   cfg.Queue.ClaimMinIdleTime,
			MaxRetryCount:      cfg.Queue.MaxRetryCount,
			ReadGroupBlockTime: cfg.Queue.ReadGroupBlockTime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize notification queue: %w", err)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}

type rateLimits struct {
	booking gin.HandlerFunc
	search  gin.HandlerFunc
}

// newRateLimits 有 Redis 時跨實例共用計數，否則退回行程內計數
func newRateLimits(cfg config.RateLimitConfig, rdb *redis.Client) *rateLimits {
	if !cfg.Enabled {
		return nil
	}
	newLimiter := func(name string, limit int) cache.RateLimiter {
		if rdb != nil {
			return cache.NewRedisRateLimiter(rdb, name, limit, cfg.Window)
		}
		return cache.NewMemoryRateLimiter(limit, cfg.Window)
	}
	return &rateLimits{
		booking: handler.RateLimit(newLimiter("booking", cfg.BookingLimit), handler.BookingRateLimitMessage),
		search:  handler.RateLimit(newLimiter("search", cfg.SearchLimit), handler.SearchRateLimitMessage),
	}
}

func newRouter(m *metrics.Metrics, bookings service.BookingService, flights service.FlightService, limits *rateLimits) (*gin.Engine, error) {
	if err := handler.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery(), handler.RequestLogger(), handler.Prometheus(m))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	bookingHandler := handler.NewBookingHandler(bookings)
	flightHandler := handler.NewFlightHandler(flights)
	if limits != nil {
		bookingHandler.WithRateLimit(limits.booking)
		flightHandler.WithSearchRateLimit(limits.search)
	}
	bookingHandler.RegisterRoutes(api)
	flightHandler.RegisterRoutes(api)

	return router, nil
}
