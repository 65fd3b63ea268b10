package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Booking   BookingConfig   `yaml:"booking"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Queue     QueueConfig     `yaml:"queue"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects where flights and bookings live: "postgres" or "memory".
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"ssl_mode"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BookingConfig: LockSweepGrace 為鎖過期後多久才由清理程序視為孤兒鎖釋放
type BookingConfig struct {
	SeatLockTTL        time.Duration `yaml:"seat_lock_ttl"`
	PaymentSuccessRate float64       `yaml:"payment_success_rate"`
	LockSweepInterval  time.Duration `yaml:"lock_sweep_interval"`
	LockSweepGrace     time.Duration `yaml:"lock_sweep_grace"`
}

type PricingConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	QuoteTTL time.Duration `yaml:"quote_ttl"`
}

// QueueConfig selects the notification queue: "memory" (channel) or "redis" (Redis Stream).
type QueueConfig struct {
	Driver             string        `yaml:"driver"`
	BufferSize         int           `yaml:"buffer_size"`
	ConsumerID         string        `yaml:"consumer_id"`
	ClaimMinIdleTime   time.Duration `yaml:"claim_min_idle_time"`
	MaxRetryCount      int           `yaml:"max_retry_count"`
	ReadGroupBlockTime time.Duration `yaml:"read_group_block_time"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	BookingTopic string   `yaml:"booking_topic"`
}

// RateLimitConfig caps requests per client IP within Window.
// Counters live in Redis when a Redis client is available, otherwise in memory.
type RateLimitConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Window       time.Duration `yaml:"window"`
	BookingLimit int           `yaml:"booking_limit"`
	SearchLimit  int           `yaml:"search_limit"`
}

var AppConfig *Config

// LoadConfig builds the configuration from defaults, then the YAML file named by
// CONFIG_PATH (if any), then environment variables.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return cfg, nil
}

func LoadTestConfig() *Config {
	cfg := defaultConfig()
	cfg.Database = DatabaseConfig{
		Host:     "localhost",
		Port:     "5433", // test DB runs on 5433
		User:     "postgres",
		Password: "postgres",
		DBName:   "test_db",
		SSLMode:  "disable",
	}
	cfg.Redis = RedisConfig{
		Host:     "localhost",
		Port:     "6380", // test Redis runs on 6380
		Password: "",
		DB:       1,
	}
	cfg.Booking.SeatLockTTL = 200 * time.Millisecond
	cfg.Booking.PaymentSuccessRate = 1
	cfg.RateLimit.Enabled = false
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{Driver: "postgres"},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			DBName:   "postgres",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		Booking: BookingConfig{
			SeatLockTTL:        2 * time.Minute,
			PaymentSuccessRate: 0.95,
			LockSweepInterval:  time.Minute,
			LockSweepGrace:     30 * time.Second,
		},
		Pricing: PricingConfig{
			URL:      "http://localhost:8000",
			Timeout:  2 * time.Second,
			QuoteTTL: 30 * time.Second,
		},
		Queue: QueueConfig{
			Driver:             "redis",
			BufferSize:         1024,
			ClaimMinIdleTime:   5 * time.Second,
			MaxRetryCount:      5,
			ReadGroupBlockTime: 2 * time.Second,
		},
		Kafka: KafkaConfig{
			BookingTopic: "booking-events",
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			Window:       time.Minute,
			BookingLimit: 10,
			SearchLimit:  50,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Server.Address = getEnv("SERVER_ADDRESS", cfg.Server.Address)
	cfg.Storage.Driver = getEnv("STORAGE_DRIVER", cfg.Storage.Driver)

	cfg.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", cfg.Database.Host),
		Port:     getEnv("DB_PORT", cfg.Database.Port),
		User:     getEnv("DB_USER", cfg.Database.User),
		Password: getEnv("DB_PASSWORD", cfg.Database.Password),
		DBName:   getEnv("DB_NAME", cfg.Database.DBName),
		SSLMode:  getEnv("DB_SSL_MODE", cfg.Database.SSLMode),
	}

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Pricing.URL = getEnv("PRICING_SERVICE_URL", cfg.Pricing.URL)
	cfg.Queue.Driver = getEnv("QUEUE_DRIVER", cfg.Queue.Driver)
	cfg.Queue.ConsumerID = getEnv("QUEUE_CONSUMER_ID", cfg.Queue.ConsumerID)
	cfg.Kafka.BookingTopic = getEnv("KAFKA_BOOKING_TOPIC", cfg.Kafka.BookingTopic)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}
	if cfg.Booking.SeatLockTTL, err = getEnvDuration("SEAT_LOCK_TTL", cfg.Booking.SeatLockTTL); err != nil {
		return err
	}
	if cfg.Booking.LockSweepInterval, err = getEnvDuration("LOCK_SWEEP_INTERVAL", cfg.Booking.LockSweepInterval); err != nil {
		return err
	}
	if cfg.Booking.LockSweepGrace, err = getEnvDuration("LOCK_SWEEP_GRACE", cfg.Booking.LockSweepGrace); err != nil {
		return err
	}
	if cfg.RateLimit.Window, err = getEnvDuration("RATE_LIMIT_WINDOW", cfg.RateLimit.Window); err != nil {
		return err
	}
	if cfg.RateLimit.BookingLimit, err = getEnvInt("RATE_LIMIT_BOOKING", cfg.RateLimit.BookingLimit); err != nil {
		return err
	}
	if cfg.RateLimit.SearchLimit, err = getEnvInt("RATE_LIMIT_SEARCH", cfg.RateLimit.SearchLimit); err != nil {
		return err
	}
	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_ENABLED: %w", err)
		}
		cfg.RateLimit.Enabled = enabled
	}
	if cfg.Pricing.Timeout, err = getEnvDuration("PRICING_TIMEOUT", cfg.Pricing.Timeout); err != nil {
		return err
	}
	if cfg.Pricing.QuoteTTL, err = getEnvDuration("PRICE_QUOTE_TTL", cfg.Pricing.QuoteTTL); err != nil {
		return err
	}
	if v := os.Getenv("PAYMENT_SUCCESS_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid PAYMENT_SUCCESS_RATE: %w", err)
		}
		cfg.Booking.PaymentSuccessRate = rate
	}

	if cfg.Booking.SeatLockTTL <= 0 {
		return fmt.Errorf("seat lock ttl must be positive, got %s", cfg.Booking.SeatLockTTL)
	}
	if cfg.Booking.LockSweepInterval <= 0 {
		return fmt.Errorf("lock sweep interval must be positive, got %s", cfg.Booking.LockSweepInterval)
	}
	if cfg.Booking.LockSweepGrace < 0 {
		return fmt.Errorf("lock sweep grace must not be negative, got %s", cfg.Booking.LockSweepGrace)
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.Window <= 0 || cfg.RateLimit.BookingLimit <= 0 || cfg.RateLimit.SearchLimit <= 0) {
		return fmt.Errorf("rate limit window and limits must be positive")
	}
	if cfg.Booking.PaymentSuccessRate < 0 || cfg.Booking.PaymentSuccessRate > 1 {
		return fmt.Errorf("payment success rate must be within [0, 1], got %v", cfg.Booking.PaymentSuccessRate)
	}
	return nil
}

// RedisAddr returns host:port for the redis client.
func (r RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
