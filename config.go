package inventory

import (
	"os"
	"strconv"
	"time"
)

// Config carries the engine tunables. Zero values are replaced by the
// defaults below, so a host can construct one by hand or from the
// environment via LoadConfig.
type Config struct {
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NatsURL       string

	// QueueCapacity bounds the in-memory update queue; UpdateInventory
	// fails fast once it is full.
	QueueCapacity int

	// BatchSize is the maximum number of updates claimed per processing
	// cycle.
	BatchSize int

	// ProcessInterval is the steady-state cadence of the queue processor;
	// enqueued updates additionally wake it immediately.
	ProcessInterval time.Duration

	// ReservationTTL is how long a hold stays valid before the expiry
	// sweep reclaims it.
	ReservationTTL time.Duration

	// MaxApplyAttempts caps retries of a failing queued update before it
	// is dropped with a loud log.
	MaxApplyAttempts int

	// ExpirySweepLimit bounds how many expired holds one sweep reclaims.
	ExpirySweepLimit int64
}

const (
	defaultQueueCapacity    = 10000
	defaultBatchSize        = 50
	defaultProcessInterval  = 2 * time.Second
	defaultReservationTTL   = 30 * time.Minute
	defaultMaxApplyAttempts = 5
	defaultExpirySweepLimit = 200
)

func DefaultConfig() *Config {
	return &Config{
		NatsURL:          "nats://127.0.0.1:4222",
		RedisAddr:        "127.0.0.1:6379",
		QueueCapacity:    defaultQueueCapacity,
		BatchSize:        defaultBatchSize,
		ProcessInterval:  defaultProcessInterval,
		ReservationTTL:   defaultReservationTTL,
		MaxApplyAttempts: defaultMaxApplyAttempts,
		ExpirySweepLimit: defaultExpirySweepLimit,
	}
}

// LoadConfig reads the environment, falling back to defaults for anything
// unset or unparsable.
func LoadConfig() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("INVENTORY_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("INVENTORY_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("INVENTORY_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v, err := strconv.Atoi(os.Getenv("INVENTORY_REDIS_DB")); err == nil {
		cfg.RedisDB = v
	}
	if v := os.Getenv("INVENTORY_NATS_URL"); v != "" {
		cfg.NatsURL = v
	}
	if v, err := strconv.Atoi(os.Getenv("INVENTORY_QUEUE_CAPACITY")); err == nil && v > 0 {
		cfg.QueueCapacity = v
	}
	if v, err := strconv.Atoi(os.Getenv("INVENTORY_BATCH_SIZE")); err == nil && v > 0 {
		cfg.BatchSize = v
	}
	if v, err := time.ParseDuration(os.Getenv("INVENTORY_PROCESS_INTERVAL")); err == nil && v > 0 {
		cfg.ProcessInterval = v
	}
	if v, err := time.ParseDuration(os.Getenv("INVENTORY_RESERVATION_TTL")); err == nil && v > 0 {
		cfg.ReservationTTL = v
	}
	if v, err := strconv.Atoi(os.Getenv("INVENTORY_MAX_APPLY_ATTEMPTS")); err == nil && v > 0 {
		cfg.MaxApplyAttempts = v
	}
	if v, err := strconv.ParseInt(os.Getenv("INVENTORY_EXPIRY_SWEEP_LIMIT"), 10, 64); err == nil && v > 0 {
		cfg.ExpirySweepLimit = v
	}

	return cfg
}

// normalize fills unset fields so callers can pass a sparse Config.
func (c *Config) normalize() {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.ProcessInterval <= 0 {
		c.ProcessInterval = defaultProcessInterval
	}
	if c.ReservationTTL <= 0 {
		c.ReservationTTL = defaultReservationTTL
	}
	if c.MaxApplyAttempts <= 0 {
		c.MaxApplyAttempts = defaultMaxApplyAttempts
	}
	if c.ExpirySweepLimit <= 0 {
		c.ExpirySweepLimit = defaultExpirySweepLimit
	}
}
