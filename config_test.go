package inventory

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.QueueCapacity != 10000 {
		t.Fatalf("QueueCapacity = %d, want 10000", cfg.QueueCapacity)
	}
	if cfg.BatchSize != 50 {
		t.Fatalf("BatchSize = %d, want 50", cfg.BatchSize)
	}
	if cfg.ReservationTTL != 30*time.Minute {
		t.Fatalf("ReservationTTL = %s, want 30m", cfg.ReservationTTL)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("INVENTORY_BATCH_SIZE", "7")
	t.Setenv("INVENTORY_PROCESS_INTERVAL", "250ms")
	t.Setenv("INVENTORY_NATS_URL", "nats://broker:4222")
	t.Setenv("INVENTORY_MAX_APPLY_ATTEMPTS", "2")
	t.Setenv("INVENTORY_EXPIRY_SWEEP_LIMIT", "25")

	cfg := LoadConfig()

	if cfg.BatchSize != 7 {
		t.Fatalf("BatchSize = %d, want 7", cfg.BatchSize)
	}
	if cfg.MaxApplyAttempts != 2 {
		t.Fatalf("MaxApplyAttempts = %d, want 2", cfg.MaxApplyAttempts)
	}
	if cfg.ExpirySweepLimit != 25 {
		t.Fatalf("ExpirySweepLimit = %d, want 25", cfg.ExpirySweepLimit)
	}
	if cfg.ProcessInterval != 250*time.Millisecond {
		t.Fatalf("ProcessInterval = %s, want 250ms", cfg.ProcessInterval)
	}
	if cfg.NatsURL != "nats://broker:4222" {
		t.Fatalf("NatsURL = %q", cfg.NatsURL)
	}
}

func TestConfigNormalizeRejectsNonPositive(t *testing.T) {
	cfg := Config{QueueCapacity: -1, BatchSize: 0}
	cfg.normalize()

	if cfg.QueueCapacity <= 0 || cfg.BatchSize <= 0 {
		t.Fatalf("normalize left non-positive values: %+v", cfg)
	}
	if cfg.ProcessInterval <= 0 || cfg.ReservationTTL <= 0 {
		t.Fatalf("normalize left non-positive durations: %+v", cfg)
	}
}
