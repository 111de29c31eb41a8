package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FEED_URL", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("FEED_DEDUPE_TTL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DBDsn == "" {
		t.Errorf("expected default dsn, got empty")
	}
	if cfg.DedupeTTL != 10*time.Minute {
		t.Errorf("DedupeTTL = %v, want 10m", cfg.DedupeTTL)
	}
	if cfg.QueueMaxLen != 256 {
		t.Errorf("QueueMaxLen = %d, want 256", cfg.QueueMaxLen)
	}
}

func TestLoadDurationOverride(t *testing.T) {
	t.Setenv("FEED_BACKOFF_BASE", "5s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.BackoffBase != 5*time.Second {
		t.Errorf("BackoffBase = %v, want 5s", cfg.BackoffBase)
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("FEED_BACKOFF_BASE", "soon")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for invalid duration")
	}
	t.Setenv("FEED_BACKOFF_BASE", "-2s")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for negative duration")
	}
}

func TestValidateFeedReady(t *testing.T) {
	t.Setenv("FEED_URL", "ws://localhost:8765/events")
	cfg, _ := Load()
	if err := cfg.ValidateFeedReady(); err != nil {
		t.Errorf("expected valid feed config, got %v", err)
	}
	t.Setenv("FEED_URL", "")
	cfg, _ = Load()
	if err := cfg.ValidateFeedReady(); err == nil {
		t.Errorf("expected error when FEED_URL missing")
	}
}
