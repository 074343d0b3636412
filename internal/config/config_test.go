package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "ENV", "REDIS_URL", "DATABASE_URL", "SQLITE_PATH", "ALLOWED_ORIGINS", "ROOM_IDLE_TTL", "MAX_FRAME_BYTES", "WS_FRAME_LIMIT", "WS_FRAME_WINDOW", "PAYU_KEY", "PAYU_SALT"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if !cfg.IsDevelopment() {
		t.Errorf("Env = %q, want development", cfg.Env)
	}
	if cfg.RoomIdleTTL != 10*time.Minute {
		t.Errorf("RoomIdleTTL = %v", cfg.RoomIdleTTL)
	}
	if cfg.MaxFrameBytes != 64*1024 {
		t.Errorf("MaxFrameBytes = %d", cfg.MaxFrameBytes)
	}
	if cfg.FrameLimit != 30 || cfg.FrameWindow != 10*time.Second {
		t.Errorf("FrameLimit = %d per %v, want 30 per 10s", cfg.FrameLimit, cfg.FrameWindow)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Errorf("AllowedOrigins = %v, want empty", cfg.AllowedOrigins)
	}
	if cfg.PaymentsEnabled() {
		t.Error("payments should be disabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "staging")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.0/8,127.0.0.1")
	t.Setenv("ROOM_IDLE_TTL", "90s")
	t.Setenv("ROOM_SWEEP_INTERVAL", "not-a-duration")
	t.Setenv("MAX_FRAME_BYTES", "1024")
	t.Setenv("PAYU_KEY", "key")
	t.Setenv("PAYU_SALT", "salt")

	cfg := Load()

	if cfg.Port != "9000" || cfg.Env != "staging" {
		t.Errorf("unexpected port/env: %q %q", cfg.Port, cfg.Env)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if len(cfg.RateLimitWhitelist) != 2 {
		t.Errorf("RateLimitWhitelist = %v", cfg.RateLimitWhitelist)
	}
	if cfg.RoomIdleTTL != 90*time.Second {
		t.Errorf("RoomIdleTTL = %v", cfg.RoomIdleTTL)
	}
	if cfg.RoomSweepInterval != time.Minute {
		t.Errorf("invalid duration should fall back, got %v", cfg.RoomSweepInterval)
	}
	if cfg.MaxFrameBytes != 1024 {
		t.Errorf("MaxFrameBytes = %d", cfg.MaxFrameBytes)
	}
	if !cfg.PaymentsEnabled() {
		t.Error("payments should be enabled")
	}
}

func TestLoadProductionRequiresRedis(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("REDIS_URL", "")
	t.Setenv("SQLITE_PATH", "/tmp/neon.db")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic without REDIS_URL in production")
		}
	}()
	Load()
}
