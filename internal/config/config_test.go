package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Create a temporary YAML config file.
	yamlContent := []byte(`
server:
  host: "127.0.0.1"
  port: 9000
storage:
  data_dir: "/tmp/nsewatch/data"
  sqlite_path: "/tmp/nsewatch/nsewatch.db"
redis:
  addr: "localhost:6379"
  db: 2
upstream:
  base_url: "https://example.test"
  timeout: 5s
  rate_limit_per_min: 30
market:
  timezone: "Asia/Kolkata"
  open: "09:15"
  close: "15:30"
  holidays:
    - "2026-01-26"
    - "2026-03-06"
cache:
  hot_ttl: 60s
  main_ttl: 5m
  static_ttl: 1h
  sweep_interval: 30s
logging:
  level: "debug"
  format: "text"
`)

	tmpFile, err := os.CreateTemp("", "nsewatch-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}

	// Clear any environment overrides that might interfere.
	os.Unsetenv("DATA_DIR")
	os.Unsetenv("SQLITE_PATH")
	os.Unsetenv("REDIS_ADDR")
	os.Unsetenv("NSE_BASE_URL")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Server --
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/nsewatch/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/nsewatch/data")
	}

	// -- Redis --
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want %q", cfg.Redis.Addr, "localhost:6379")
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("Redis.DB = %d, want %d", cfg.Redis.DB, 2)
	}

	// -- Upstream --
	if cfg.Upstream.BaseURL != "https://example.test" {
		t.Errorf("Upstream.BaseURL = %q, want %q", cfg.Upstream.BaseURL, "https://example.test")
	}
	if cfg.Upstream.Timeout.Std() != 5*time.Second {
		t.Errorf("Upstream.Timeout = %v, want %v", cfg.Upstream.Timeout.Std(), 5*time.Second)
	}
	if cfg.Upstream.RateLimitPerMin != 30 {
		t.Errorf("Upstream.RateLimitPerMin = %d, want %d", cfg.Upstream.RateLimitPerMin, 30)
	}

	// -- Market --
	if cfg.Market.Open != "09:15" || cfg.Market.Close != "15:30" {
		t.Errorf("Market window = %q-%q, want 09:15-15:30", cfg.Market.Open, cfg.Market.Close)
	}
	if len(cfg.Market.Holidays) != 2 {
		t.Errorf("len(Market.Holidays) = %d, want 2", len(cfg.Market.Holidays))
	}

	// -- Cache --
	if cfg.Cache.HotTTL.Std() != time.Minute {
		t.Errorf("Cache.HotTTL = %v, want %v", cfg.Cache.HotTTL.Std(), time.Minute)
	}
	if cfg.Cache.StaticTTL.Std() != time.Hour {
		t.Errorf("Cache.StaticTTL = %v, want %v", cfg.Cache.StaticTTL.Std(), time.Hour)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "text")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Fatal("Load should fail for a missing file")
	}
}

func TestDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("NSE_BASE_URL", "https://override.test")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := Default()
	applyEnvOverrides(cfg)

	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("Redis.Addr = %q, want env override", cfg.Redis.Addr)
	}
	if cfg.Upstream.BaseURL != "https://override.test" {
		t.Errorf("Upstream.BaseURL = %q, want env override", cfg.Upstream.BaseURL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}

	// Untouched defaults survive.
	if cfg.Market.Timezone != "Asia/Kolkata" {
		t.Errorf("Market.Timezone = %q, want default", cfg.Market.Timezone)
	}
	if cfg.Cache.MainTTL.Std() != 5*time.Minute {
		t.Errorf("Cache.MainTTL = %v, want default 5m", cfg.Cache.MainTTL)
	}
}
