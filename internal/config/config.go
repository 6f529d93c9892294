// Package config loads the nsewatch YAML configuration and applies
// environment variable overrides.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Duration wraps time.Duration so YAML values like "90s" or "5m" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level configuration for the nsewatch platform.
type Config struct {
	Server   Server   `yaml:"server"`
	Storage  Storage  `yaml:"storage"`
	Redis    Redis    `yaml:"redis"`
	Upstream Upstream `yaml:"upstream"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Market   Market   `yaml:"market"`
	Cache    Cache    `yaml:"cache"`
	Logging  Logging  `yaml:"logging"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Redis holds the optional Redis snapshot-store connection. An empty Addr
// disables Redis and the SQLite store is used instead.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Upstream configures the NSE market-data source.
type Upstream struct {
	BaseURL         string   `yaml:"base_url"`
	Timeout         Duration `yaml:"timeout"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// Alpaca holds credentials for the optional US-listings provider.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Market configures the trading session window and holiday calendar.
// Times are "HH:MM" in the configured IANA time zone; holidays are
// "YYYY-MM-DD" dates. An empty holiday list means no holidays.
type Market struct {
	Timezone string   `yaml:"timezone"`
	Open     string   `yaml:"open"`
	Close    string   `yaml:"close"`
	Holidays []string `yaml:"holidays"`
}

// Cache configures default TTLs per tier and the expiry sweep interval.
type Cache struct {
	HotTTL        Duration `yaml:"hot_ttl"`
	MainTTL       Duration `yaml:"main_ttl"`
	StaticTTL     Duration `yaml:"static_ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config with working defaults for every field so the
// server can start without a config file.
func Default() *Config {
	return &Config{
		Server:  Server{Host: "0.0.0.0", Port: 8080},
		Storage: Storage{DataDir: "data", SQLitePath: "data/nsewatch.db"},
		Upstream: Upstream{
			BaseURL:         "https://www.nseindia.com",
			Timeout:         Duration(10 * time.Second),
			RateLimitPerMin: 60,
		},
		Market: Market{
			Timezone: "Asia/Kolkata",
			Open:     "09:15",
			Close:    "15:30",
		},
		Cache: Cache{
			HotTTL:        Duration(60 * time.Second),
			MainTTL:       Duration(5 * time.Minute),
			StaticTTL:     Duration(time.Hour),
			SweepInterval: Duration(30 * time.Second),
		},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Load reads the YAML configuration file at the given path on top of the
// defaults, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("NSE_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
