package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Funnelsight application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Events    EventsConfig
	Facebook  FacebookConfig
	FXRates   FXRatesConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Geo       GeoConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// EventsConfig configures the ClickHouse event log connection.
type EventsConfig struct {
	Addr     string
	Database string
	User     string
	Password string
	// BatchIDLimit caps how many ids go into a single IN (...) query
	// when resolving large id lists.
	BatchIDLimit int
}

// FacebookConfig configures the Meta Marketing API client.
type FacebookConfig struct {
	BaseURL     string
	APIVersion  string
	AccessToken string
	AdAccountID string
	// CallInterval is the pause between consecutive insight calls,
	// required by the platform's rate limits.
	CallInterval time.Duration
	Timeout      time.Duration
}

// FXRatesConfig configures the historical FX-rate API client.
type FXRatesConfig struct {
	BaseURL   string
	AccessKey string
	Timeout   time.Duration
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// GeoConfig configures GeoIP region enrichment for the collector.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("FUNNELSIGHT_HTTP_ADDR", ":8080"),
			Env:             getEnv("FUNNELSIGHT_ENV", "development"),
			ShutdownTimeout: getDurationEnv("FUNNELSIGHT_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("FUNNELSIGHT_DB_HOST", "localhost"),
			Port:     getIntEnv("FUNNELSIGHT_DB_PORT", 5432),
			User:     getEnv("FUNNELSIGHT_DB_USER", "funnelsight"),
			Password: getEnv("FUNNELSIGHT_DB_PASSWORD", "funnelsight_secret"),
			DBName:   getEnv("FUNNELSIGHT_DB_NAME", "funnelsight"),
			SSLMode:  getEnv("FUNNELSIGHT_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("FUNNELSIGHT_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("FUNNELSIGHT_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("FUNNELSIGHT_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("FUNNELSIGHT_REDIS_PASSWORD", ""),
			DB:       getIntEnv("FUNNELSIGHT_REDIS_DB", 0),
		},
		Events: EventsConfig{
			Addr:         getEnv("FUNNELSIGHT_CLICKHOUSE_ADDR", "localhost:9000"),
			Database:     getEnv("FUNNELSIGHT_CLICKHOUSE_DB", "funnelsight"),
			User:         getEnv("FUNNELSIGHT_CLICKHOUSE_USER", "default"),
			Password:     getEnv("FUNNELSIGHT_CLICKHOUSE_PASSWORD", ""),
			BatchIDLimit: getIntEnv("FUNNELSIGHT_CLICKHOUSE_BATCH_IDS", 500),
		},
		Facebook: FacebookConfig{
			BaseURL:      getEnv("FUNNELSIGHT_FB_BASE_URL", "https://graph.facebook.com"),
			APIVersion:   getEnv("FUNNELSIGHT_FB_API_VERSION", "v18.0"),
			AccessToken:  getEnv("FUNNELSIGHT_FB_ACCESS_TOKEN", ""),
			AdAccountID:  getEnv("FUNNELSIGHT_FB_AD_ACCOUNT_ID", ""),
			CallInterval: getDurationEnv("FUNNELSIGHT_FB_CALL_INTERVAL", 400*time.Millisecond),
			Timeout:      getDurationEnv("FUNNELSIGHT_FB_TIMEOUT", 30*time.Second),
		},
		FXRates: FXRatesConfig{
			BaseURL:   getEnv("FUNNELSIGHT_FX_BASE_URL", "https://api.exchangerate.host"),
			AccessKey: getEnv("FUNNELSIGHT_FX_ACCESS_KEY", ""),
			Timeout:   getDurationEnv("FUNNELSIGHT_FX_TIMEOUT", 15*time.Second),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("FUNNELSIGHT_AUTH_ENABLED", true),
			MasterKey: getEnv("FUNNELSIGHT_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("FUNNELSIGHT_AUTH_SKIP_PATHS", []string{"/health", "/metrics", "/track"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("FUNNELSIGHT_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("FUNNELSIGHT_RATE_LIMIT_RPS", 50),
			Burst:   getIntEnv("FUNNELSIGHT_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("FUNNELSIGHT_LOG_LEVEL", "info"),
			Format: getEnv("FUNNELSIGHT_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("FUNNELSIGHT_METRICS_ENABLED", true),
			Path:    getEnv("FUNNELSIGHT_METRICS_PATH", "/metrics"),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("FUNNELSIGHT_GEO_ENABLED", false),
			DatabasePath: getEnv("FUNNELSIGHT_GEO_DB_PATH", "/app/data/GeoLite2-City.mmdb"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("FUNNELSIGHT_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Facebook.AccessToken != "" && c.Facebook.AdAccountID == "" {
		return fmt.Errorf("FUNNELSIGHT_FB_AD_ACCOUNT_ID is required when a Facebook token is set")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
