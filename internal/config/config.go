package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Event sink names accepted in EVENTS_SINKS.
const (
	SinkRedis   = "redis"
	SinkKafka   = "kafka"
	SinkWebhook = "webhook"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsAuto bool          `mapstructure:"MIGRATIONS_AUTO"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFile       string `mapstructure:"LOG_FILE"`
	LogMaxSizeMB  int    `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `mapstructure:"LOG_MAX_AGE_DAYS"`

	EventsSinks       []string `mapstructure:"EVENTS_SINKS"`
	RedisURL          string   `mapstructure:"REDIS_URL"`
	EventsRedisStream string   `mapstructure:"EVENTS_REDIS_STREAM"`
	EventsRedisMaxLen int64    `mapstructure:"EVENTS_REDIS_MAXLEN"`
	KafkaBrokers      []string `mapstructure:"KAFKA_BROKERS"`
	EventsKafkaTopic  string   `mapstructure:"EVENTS_KAFKA_TOPIC"`
	WebhookURLs       []string `mapstructure:"WEBHOOK_URLS"`
	WebhookSecret     string   `mapstructure:"WEBHOOK_SECRET"`

	OTLPEndpoint      string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelSamplingRatio float64 `mapstructure:"OTEL_SAMPLING_RATIO"`

	BookingTimezone string `mapstructure:"BOOKING_TIMEZONE"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_AUTO",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
	"EVENTS_SINKS", "REDIS_URL", "EVENTS_REDIS_STREAM", "EVENTS_REDIS_MAXLEN",
	"KAFKA_BROKERS", "EVENTS_KAFKA_TOPIC", "WEBHOOK_URLS", "WEBHOOK_SECRET",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLING_RATIO", "BOOKING_TIMEZONE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_AUTO", true)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)
	v.SetDefault("EVENTS_REDIS_STREAM", "symptra:requests")
	v.SetDefault("EVENTS_REDIS_MAXLEN", 100000)
	v.SetDefault("EVENTS_KAFKA_TOPIC", "symptra.requests")
	v.SetDefault("OTEL_SAMPLING_RATIO", 1.0)
	v.SetDefault("BOOKING_TIMEZONE", "UTC")

	// Unmarshal only sees keys viper knows about.
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.EventsSinks = splitList(cfg.EventsSinks)
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	cfg.WebhookURLs = splitList(cfg.WebhookURLs)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// splitList normalizes list values that may arrive either already split or
// as a single comma separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SinkEnabled reports whether the named event sink is listed in EVENTS_SINKS.
func (c *Config) SinkEnabled(name string) bool {
	for _, s := range c.EventsSinks {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// Location resolves BOOKING_TIMEZONE. Booking dates are compared against
// "today" in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.BookingTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.BookingTimezone)
	if err != nil {
		return nil, fmt.Errorf("BOOKING_TIMEZONE %q: %w", c.BookingTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a token verifier must be configured, since every core operation relies on
// the caller identity.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	for _, s := range c.EventsSinks {
		switch strings.ToLower(s) {
		case SinkRedis, SinkKafka, SinkWebhook:
		default:
			return fmt.Errorf("EVENTS_SINKS: unknown sink %q", s)
		}
	}
	if c.SinkEnabled(SinkRedis) && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when the redis event sink is enabled")
	}
	if c.SinkEnabled(SinkKafka) && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when the kafka event sink is enabled")
	}
	if c.SinkEnabled(SinkWebhook) {
		if len(c.WebhookURLs) == 0 {
			return fmt.Errorf("WEBHOOK_URLS is required when the webhook event sink is enabled")
		}
		if c.WebhookSecret == "" {
			return fmt.Errorf("WEBHOOK_SECRET is required when the webhook event sink is enabled")
		}
	}

	if c.OTelSamplingRatio < 0 || c.OTelSamplingRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be within [0,1], got %v", c.OTelSamplingRatio)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
