package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/ttacon/libphonenumber"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	AMQPURL            string        `mapstructure:"AMQP_URL"`
	AMQPExchange       string        `mapstructure:"AMQP_EXCHANGE"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	DefaultPhoneRegion string        `mapstructure:"DEFAULT_PHONE_REGION"`
	AssetCacheTTL      time.Duration `mapstructure:"ASSET_CACHE_TTL"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit          string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	MigrationsDir      string        `mapstructure:"MIGRATIONS_DIR"`
	ServiceName        string        `mapstructure:"SERVICE_NAME"`
	TraceExporter      string        `mapstructure:"TRACE_EXPORTER"`
	TraceSampleRatio   float64       `mapstructure:"TRACE_SAMPLE_RATIO"`
	OTLPEndpoint       string        `mapstructure:"OTLP_ENDPOINT"`
	OTLPInsecure       bool          `mapstructure:"OTLP_INSECURE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "AMQP_URL", "AMQP_EXCHANGE", "CORS_ORIGINS",
	"DEFAULT_PHONE_REGION", "ASSET_CACHE_TTL", "REQUEST_TIMEOUT",
	"BODY_LIMIT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "MIGRATIONS_DIR",
	"SERVICE_NAME", "TRACE_EXPORTER", "TRACE_SAMPLE_RATIO", "OTLP_ENDPOINT",
	"OTLP_INSECURE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AMQP_EXCHANGE", "clinic.events")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("DEFAULT_PHONE_REGION", "BR")
	v.SetDefault("ASSET_CACHE_TTL", "60s")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("SERVICE_NAME", "clinica-backend")
	v.SetDefault("TRACE_SAMPLE_RATIO", 1.0)

	// Bind explicitly so Unmarshal sees variables that only exist in the env.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.DefaultPhoneRegion = strings.ToUpper(strings.TrimSpace(cfg.DefaultPhoneRegion))
	cfg.TraceExporter = strings.ToLower(strings.TrimSpace(cfg.TraceExporter))
	if cfg.TraceExporter == "" {
		// Spans go to stderr while developing and to a collector elsewhere.
		cfg.TraceExporter = "otlp"
		if cfg.IsDev() {
			cfg.TraceExporter = "stdout"
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// splitList flattens comma separated entries and drops blanks.
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

// CacheEnabled reports whether a Redis URL was configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisURL != ""
}

// EventsEnabled reports whether an AMQP broker was configured.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

// Validate checks that the configuration is usable before anything connects.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d), got %d", c.DBMaxConns, c.DBMinConns)
	}

	if libphonenumber.GetCountryCodeForRegion(c.DefaultPhoneRegion) == 0 {
		return fmt.Errorf("DEFAULT_PHONE_REGION %q is not a known region code", c.DefaultPhoneRegion)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.AssetCacheTTL < 0 {
		return fmt.Errorf("ASSET_CACHE_TTL must not be negative, got %s", c.AssetCacheTTL)
	}

	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}

	switch c.TraceExporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("TRACE_EXPORTER must be none, stdout or otlp, got %q", c.TraceExporter)
	}
	if c.TraceSampleRatio <= 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATIO must be in (0, 1], got %v", c.TraceSampleRatio)
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("CORS_ORIGINS must list at least one origin")
	}

	return nil
}
