package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port         string
	MaxBodyBytes int64

	// Storage
	DBDriver string
	DBDSN    string
	SeedFile string

	// Logging
	LogLevel  string
	LogFormat string

	// Evaluation
	ClockSkew         time.Duration
	TicksPerValidator int
	LatencyFactor     float64
	UnhealthyDebounce int
	HealthyDebounce   int
	CriticalAfter     time.Duration
	MinCheckInterval  time.Duration
	CacheTTL          time.Duration

	// Retention
	RetentionDays int
	AuditLogKeep  int

	// Downstream alerting
	RedisURL          string
	RedisChannel      string
	WebhookURL        string
	WebhookSecret     string
	DiscordWebhookURL string

	// Access
	OperatorTokenHash      string
	OperatorToken          string
	RequireTickSignatures  bool
	RegistrationsPerMinute int
	MaxInflightTicks       int

	// Built-in validator
	LocalValidatorID       string
	LocalValidatorLocation string
	ProbeTimeout           time.Duration
}

// Load reads configuration from the environment, after loading .env if present
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getenv("PORT", "4555"),
		MaxBodyBytes: int64(envInt("MAX_BODY_BYTES", 1<<20)),

		DBDriver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBDSN:    getenv("DB_DSN", ""),
		SeedFile: getenv("SEED_FILE", ""),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "auto"),

		ClockSkew:         envDurMillis("CLOCK_SKEW_MS", 5000),
		TicksPerValidator: envInt("STATUS_TICKS_PER_VALIDATOR", 3),
		LatencyFactor:     envFloat("LATENCY_DEGRADED_FACTOR", 3.0),
		UnhealthyDebounce: envInt("UNHEALTHY_DEBOUNCE", 2),
		HealthyDebounce:   envInt("HEALTHY_DEBOUNCE", 2),
		CriticalAfter:     envDurSecs("CRITICAL_AFTER_SECONDS", 1800),
		MinCheckInterval:  envDurSecs("MIN_CHECK_INTERVAL_SECONDS", 10),
		CacheTTL:          envDurSecs("CACHE_TTL_SECONDS", 30),

		RetentionDays: envInt("RETENTION_DAYS", 35),
		AuditLogKeep:  envInt("AUDIT_LOG_KEEP", 10000),

		RedisURL:          getenv("REDIS_URL", ""),
		RedisChannel:      getenv("REDIS_CHANNEL", "uptime:events"),
		WebhookURL:        getenv("WEBHOOK_URL", ""),
		WebhookSecret:     getenv("WEBHOOK_SECRET", ""),
		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),

		OperatorTokenHash:      getenv("OPERATOR_TOKEN_BCRYPT", ""),
		OperatorToken:          getenv("OPERATOR_TOKEN", ""),
		RequireTickSignatures:  envBool("REQUIRE_TICK_SIGNATURES", false),
		RegistrationsPerMinute: envInt("REGISTRATIONS_PER_MINUTE", 30),
		MaxInflightTicks:       envInt("MAX_INFLIGHT_TICKS", 256),

		LocalValidatorID:       getenv("LOCAL_VALIDATOR_ID", ""),
		LocalValidatorLocation: getenv("LOCAL_VALIDATOR_LOCATION", "local"),
		ProbeTimeout:           envDurSecs("PROBE_TIMEOUT_SECONDS", 10),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite":
		if c.DBDSN == "" {
			c.DBDSN = "./data/uptime.db"
		}
	case "postgres":
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required for DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (sqlite or postgres)", c.DBDriver)
	}
	if c.TicksPerValidator < 1 {
		return fmt.Errorf("STATUS_TICKS_PER_VALIDATOR must be at least 1")
	}
	if c.UnhealthyDebounce < 1 || c.HealthyDebounce < 1 {
		return fmt.Errorf("UNHEALTHY_DEBOUNCE and HEALTHY_DEBOUNCE must be at least 1")
	}
	if c.LatencyFactor < 0 {
		return fmt.Errorf("LATENCY_DEGRADED_FACTOR must not be negative")
	}
	if c.RetentionDays < 31 {
		return fmt.Errorf("RETENTION_DAYS must cover the 30 day window (at least 31)")
	}
	return nil
}

// TickRetention returns RetentionDays as a duration
func (c *Config) TickRetention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Helper functions
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	v := strings.ToLower(getenv(k, ""))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func envDurSecs(k string, def int) time.Duration {
	return time.Duration(envInt(k, def)) * time.Second
}

func envDurMillis(k string, def int) time.Duration {
	return time.Duration(envInt(k, def)) * time.Millisecond
}
