package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	defaultAppName         = "Custody"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultTickInterval    = 10 * time.Minute
	defaultTickGenesis     = "2024-01-01T00:00:00Z"
	defaultTicksPerDay     = 144
	defaultTxExpiryTicks   = 1008
	defaultMaxOwners       = 10
	defaultDBMaxConns      = 10
	devJWTSecret           = "dev-access-secret"
	devRefreshSecret       = "dev-refresh-secret"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	DBMaxConns     int32
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	TickInterval            time.Duration
	TickGenesis             time.Time
	TicksPerDay             uint64
	TxExpiryTicks           uint64
	MaxOwners               int
	DelegationReplacePolicy string
}

// Load reads configuration values from the environment and populates a Config instance.
// Postgres, Redis and token secrets are optional only in development.
func Load() (Config, error) {
	cfg := Config{
		AppName:                 getEnv("APP_NAME", defaultAppName),
		AppEnv:                  getEnv("APP_ENV", defaultAppEnv),
		Port:                    getEnv("PORT", defaultPort),
		LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisURL:                os.Getenv("REDIS_URL"),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		RefreshSecret:           os.Getenv("REFRESH_SECRET"),
		DelegationReplacePolicy: os.Getenv("DELEGATION_REPLACE_POLICY"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv("", "ACCESS_TOKEN_TTL", defaultAccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = durationEnv("", "REFRESH_TOKEN_TTL", defaultRefreshTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.TickInterval, err = durationEnv("", "TICK_INTERVAL", defaultTickInterval); err != nil {
		return Config{}, err
	}
	if cfg.TickInterval <= 0 {
		return Config{}, fmt.Errorf("TICK_INTERVAL must be positive")
	}

	genesis := getEnv("TICK_GENESIS", defaultTickGenesis)
	if cfg.TickGenesis, err = time.Parse(time.RFC3339, genesis); err != nil {
		return Config{}, fmt.Errorf("invalid TICK_GENESIS: %w", err)
	}

	if cfg.TicksPerDay, err = uintEnv("TICKS_PER_DAY", defaultTicksPerDay); err != nil {
		return Config{}, err
	}
	if cfg.TxExpiryTicks, err = uintEnv("TX_EXPIRY_TICKS", defaultTxExpiryTicks); err != nil {
		return Config{}, err
	}
	maxOwners, err := uintEnv("MAX_OWNERS", defaultMaxOwners)
	if err != nil {
		return Config{}, err
	}
	if maxOwners > defaultMaxOwners {
		return Config{}, fmt.Errorf("invalid MAX_OWNERS: %d exceeds %d", maxOwners, defaultMaxOwners)
	}
	cfg.MaxOwners = int(maxOwners)
	maxConns, err := uintEnv("DB_MAX_CONNS", defaultDBMaxConns)
	if err != nil {
		return Config{}, err
	}
	cfg.DBMaxConns = int32(maxConns)

	if cfg.IsDevelopment() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
		if cfg.RefreshSecret == "" {
			cfg.RefreshSecret = devRefreshSecret
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET and REFRESH_SECRET must be set")
	}

	return cfg, nil
}

// IsDevelopment reports whether the app runs in a local environment where
// in-memory backends are acceptable.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads a whole number of seconds from secondsKey, or a Go
// duration string from durationKey. secondsKey wins when both are set.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func uintEnv(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := cast.ToUint64E(v)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
