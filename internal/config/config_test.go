package config

import (
	"testing"
	"time"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TicksPerDay != 144 || cfg.TxExpiryTicks != 1008 || cfg.MaxOwners != 10 {
		t.Fatalf("unexpected engine defaults %+v", cfg)
	}
	if cfg.TickInterval != 10*time.Minute {
		t.Fatalf("expected 10m ticks, got %s", cfg.TickInterval)
	}
	if !cfg.TickGenesis.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected genesis %s", cfg.TickGenesis)
	}
	if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
		t.Fatalf("expected development secrets")
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "a")
	t.Setenv("REFRESH_SECRET", "b")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/custody")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IsDevelopment() {
		t.Fatalf("production reported as development")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("TICKS_PER_DAY", "24")
	t.Setenv("TX_EXPIRY_TICKS", "48")
	t.Setenv("MAX_OWNERS", "5")
	t.Setenv("TICK_INTERVAL", "1h")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("SHUTDOWN_TIMEOUT", "1m")
	t.Setenv("IDEMPOTENCY_TTL", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TicksPerDay != 24 || cfg.TxExpiryTicks != 48 || cfg.MaxOwners != 5 || cfg.TickInterval != time.Hour {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ShutdownPeriod != 3*time.Second {
		t.Fatalf("seconds variant should win, got %s", cfg.ShutdownPeriod)
	}
	if cfg.IdempotencyTTL != 2*time.Hour {
		t.Fatalf("unexpected idempotency ttl %s", cfg.IdempotencyTTL)
	}
}

func TestLoadCapsMaxOwners(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("MAX_OWNERS", "11")
	if _, err := Load(); err == nil {
		t.Fatalf("expected MAX_OWNERS above 10 to be rejected")
	}
	t.Setenv("MAX_OWNERS", "10")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxOwners != 10 {
		t.Fatalf("expected 10 owners, got %d", cfg.MaxOwners)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"TICKS_PER_DAY":    "0",
		"MAX_OWNERS":       "many",
		"DB_MAX_CONNS":     "-2",
		"TICK_GENESIS":     "yesterday",
		"TICK_INTERVAL":    "-1m",
		"ACCESS_TOKEN_TTL": "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("APP_ENV", "development")
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
