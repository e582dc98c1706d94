package config

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when JWT_SECRET is empty")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_URL", "postgres://localhost/chat")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("RECONCILE_SETTLE_DELAY", "")
	t.Setenv("ACCESS_TOKEN_TTL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Fatalf("expected postgres driver, got %q", cfg.StoreDriver)
	}
	if cfg.ReconcileSettleDelay != 100*time.Millisecond {
		t.Fatalf("expected 100ms settle delay, got %s", cfg.ReconcileSettleDelay)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected 15m access ttl, got %s", cfg.AccessTokenTTL)
	}
}

func TestLoadConfigMemoryDriverSkipsDatabase(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_URL", "")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("RECONCILE_SETTLE_DELAY", "250ms")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.UseMemoryStore() {
		t.Fatal("expected memory store")
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development env, got %q", cfg.AppEnv)
	}
	if cfg.ReconcileSettleDelay != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.ReconcileSettleDelay)
	}
}

func TestLoadConfigRejectsPostgresWithoutURL(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_URL", "")
	t.Setenv("STORE_DRIVER", "postgres")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without DB_URL")
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "sqlite")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestGetEnvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("PRESENCE_TTL", "soon")

	if got := getEnvDuration("PRESENCE_TTL", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}

	t.Setenv("PRESENCE_TTL", "-5s")
	if got := getEnvDuration("PRESENCE_TTL", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for negative value, got %s", got)
	}
}

func TestNormalizeEnv(t *testing.T) {
	cases := map[string]string{
		"dev":     "development",
		" Local ": "development",
		"PROD":    "production",
		"stage":   "staging",
		"testing": "test",
		"qa":      "qa",
	}
	for in, want := range cases {
		if got := normalizeEnv(in); got != want {
			t.Fatalf("normalizeEnv(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("LOG_REQUESTS", "off")
	if getEnvBool("LOG_REQUESTS", true) {
		t.Fatal("expected off to disable")
	}

	t.Setenv("LOG_REQUESTS", "maybe")
	if !getEnvBool("LOG_REQUESTS", true) {
		t.Fatal("expected fallback for unknown value")
	}
}
