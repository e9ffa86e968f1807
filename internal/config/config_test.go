package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServerAddr != ":3000" {
		t.Errorf("ServerAddr = %q, want :3000", cfg.ServerAddr)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 15m", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want 168h", cfg.RefreshTokenTTL)
	}
	if cfg.LoginMaxAttempts != 10 {
		t.Errorf("LoginMaxAttempts = %d, want 10", cfg.LoginMaxAttempts)
	}
	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		t.Error("token secrets should never be empty")
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		t.Error("generated access and refresh secrets should differ")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
	t.Setenv("ACCESS_TOKEN_EXPIRATION", "5m")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "3")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg := Load()

	if cfg.ServerAddr != ":9090" {
		t.Errorf("ServerAddr = %q, want :9090", cfg.ServerAddr)
	}
	if cfg.AccessTokenSecret != "access-secret" {
		t.Errorf("AccessTokenSecret = %q", cfg.AccessTokenSecret)
	}
	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 5m", cfg.AccessTokenTTL)
	}
	if cfg.LoginMaxAttempts != 3 {
		t.Errorf("LoginMaxAttempts = %d, want 3", cfg.LoginMaxAttempts)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_EXPIRATION", "not-a-duration")
	t.Setenv("REFRESH_TOKEN_EXPIRATION", "-1h")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "0")

	cfg := Load()

	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("unparseable duration should fall back, got %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("non-positive duration should fall back, got %v", cfg.RefreshTokenTTL)
	}
	if cfg.LoginMaxAttempts != 10 {
		t.Errorf("non-positive attempts should fall back, got %d", cfg.LoginMaxAttempts)
	}
}
