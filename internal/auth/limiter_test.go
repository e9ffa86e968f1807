package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, maxAttempts int, window time.Duration) (*LoginLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewLoginLimiter(client, maxAttempts, window), mr
}

func TestLoginLimiterEnforcesAttemptBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "a@x.com", ""); err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i+1, err)
		}
	}

	if err := limiter.Allow(ctx, "a@x.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Errorf("attempt over budget: expected ErrRateLimited, got %v", err)
	}

	// A different email has its own budget.
	if err := limiter.Allow(ctx, "b@x.com", ""); err != nil {
		t.Errorf("unrelated email should be allowed: %v", err)
	}
}

func TestLoginLimiterPerIPBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.Allow(ctx, "a@x.com", "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i+1, err)
		}
	}

	// Same IP with a fresh email still hits the IP budget.
	if err := limiter.Allow(ctx, "b@x.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited on shared IP, got %v", err)
	}
}

func TestLoginLimiterWindowExpiry(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.Allow(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("first attempt should be allowed: %v", err)
	}
	if err := limiter.Allow(ctx, "a@x.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := limiter.Allow(ctx, "a@x.com", ""); err != nil {
		t.Errorf("attempt after window expiry should be allowed: %v", err)
	}
}

func TestLoginLimiterReset(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.Allow(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("first attempt should be allowed: %v", err)
	}

	limiter.Reset(ctx, "a@x.com", "")

	if err := limiter.Allow(ctx, "a@x.com", ""); err != nil {
		t.Errorf("attempt after reset should be allowed: %v", err)
	}
}

func TestLoginLimiterResetClearsIPBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	// Many users behind one NAT, each logging in successfully: resetting
	// after each login must keep the shared IP under its budget.
	for i := 0; i < 5; i++ {
		email := string(rune('a'+i)) + "@x.com"
		if err := limiter.Allow(ctx, email, "10.0.0.1"); err != nil {
			t.Fatalf("login %d from shared IP should be allowed: %v", i+1, err)
		}
		limiter.Reset(ctx, email, "10.0.0.1")
	}
}

func TestLoginLimiterFailsOpen(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	mr.Close()

	if err := limiter.Allow(ctx, "a@x.com", ""); err != nil {
		t.Errorf("limiter should fail open when redis is down, got %v", err)
	}
}
