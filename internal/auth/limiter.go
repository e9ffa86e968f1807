package auth

import (
	"context"
	"errors"
	"time"

	"github.com/heshamtamer/RPM/internal/logger"
	"github.com/redis/go-redis/v9"
)

var ErrRateLimited = errors.New("too many login attempts")

// LoginLimiter throttles login attempts per email and per client IP using
// counters in Redis. The first attempt in a window starts the expiry clock;
// attempts past the limit are rejected before credentials are checked.
type LoginLimiter struct {
	redis       *redis.Client
	maxAttempts int
	window      time.Duration
	log         *logger.Logger
}

func NewLoginLimiter(redisClient *redis.Client, maxAttempts int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{
		redis:       redisClient,
		maxAttempts: maxAttempts,
		window:      window,
		log:         logger.Default().WithComponent("limiter"),
	}
}

// Allow returns ErrRateLimited when the email or IP has exceeded its
// attempt budget for the current window. A Redis outage fails open: login
// availability wins over throttling.
func (l *LoginLimiter) Allow(ctx context.Context, email, ip string) error {
	if err := l.check(ctx, "login:email:"+email); err != nil {
		return err
	}
	if ip != "" {
		if err := l.check(ctx, "login:ip:"+ip); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the attempt counters after a successful login. Both keys
// are cleared; otherwise clients behind a shared NAT would exhaust the IP
// budget with nothing but successful logins.
func (l *LoginLimiter) Reset(ctx context.Context, email, ip string) {
	keys := []string{"login:email:" + email}
	if ip != "" {
		keys = append(keys, "login:ip:"+ip)
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		l.log.Warn(ctx, "failed to reset login attempt counters", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (l *LoginLimiter) check(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		l.log.Warn(ctx, "login limiter unavailable, allowing attempt", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			l.log.Warn(ctx, "failed to set login attempt window", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if count > int64(l.maxAttempts) {
		return ErrRateLimited
	}

	return nil
}
