package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/evently/evently/pkg/response"
	"github.com/evently/evently/pkg/telemetry"
)

// RateLimitKeyPrefix namespaces rate limit counters in Redis
const RateLimitKeyPrefix = "ratelimit:booking:"

// RateLimiterStore is the subset of redis operations the limiter needs
type RateLimiterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// UserRateLimitConfig holds per-user rate limiting configuration
type UserRateLimitConfig struct {
	Store RateLimiterStore
	// MaxRequests per window per user
	MaxRequests int
	// Window size for the fixed window counter
	Window time.Duration
}

// DefaultUserRateLimitConfig returns the default booking rate limit
func DefaultUserRateLimitConfig(store RateLimiterStore) *UserRateLimitConfig {
	return &UserRateLimitConfig{
		Store:       store,
		MaxRequests: 10,
		Window:      time.Minute,
	}
}

// UserRateLimiter limits booking attempts per authenticated user using a
// fixed window counter in Redis. Must run after RequireAuth. Fails open
// when Redis is unavailable.
func UserRateLimiter(config *UserRateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), "middleware.user_rate_limiter")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		userID, ok := GetUserID(c)
		if !ok {
			c.Next()
			return
		}
		span.SetAttributes(attribute.String("user_id", userID))

		window := time.Now().Unix() / int64(config.Window.Seconds())
		key := RateLimitKeyPrefix + userID + ":" + strconv.FormatInt(window, 10)

		count, err := config.Store.Incr(ctx, key)
		if err != nil {
			span.RecordError(err)
			c.Next()
			return
		}
		if count == 1 {
			_ = config.Store.Expire(ctx, key, config.Window)
		}

		remaining := int64(config.MaxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(config.MaxRequests) {
			span.SetStatus(codes.Error, "rate limit exceeded")
			retryAfter := config.Window.Seconds() - float64(time.Now().Unix()%int64(config.Window.Seconds()))
			c.Header("Retry-After", strconv.Itoa(int(retryAfter)))
			response.TooManyRequests(c, "Booking rate limit exceeded, please retry later")
			c.Abort()
			return
		}

		span.SetStatus(codes.Ok, "")
		c.Next()
	}
}
