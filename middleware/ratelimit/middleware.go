package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tasklinker/authcore/services/ratelimit"
)

// Config drives a per-route limiter backed by the storage-side rate limit
// service, so limits hold across multiple instances.
type Config struct {
	Limiter        *ratelimit.Service
	Action         string
	MaxAttempts    int
	Window         time.Duration
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context, retryAfter time.Duration) error
}

func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}

	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := cfg.KeyGenerator(c)

			if !cfg.Limiter.CheckAllowed(key, cfg.Action, cfg.MaxAttempts, cfg.Window) {
				retryAfter := cfg.Limiter.BlockTimeRemaining(key, cfg.Action)

				c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxAttempts))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				if retryAfter > 0 {
					c.Response().Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				}

				return cfg.OnLimitReached(c, retryAfter)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxAttempts))

			return next(c)
		}
	}
}

func DefaultKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()

	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	return realIP
}

func DefaultOnLimitReached(c echo.Context, _ time.Duration) error {
	return echo.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
}
