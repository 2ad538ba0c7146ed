package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/symptra/symptra/internal/platform/auth"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// Redis shares counters across instances when set; otherwise each
	// process keeps its own in memory.
	Redis *redis.Client
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 50, BurstSize: 100}
}

// rate allows BurstSize requests per window, the window being how long it
// takes to earn BurstSize tokens at RequestsPerSecond.
func (cfg RateLimitConfig) rate() limiter.Rate {
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	period := time.Duration(math.Ceil(float64(burst) / rps * float64(time.Second)))
	return limiter.Rate{Period: period, Limit: int64(burst)}
}

func newLimiterStore(cfg RateLimitConfig) (limiter.Store, error) {
	opts := limiter.StoreOptions{Prefix: "symptra:ratelimit", CleanUpInterval: time.Minute}
	if cfg.Redis != nil {
		return sredis.NewStoreWithOptions(cfg.Redis, opts)
	}
	return memory.NewStoreWithOptions(opts), nil
}

// RateLimit throttles per authenticated principal, or per client IP for
// anonymous calls. Store errors fail open.
func RateLimit(cfg RateLimitConfig, logger zerolog.Logger) echo.MiddlewareFunc {
	store, err := newLimiterStore(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("rate limit redis store unavailable, using memory")
		store = memory.NewStore()
	}
	lim := limiter.New(store, cfg.rate())

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if id := auth.UserIDFromContext(c.Request().Context()); id != "" {
				key = "principal:" + id
			}

			res, err := lim.Get(c.Request().Context(), key)
			if err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("rate limit lookup failed")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))
			if res.Reached {
				retry := res.Reset - time.Now().Unix()
				if retry < 1 {
					retry = 1
				}
				h.Set("Retry-After", strconv.FormatInt(retry, 10))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
