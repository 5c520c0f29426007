package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/scheduler-api/pkg/httputil"
)

type RateLimiterConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	Rate    rate.Limit `mapstructure:"rate"`
	Burst   int        `mapstructure:"burst"`
	// IdleTTL is how long an idle client's limiter is kept.
	IdleTTL time.Duration `mapstructure:"idle_ttl" split_words:"true"`
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	cfg      RateLimiterConfig
	limiters *cache.Cache
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &RateLimiter{
		cfg:      cfg,
		limiters: cache.New(cfg.IdleTTL, cfg.IdleTTL),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if l, ok := rl.limiters.Get(key); ok {
		rl.limiters.SetDefault(key, l)
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.cfg.Rate, rl.cfg.Burst)
	if err := rl.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		// Lost the race to another request from the same client.
		if existing, ok := rl.limiters.Get(key); ok {
			return existing.(*rate.Limiter)
		}
	}
	return l
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.cfg.Enabled {
			c.Next()
			return
		}
		if !rl.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httputil.NewErrorResponse("rate limit exceeded"))
			return
		}
		c.Next()
	}
}
