package clients

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter caps outbound request rate per provider so that fan-out calls
// from concurrent imports don't trip upstream quotas.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	config   RateLimitConfig
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         20,
	}
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = int(config.RequestsPerSecond)
		if config.BurstSize < 1 {
			config.BurstSize = 1
		}
	}

	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		config:   config,
	}
}

func (r *RateLimiter) limiter(provider string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[provider]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.config.RequestsPerSecond), r.config.BurstSize)
		r.limiters[provider] = l
	}
	return l
}

// Allow reports whether a request may happen now without waiting.
func (r *RateLimiter) Allow(provider string) bool {
	return r.limiter(provider).Allow()
}

// Wait blocks until a request is allowed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, provider string) error {
	return r.limiter(provider).Wait(ctx)
}
