package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"casanexus/internal/config"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-IP token bucket. Idle clients are evicted after
// cfg.MaxIdleTime.
type RateLimiter struct {
	cfg    config.Rate
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
}

// NewRateLimiter creates a RateLimiter whose sweeper stops with ctx.
func NewRateLimiter(ctx context.Context, cfg config.Rate, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{cfg: cfg, logger: logger, clients: make(map[string]*client)}
	if cfg.Enabled && cfg.MaxIdleTime > 0 {
		go rl.sweep(ctx)
	}
	return rl
}

func (rl *RateLimiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle(time.Now())
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.cfg.MaxIdleTime {
			delete(rl.clients, ip)
		}
	}
}

// Allow consumes a token for ip.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, found := rl.clients[ip]
	if !found {
		c = &client{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = time.Now()
	return c.limiter.Allow()
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if !rl.cfg.Enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !rl.Allow(ip) {
			RateLimitExceeded(w, r, rl.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}
