// Package ratelimit throttles mutating requests per client address.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"caisse/internal/cache"
)

type Config struct {
	RequestsPerMinute int
	// Burst defaults to RequestsPerMinute/6, at least 1.
	Burst      int
	MaxClients int
	// IdleTTL drops a client's bucket after this long without requests.
	IdleTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		MaxClients:        10000,
		IdleTTL:           10 * time.Minute,
	}
}

type Metrics struct {
	Limited     int64
	ClientCount int
}

// Limiter keeps one token bucket per client key.
type Limiter struct {
	limit   rate.Limit
	burst   int
	clients *cache.LRUCache[*rate.Limiter]
	limited atomic.Int64
}

func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(math.Max(1, float64(cfg.RequestsPerMinute)/6))
	}
	return &Limiter{
		limit:   rate.Limit(float64(cfg.RequestsPerMinute) / 60),
		burst:   cfg.Burst,
		clients: cache.NewLRUCache[*rate.Limiter](cfg.MaxClients, cfg.IdleTTL),
	}
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	b, _ := l.clients.GetOrSet(key, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
	return b
}

// Allow consumes one token for key.
func (l *Limiter) Allow(key string) bool {
	if l.bucket(key).Allow() {
		return true
	}
	l.limited.Add(1)
	return false
}

// retryAfter is the wait until key has a token again, in whole seconds.
func (l *Limiter) retryAfter(key string) int {
	r := l.bucket(key).Reserve()
	defer r.Cancel()
	return int(math.Ceil(r.Delay().Seconds()))
}

// Cache exposes the client table so a cache.Manager can sweep it.
func (l *Limiter) Cache() cache.Cleaner {
	return l.clients
}

func (l *Limiter) Metrics() Metrics {
	return Metrics{Limited: l.limited.Load(), ClientCount: l.clients.Size()}
}

// Middleware rejects requests over the limit with 429. Safe methods pass
// through untouched.
func (l *Limiter) Middleware(extractKey func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			key := extractKey(r)
			if l.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}
			wait := l.retryAfter(key)
			if wait < 1 {
				wait = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(wait))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Trop de requêtes, réessayez plus tard.", http.StatusTooManyRequests)
		})
	}
}
