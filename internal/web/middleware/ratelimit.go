package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientTTL is how long an idle client's limiter is kept.
const clientTTL = 10 * time.Minute

type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	rps     rate.Limit
	burst   int
	stopCh  chan struct{}
	stopped bool
}

// NewRateLimiter creates a per-client limiter and starts its cleanup loop.
// Call Stop on shutdown.
func NewRateLimiter(rps, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop(time.Minute)
	return rl
}

// Allow reports whether a request from clientIP may proceed.
func (rl *RateLimiter) Allow(clientIP string) bool {
	now := time.Now()

	rl.mu.Lock()
	entry, ok := rl.clients[clientIP]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[clientIP] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(clientTTL)
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops clients idle for longer than maxAge.
func (rl *RateLimiter) cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, entry := range rl.clients {
		if now.Sub(entry.lastAccess) > maxAge {
			delete(rl.clients, ip)
		}
	}
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if !rl.stopped {
		rl.stopped = true
		close(rl.stopCh)
	}
}

// RateLimit rejects requests over the client's budget with 429. It keys on
// RemoteAddr, so it must run after TrustedRealIP.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if host, _, err := net.SplitHostPort(ip); err == nil {
				ip = host
			}

			if !rl.Allow(ip) {
				slog.Warn("rate limit exceeded", "client_ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE001")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
