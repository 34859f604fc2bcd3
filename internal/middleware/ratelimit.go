// Package middleware holds HTTP middleware that is independent of the
// map domain.
package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-IP limiter. Whitelisted addresses
// bypass it entirely.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     int
	window    time.Duration
	whitelist map[string]struct{}
	onBlocked func()
	logger    *slog.Logger
}

type visitor struct {
	remaining   int
	windowStart time.Time
}

// NewRateLimiter allows limit requests per window for each client IP.
// onBlocked, if non-nil, runs once per rejected request.
func NewRateLimiter(ctx context.Context, limit int, window time.Duration, whitelist []string, onBlocked func(), logger *slog.Logger) *RateLimiter {
	wl := make(map[string]struct{}, len(whitelist))
	for _, ip := range whitelist {
		if ip = strings.TrimSpace(ip); ip != "" {
			wl[ip] = struct{}{}
		}
	}

	rl := &RateLimiter{
		visitors:  make(map[string]*visitor),
		limit:     limit,
		window:    window,
		whitelist: wl,
		onBlocked: onBlocked,
		logger:    logger.With("component", "rate_limiter"),
	}

	go rl.evictLoop(ctx)

	return rl
}

// evictLoop drops visitors idle for more than two windows.
func (rl *RateLimiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * rl.window)
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if v.windowStart.Before(cutoff) {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Allow reports whether a request from ip fits in the current window.
func (rl *RateLimiter) Allow(ip string) bool {
	if _, ok := rl.whitelist[ip]; ok {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.windowStart) > rl.window {
		rl.visitors[ip] = &visitor{remaining: rl.limit - 1, windowStart: now}
		return true
	}

	if v.remaining > 0 {
		v.remaining--
		return true
	}
	return false
}

// Middleware rejects over-limit requests with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(rl.window.Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			if rl.onBlocked != nil {
				rl.onBlocked()
			}
			w.Header().Set("Retry-After", retryAfter)
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the caller's address, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		return first
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
