package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLimiter(t *testing.T, limit int, window time.Duration, whitelist []string, onBlocked func()) *RateLimiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRateLimiter(ctx, limit, window, whitelist, onBlocked, logger)
}

func TestAllowWithinLimit(t *testing.T) {
	rl := testLimiter(t, 3, time.Minute, nil, nil)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("request over the limit should be rejected")
	}

	// Other clients have their own window.
	if !rl.Allow("5.6.7.8") {
		t.Error("a different ip should not share the exhausted window")
	}
}

func TestWhitelistBypass(t *testing.T) {
	rl := testLimiter(t, 1, time.Minute, []string{"10.0.0.1"}, nil)

	for i := 0; i < 5; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatal("whitelisted ip should never be limited")
		}
	}
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	blocked := 0
	rl := testLimiter(t, 1, time.Minute, nil, func() { blocked++ })

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/cities", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	first := httptest.NewRecorder()
	h.ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", second.Header().Get("Retry-After"))
	}
	if blocked != 1 {
		t.Errorf("blocked callback ran %d times, want 1", blocked)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "1.2.3.4:5678", nil, "1.2.3.4"},
		{"x-forwarded-for", "127.0.0.1:80", map[string]string{"X-Forwarded-For": "9.8.7.6, 10.0.0.1"}, "9.8.7.6"},
		{"x-forwarded-for with port", "127.0.0.1:80", map[string]string{"X-Forwarded-For": "9.8.7.6:443"}, "9.8.7.6"},
		{"x-real-ip", "127.0.0.1:80", map[string]string{"X-Real-IP": "4.4.4.4"}, "4.4.4.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
