package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuthDisabledPassesThrough(t *testing.T) {
	h := adminAuth(okHandler(), &authConfig{enabled: false})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/plugins", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAdminAuthToken(t *testing.T) {
	cfg := &authConfig{adminToken: "secret", enabled: true}
	h := adminAuth(okHandler(), cfg)

	req := httptest.NewRequest(http.MethodGet, "/admin/plugins", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/plugins", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/plugins", nil)
	req.Header.Set("X-Admin-Token", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("good token: status = %d", rec.Code)
	}
}

func TestAdminAuthBasic(t *testing.T) {
	cfg := &authConfig{adminUsername: "admin", adminPassword: "pw", enabled: true}
	h := adminAuth(okHandler(), cfg)

	req := httptest.NewRequest(http.MethodGet, "/admin/plugins", nil)
	req.SetBasicAuth("admin", "pw")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid credentials: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/plugins", nil)
	req.SetBasicAuth("admin", "nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad credentials: status = %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Errorf("missing WWW-Authenticate header")
	}
}

func TestIPRateLimiterEnforcesLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := &rateLimiterConfig{enabled: true, requestsPerIP: 3, window: time.Minute}
	rl := newIPRateLimiter(ctx, cfg)

	for i := 0; i < 3; i++ {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("request %d blocked under limit", i+1)
		}
	}
	if rl.allow("1.2.3.4") {
		t.Errorf("request over limit allowed")
	}
	// A different IP has its own budget.
	if !rl.allow("5.6.7.8") {
		t.Errorf("unrelated ip blocked")
	}
}

func TestRateLimitMiddlewareUsesForwardedFor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := &rateLimiterConfig{enabled: true, requestsPerIP: 1, window: time.Minute}
	rl := newIPRateLimiter(ctx, cfg)
	h := rateLimitMiddleware(okHandler(), rl)

	req := httptest.NewRequest(http.MethodPost, "/rules", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/rules", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request from same client ip: status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Errorf("missing Retry-After header")
	}
}

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"https://overlay.example.com", "*.palcid.dev"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://overlay.example.com", true},
		{"https://evil.example.org", false},
		{"https://studio.palcid.dev", true},
		{"https://palcid.dev", true},
		{"https://palcid.dev.evil.com", false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
