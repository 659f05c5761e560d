package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/payback159/contactgate/pkg/config"
	"github.com/payback159/contactgate/pkg/logging"
)

func init() {
	logging.InitLogger("error")
}

// --- GetClientIP ---

func TestGetClientIP_CloudflareHeader(t *testing.T) {
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("CF-Connecting-IP", "1.2.3.4")
	r.Header.Set("X-Forwarded-For", "5.6.7.8")
	r.RemoteAddr = "9.10.11.12:1234"

	ip := GetClientIP(r)
	if ip != "1.2.3.4" {
		t.Errorf("want CF-Connecting-IP 1.2.3.4, got %s", ip)
	}
}

func TestGetClientIP_XForwardedFor(t *testing.T) {
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	r.RemoteAddr = "9.10.11.12:1234"

	ip := GetClientIP(r)
	if ip != "10.0.0.1" {
		t.Errorf("want first XFF IP 10.0.0.1, got %s", ip)
	}
}

func TestGetClientIP_XRealIP(t *testing.T) {
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "192.168.1.1")
	r.RemoteAddr = "9.10.11.12:1234"

	ip := GetClientIP(r)
	if ip != "192.168.1.1" {
		t.Errorf("want X-Real-IP 192.168.1.1, got %s", ip)
	}
}

func TestGetClientIP_RemoteAddr(t *testing.T) {
	r, _ := http.NewRequest("GET", "/", nil)
	r.RemoteAddr = "172.16.0.1:54321"

	ip := GetClientIP(r)
	if ip != "172.16.0.1" {
		t.Errorf("want 172.16.0.1, got %s", ip)
	}
}

func TestGetClientIP_IPv6(t *testing.T) {
	r, _ := http.NewRequest("GET", "/", nil)
	r.RemoteAddr = "[::1]:8080"

	ip := GetClientIP(r)
	if ip != "::1" {
		t.Errorf("want ::1, got %s", ip)
	}
}

// --- Honeypot ---

func TestHoneypot_Check(t *testing.T) {
	h := Honeypot{Enabled: true}
	cases := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"http://spam.example", true},
		{" ", true},
	}
	for _, tc := range cases {
		if got := h.Check(tc.value); got != tc.want {
			t.Errorf("Check(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestHoneypot_Disabled(t *testing.T) {
	cfg := config.DefaultSecurity()
	cfg.EnableHoneypot = false
	if NewHoneypot(cfg).Check("filled by a bot") {
		t.Error("disabled honeypot must never trigger")
	}
}

// --- TokenGenerator ---

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestTokenGenerator_Hex(t *testing.T) {
	g := NewTokenGenerator(config.DefaultSecurity())
	a, b := g.Generate(), g.Generate()
	if !hexToken.MatchString(a) {
		t.Errorf("want 64 hex chars, got %q", a)
	}
	if a == b {
		t.Error("consecutive tokens should differ")
	}
}

func TestTokenGenerator_Deterministic(t *testing.T) {
	g := TokenGenerator{Enabled: true, Reader: strings.NewReader(strings.Repeat("\x01", 32))}
	if got := g.Generate(); got != strings.Repeat("01", 32) {
		t.Errorf("unexpected token %q", got)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestTokenGenerator_Fallback(t *testing.T) {
	g := TokenGenerator{Enabled: true, Reader: failingReader{}}
	tok := g.Generate()
	if tok == "" {
		t.Fatal("fallback token must not be empty")
	}
	if strings.Trim(tok, "0123456789abcdefghijklmnopqrstuvwxyz") != "" {
		t.Errorf("fallback token should be base36, got %q", tok)
	}
}

func TestTokenGenerator_Disabled(t *testing.T) {
	if tok := (TokenGenerator{}).Generate(); tok != "" {
		t.Errorf("disabled generator should return empty token, got %q", tok)
	}
}

// --- EdgeLimiter ---

func TestEdgeLimiter_CreateAndGet(t *testing.T) {
	rl := newEdgeLimiter(60, 1)

	l1 := rl.GetLimiter("1.2.3.4")
	l2 := rl.GetLimiter("1.2.3.4")

	if l1 != l2 {
		t.Error("same IP should return same limiter instance")
	}
}

func TestEdgeLimiter_DifferentIPs(t *testing.T) {
	rl := newEdgeLimiter(60, 1)

	l1 := rl.GetLimiter("1.1.1.1")
	l2 := rl.GetLimiter("2.2.2.2")

	if l1 == l2 {
		t.Error("different IPs should have different limiter instances")
	}
}

func TestEdgeLimiter_RateLimitMiddleware(t *testing.T) {
	rl := newEdgeLimiter(60, 1)

	called := 0
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
	}))

	r, _ := http.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"

	// First request should pass
	w := &fakeResponseWriter{}
	handler.ServeHTTP(w, r)

	if called != 1 {
		t.Errorf("handler should have been called once, got %d", called)
	}

	// Burst of one is spent, the second request is throttled
	w = &fakeResponseWriter{}
	handler.ServeHTTP(w, r)
	if called != 1 {
		t.Errorf("throttled request reached the handler")
	}
	if w.code != http.StatusTooManyRequests {
		t.Errorf("want 429, got %d", w.code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// Other clients keep their own budget
	r2 := httptest.NewRequest("POST", "/contact", nil)
	r2.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r2)
	if called != 2 {
		t.Errorf("second client should pass, handler called %d times", called)
	}
}

func TestEdgeLimiter_CleanupStale(t *testing.T) {
	rl := newEdgeLimiter(60, 1)
	rl.GetLimiter("1.1.1.1")
	rl.GetLimiter("2.2.2.2")
	rl.limiters["1.1.1.1"].lastSeen = time.Now().Add(-time.Hour)

	rl.cleanupStale(time.Now().Add(-10 * time.Minute))

	if _, ok := rl.limiters["1.1.1.1"]; ok {
		t.Error("stale limiter should be removed")
	}
	if _, ok := rl.limiters["2.2.2.2"]; !ok {
		t.Error("fresh limiter should be kept")
	}
}

func TestNewEdgeLimiter_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rl := NewEdgeLimiter(ctx, 30, 10)
	cancel()
	if rl.GetLimiter("1.2.3.4") == nil {
		t.Error("limiter should still serve after cleanup stopped")
	}
}

// fakeResponseWriter is a minimal implementation for testing
type fakeResponseWriter struct {
	code   int
	header http.Header
	body   []byte
}

func (f *fakeResponseWriter) Header() http.Header {
	if f.header == nil {
		f.header = make(http.Header)
	}
	return f.header
}
func (f *fakeResponseWriter) Write(b []byte) (int, error) {
	f.body = append(f.body, b...)
	return len(b), nil
}
func (f *fakeResponseWriter) WriteHeader(code int) {
	f.code = code
}
