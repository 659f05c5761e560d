package security

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/payback159/contactgate/pkg/logging"
	"golang.org/x/time/rate"
)

// ipLimiter wraps a rate limiter with a last-seen timestamp for cleanup
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// EdgeLimiter throttles requests per client IP before they reach a handler.
// It is a server side guard and independent of the per-session submission
// ledger in package ratelimit.
type EdgeLimiter struct {
	limiters  map[string]*ipLimiter
	mutex     sync.Mutex
	perMinute int
	burst     int
}

// NewEdgeLimiter creates a per-IP limiter whose stale entries are cleaned up
// until ctx is done
func NewEdgeLimiter(ctx context.Context, perMinute, burst int) *EdgeLimiter {
	el := newEdgeLimiter(perMinute, burst)
	el.startCleanup(ctx)
	return el
}

func newEdgeLimiter(perMinute, burst int) *EdgeLimiter {
	return &EdgeLimiter{
		limiters:  make(map[string]*ipLimiter),
		perMinute: perMinute,
		burst:     burst,
	}
}

// GetLimiter returns a rate limiter for the given IP address
func (el *EdgeLimiter) GetLimiter(ip string) *rate.Limiter {
	el.mutex.Lock()
	defer el.mutex.Unlock()

	entry, exists := el.limiters[ip]
	if !exists {
		limiter := rate.NewLimiter(rate.Limit(float64(el.perMinute)/60), el.burst)
		el.limiters[ip] = &ipLimiter{limiter: limiter, lastSeen: time.Now()}

		logging.LogDebug("Created new edge rate limiter for IP",
			"ip", ip,
			"rate_per_minute", el.perMinute,
			"burst", el.burst)

		return limiter
	}

	entry.lastSeen = time.Now()
	return entry.limiter
}

// startCleanup runs a background goroutine to remove stale rate limiters
func (el *EdgeLimiter) startCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				el.cleanupStale(time.Now().Add(-10 * time.Minute))
			}
		}
	}()
}

// cleanupStale removes rate limiters not seen since threshold
func (el *EdgeLimiter) cleanupStale(threshold time.Time) {
	el.mutex.Lock()
	defer el.mutex.Unlock()

	removed := 0
	for ip, entry := range el.limiters {
		if entry.lastSeen.Before(threshold) {
			delete(el.limiters, ip)
			removed++
		}
	}

	if removed > 0 {
		logging.LogInfo("Cleaned up stale edge rate limiters",
			"removed", removed,
			"remaining", len(el.limiters))
	}
}

// Middleware rejects requests from clients over their budget with 429
func (el *EdgeLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := GetClientIP(r)
		limiter := el.GetLimiter(ip)

		reservation := limiter.Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			logging.LogSecurityEvent("Edge rate limit exceeded", "high",
				"ip", ip,
				"user_agent", r.UserAgent(),
				"path", r.URL.Path,
				"method", r.Method)

			w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GetClientIP extracts the real client IP from request headers
func GetClientIP(r *http.Request) string {
	// Cloudflare sets this header with the verified client IP
	if cfIP := r.Header.Get("CF-Connecting-IP"); cfIP != "" {
		return strings.TrimSpace(cfIP)
	}

	// X-Forwarded-For can contain multiple IPs, get the first one
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	// Fallback to remote address
	ip := r.RemoteAddr
	if colonIndex := strings.LastIndex(ip, ":"); colonIndex != -1 {
		ip = ip[:colonIndex]
	}

	// Remove brackets for IPv6
	return strings.Trim(ip, "[]")
}
