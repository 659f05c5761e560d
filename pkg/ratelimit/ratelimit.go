// Package ratelimit implements the sliding window submission limiter.
//
// The ledger lives in session scoped storage that the visitor controls, so
// the limiter only deters accidental double submits and naive scripts. It is
// not an enforcement boundary and fails open when storage misbehaves.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/payback159/contactgate/pkg/config"
	"github.com/payback159/contactgate/pkg/logging"
	"github.com/payback159/contactgate/pkg/monitoring"
)

// LedgerKey is the storage key holding the JSON array of epoch milliseconds
const LedgerKey = "contact_form_submissions"

// Result of a limiter check. RetryAfter is in seconds and only set when the
// attempt was rejected.
type Result struct {
	Allowed    bool
	RetryAfter int
}

// Limiter admits at most max submissions per trailing window
type Limiter struct {
	store   Store
	enabled bool
	window  time.Duration
	max     int
	now     func() time.Time
	monitor *monitoring.Monitor
}

// New creates a limiter over store
func New(cfg config.SecurityConfig, store Store, monitor *monitoring.Monitor) *Limiter {
	return &Limiter{
		store:   store,
		enabled: cfg.EnableRateLimiting,
		window:  cfg.RateLimitWindow,
		max:     cfg.MaxSubmissionsPerWindow,
		now:     time.Now,
		monitor: monitor,
	}
}

// WithClock replaces the time source, for tests and replays
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check prunes stale entries and admits or rejects one submission attempt.
// An admitted attempt is appended to the ledger; a rejected one is not.
func (l *Limiter) Check() Result {
	if !l.enabled {
		return Result{Allowed: true}
	}

	ledger, err := l.load()
	if err != nil {
		logging.LogWarn("Rate limit check failed, allowing submission",
			"error", err,
			"ledger_key", LedgerKey)
		return Result{Allowed: true}
	}

	now := l.now().UnixMilli()
	windowMs := l.window.Milliseconds()
	recent := ledger[:0]
	for _, ts := range ledger {
		if now-ts < windowMs {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.max {
		oldest := recent[0]
		for _, ts := range recent[1:] {
			if ts < oldest {
				oldest = ts
			}
		}
		retryAfter := int(math.Ceil(float64(windowMs-(now-oldest)) / 1000))
		l.monitor.RateLimited(retryAfter)
		return Result{Allowed: false, RetryAfter: retryAfter}
	}

	recent = append(recent, now)
	if err := l.save(recent); err != nil {
		logging.LogWarn("Rate limit ledger not persisted, allowing submission",
			"error", err,
			"ledger_key", LedgerKey)
	}
	return Result{Allowed: true}
}

// Clear wipes the ledger. Storage errors are logged and ignored.
func (l *Limiter) Clear() {
	if err := l.store.Remove(LedgerKey); err != nil {
		logging.LogWarn("Failed to clear rate limit ledger", "error", err)
	}
}

func (l *Limiter) load() ([]int64, error) {
	raw, ok, err := l.store.Get(LedgerKey)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var ledger []int64
	if err := json.Unmarshal([]byte(raw), &ledger); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return ledger, nil
}

func (l *Limiter) save(ledger []int64) error {
	b, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := l.store.Set(LedgerKey, string(b)); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}
