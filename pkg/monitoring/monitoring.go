// Package monitoring records security events raised by the contact form.
// Events are written to the structured log and kept in a bounded journal
// for export. Emission is gated by the security logging switch and level.
package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/payback159/contactgate/pkg/config"
)

// EventType tags a security event
type EventType string

const (
	EventRateLimit        EventType = "rate_limit"
	EventValidationFailed EventType = "validation_failed"
	EventSanitization     EventType = "sanitization"
	EventCSRF             EventType = "csrf"
	EventHoneypot         EventType = "honeypot"
	EventRouteInvalid     EventType = "route_invalid"
	EventXSSAttempt       EventType = "xss_attempt"
	EventSubmission       EventType = "submission_metric"
)

// Severity of an event, most severe first
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
	SeverityInfo  Severity = "info"
	SeverityDebug Severity = "debug"
)

var severityRank = map[Severity]int{
	SeverityError: 0,
	SeverityWarn:  1,
	SeverityInfo:  2,
	SeverityDebug: 3,
}

// Redacted replaces metadata values under sensitive keys
const Redacted = "[REDACTED]"

const (
	maxMetadataString = 100
	defaultJournalCap = 500
)

var sensitiveKeys = []string{"password", "token", "apikey", "secret", "email", "creditcard", "ssn"}

// Event is one security observation
type Event struct {
	ID        string
	Type      EventType
	Severity  Severity
	Message   string
	Metadata  map[string]any
	Timestamp time.Time
}

// Monitor emits security events. A nil *Monitor discards everything.
type Monitor struct {
	enabled bool
	level   config.LogLevel
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	journal []Event
	next    int
	full    bool
}

// Option customizes a Monitor
type Option func(*Monitor)

// WithClock sets the timestamp source
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithJournalSize bounds how many recent events are kept
func WithJournalSize(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.journal = make([]Event, n)
		}
	}
}

// New creates a monitor writing to logger
func New(cfg config.SecurityConfig, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		enabled: cfg.EnableSecurityLogging,
		level:   cfg.LogLevel,
		logger:  logger,
		now:     time.Now,
		journal: make([]Event, defaultJournalCap),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enabled reports whether an event of the given severity would be emitted
func (m *Monitor) Enabled(sev Severity) bool {
	if m == nil || !m.enabled {
		return false
	}
	var threshold Severity
	switch m.level {
	case config.LogAll:
		threshold = SeverityDebug
	case config.LogWarnings:
		threshold = SeverityWarn
	case config.LogErrors:
		threshold = SeverityError
	default:
		return false
	}
	rank, ok := severityRank[sev]
	return ok && rank <= severityRank[threshold]
}

// Emit records an event if the configuration lets it through
func (m *Monitor) Emit(typ EventType, sev Severity, msg string, metadata map[string]any) {
	if !m.Enabled(sev) {
		return
	}
	e := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Severity:  sev,
		Message:   msg,
		Metadata:  RedactMetadata(metadata),
		Timestamp: m.now().UTC(),
	}
	m.record(e)
	m.log(e)
}

func (m *Monitor) record(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal[m.next] = e
	m.next = (m.next + 1) % len(m.journal)
	if m.next == 0 {
		m.full = true
	}
}

func (m *Monitor) log(e Event) {
	attrs := []slog.Attr{
		slog.String("event_type", "security"),
		slog.String("event_id", e.ID),
		slog.String("security_event", string(e.Type)),
		slog.String("severity", string(e.Severity)),
		slog.Time("timestamp", e.Timestamp),
	}
	if len(e.Metadata) > 0 {
		meta := make([]any, 0, len(e.Metadata)*2)
		for k, v := range e.Metadata {
			meta = append(meta, k, v)
		}
		attrs = append(attrs, slog.Group("metadata", meta...))
	}

	var lvl slog.Level
	switch e.Severity {
	case SeverityError:
		lvl = slog.LevelError
	case SeverityWarn:
		lvl = slog.LevelWarn
	case SeverityInfo:
		lvl = slog.LevelInfo
	default:
		lvl = slog.LevelDebug
	}
	m.logger.LogAttrs(context.Background(), lvl, "[Security] "+e.Message, attrs...)
}

// Recent returns the journal, oldest first
func (m *Monitor) Recent() []Event {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		out := make([]Event, m.next)
		copy(out, m.journal[:m.next])
		return out
	}
	out := make([]Event, 0, len(m.journal))
	out = append(out, m.journal[m.next:]...)
	out = append(out, m.journal[:m.next]...)
	return out
}

// RedactMetadata hides values under sensitive keys and shortens long strings.
// The input map is not modified.
func RedactMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if isSensitive(k) {
			out[k] = Redacted
			continue
		}
		if s, ok := v.(string); ok && utf8.RuneCountInString(s) > maxMetadataString {
			out[k] = string([]rune(s)[:maxMetadataString]) + "..."
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitive(key string) bool {
	k := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// RateLimited records a rejected submission
func (m *Monitor) RateLimited(retryAfter int) {
	m.Emit(EventRateLimit, SeverityWarn, "Rate limit exceeded", map[string]any{
		"retry_after": retryAfter,
	})
}

// ValidationFailed records one failing field
func (m *Monitor) ValidationFailed(field, reason string) {
	m.Emit(EventValidationFailed, SeverityInfo, "Validation failed for field: "+field, map[string]any{
		"field":  field,
		"reason": reason,
	})
}

// Sanitized records a field whose content the sanitizer changed.
// Nothing is emitted when the lengths match.
func (m *Monitor) Sanitized(field string, originalLength, sanitizedLength int) {
	if originalLength == sanitizedLength {
		return
	}
	m.Emit(EventSanitization, SeverityInfo, "Input sanitized: "+field, map[string]any{
		"field":            field,
		"original_length":  originalLength,
		"sanitized_length": sanitizedLength,
	})
}

// XSSAttempt records input that carried an injection pattern
func (m *Monitor) XSSAttempt(field string, input string) {
	m.Emit(EventXSSAttempt, SeverityWarn, "Potential XSS attempt detected in field: "+field, map[string]any{
		"field":        field,
		"input_length": utf8.RuneCountInString(input),
	})
}

// HoneypotTriggered records a filled decoy field
func (m *Monitor) HoneypotTriggered() {
	m.Emit(EventHoneypot, SeverityWarn, "Bot detected: honeypot field was filled", map[string]any{})
}

// InvalidRoute records access to a path outside the allow-list
func (m *Monitor) InvalidRoute(route string) {
	m.Emit(EventRouteInvalid, SeverityInfo, "Invalid route accessed: "+route, map[string]any{
		"route": route,
	})
}

// CSRFValidation records a failed token check. Successes are not logged.
func (m *Monitor) CSRFValidation(success bool) {
	if success {
		return
	}
	m.Emit(EventCSRF, SeverityWarn, "CSRF token validation failed", map[string]any{})
}

// Submission records the outcome metric of a submission attempt
func (m *Monitor) Submission(success bool, duration time.Duration) {
	sev := SeverityInfo
	verb := "succeeded"
	if !success {
		sev = SeverityError
		verb = "failed"
	}
	m.Emit(EventSubmission, sev, fmt.Sprintf("Form submission %s", verb), map[string]any{
		"success":     success,
		"duration_ms": duration.Milliseconds(),
	})
}
