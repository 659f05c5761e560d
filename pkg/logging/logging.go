package logging

import (
	"log"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

var (
	logger    = slog.Default()
	level     = new(slog.LevelVar)
	startTime = time.Now()
)

// InitLogger initializes the structured logging system at the given level
// (debug, info, warn or error). Unknown levels fall back to info.
func InitLogger(lvl string) {
	startTime = time.Now()
	level.Set(ParseLevel(lvl))

	// Configure JSON logging for production
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger = slog.New(handler)

	// Set as default logger
	slog.SetDefault(logger)

	LogInfo("Logger initialized successfully",
		"handler", "json",
		"level", level.Level().String(),
		"source_enabled", true)
}

// ParseLevel maps a level name to a slog level
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the process logger for components that take one by injection
func Logger() *slog.Logger {
	return logger
}

// LogInfo logs an informational message
func LogInfo(msg string, args ...any) {
	logger.Info(msg, args...)
}

// LogError logs an error message with error details
func LogError(msg string, err error, args ...any) {
	allArgs := append([]any{"error", err}, args...)
	logger.Error(msg, allArgs...)
}

// LogWarn logs a warning message
func LogWarn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

// LogDebug logs a debug message
func LogDebug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

// LogCritical logs a critical error and also writes to stderr
func LogCritical(msg string, err error, args ...any) {
	allArgs := append([]any{"error", err, "severity", "critical"}, args...)
	logger.Error(msg, allArgs...)
	log.Printf("CRITICAL: %s: %v", msg, err)
}

// LogPerformance logs performance metrics
func LogPerformance(operation string, duration time.Duration, args ...any) {
	allArgs := append([]any{
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
		"duration_str", duration.String(),
	}, args...)
	logger.Info("Performance metric", allArgs...)
}

// LogSecurityEvent logs security-related events
func LogSecurityEvent(event string, severity string, args ...any) {
	allArgs := append([]any{
		"event_type", "security",
		"security_event", event,
		"severity", severity,
	}, args...)
	logger.Warn("Security event", allArgs...)
}

// LogSystemStats logs system statistics and resource usage
func LogSystemStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	LogInfo("System statistics",
		"uptime_seconds", int(uptime.Seconds()),
		"uptime_str", uptime.String(),
		"goroutines", runtime.NumGoroutine(),
		"memory_alloc_mb", bToMb(m.Alloc),
		"memory_sys_mb", bToMb(m.Sys),
		"gc_runs", m.NumGC)
}

// LogHTTPRequest logs HTTP request details
func LogHTTPRequest(method, path, userAgent, ip string, statusCode int, duration time.Duration) {
	LogInfo("HTTP request",
		"method", method,
		"path", path,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"user_agent", userAgent,
		"client_ip", ip)
}

// LogFileOperation logs export operations
func LogFileOperation(operation, filename string, size int64, duration time.Duration, success bool, args ...any) {
	allArgs := append([]any{
		"operation", operation,
		"filename", filename,
		"size_bytes", size,
		"duration_ms", duration.Milliseconds(),
		"success", success,
	}, args...)

	if success {
		LogInfo("File operation completed", allArgs...)
	} else {
		LogWarn("File operation failed", allArgs...)
	}
}

// LogSubmission logs the end of a contact form submission attempt
func LogSubmission(outcome string, fields int, duration time.Duration, args ...any) {
	allArgs := append([]any{
		"outcome", outcome,
		"field_count", fields,
		"duration_ms", duration.Milliseconds(),
	}, args...)
	LogInfo("Contact submission", allArgs...)
}

// Helper function to convert bytes to megabytes
func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
