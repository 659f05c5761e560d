package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SanitizationLevel selects how aggressive the generic text rule is
type SanitizationLevel string

const (
	SanitizePermissive SanitizationLevel = "permissive"
	SanitizeModerate   SanitizationLevel = "moderate"
	SanitizeStrict     SanitizationLevel = "strict"
)

// LogLevel is the minimum severity the security monitor emits
type LogLevel string

const (
	LogNone     LogLevel = "none"
	LogErrors   LogLevel = "errors"
	LogWarnings LogLevel = "warnings"
	LogAll      LogLevel = "all"
)

// MaxLengths bounds each user field, counted in characters
type MaxLengths struct {
	Name    int
	Email   int
	Company int
	Message int
}

// SecurityConfig toggles the contact form safeguards. It is built once at
// startup and passed to every component; nothing mutates it afterwards.
type SecurityConfig struct {
	EnableSanitization bool
	SanitizationLevel  SanitizationLevel

	EnableValidation bool
	MaxLengths       MaxLengths

	EnableRateLimiting      bool
	RateLimitWindow         time.Duration
	MaxSubmissionsPerWindow int

	EnableCSRF     bool
	EnableHoneypot bool

	EnableRouteValidation  bool
	EnableHashSanitization bool

	EnableSecurityLogging bool
	LogLevel              LogLevel
}

// Config is the full process configuration
type Config struct {
	Env           string
	Port          string
	TemplatesDir  string
	SessionSecret string
	CSRFKey       string
	AdminToken    string
	LogLevel      string

	RelayEndpoint      string
	RelaySubjectPrefix string
	RelayTimeout       time.Duration

	EdgeRatePerMinute int
	EdgeRateBurst     int

	Security SecurityConfig
}

// Defaults used when nothing is configured
const (
	DefaultPort               = "8080"
	DefaultTemplatesDir       = "templates"
	DefaultRelayEndpoint      = "https://formsubmit.co/ajax/sales@example.com"
	DefaultRelaySubjectPrefix = "[Sales] New inquiry from"
	DefaultEdgeRatePerMinute  = 30
	DefaultEdgeRateBurst      = 10
)

// DefaultSecurity returns the baseline safeguards: everything on,
// ten submissions per minute, moderate sanitization, warnings logged.
func DefaultSecurity() SecurityConfig {
	return SecurityConfig{
		EnableSanitization: true,
		SanitizationLevel:  SanitizeModerate,
		EnableValidation:   true,
		MaxLengths: MaxLengths{
			Name:    100,
			Email:   254,
			Company: 200,
			Message: 5000,
		},
		EnableRateLimiting:      true,
		RateLimitWindow:         time.Minute,
		MaxSubmissionsPerWindow: 10,
		EnableCSRF:              true,
		EnableHoneypot:          true,
		EnableRouteValidation:   true,
		EnableHashSanitization:  true,
		EnableSecurityLogging:   true,
		LogLevel:                LogWarnings,
	}
}

// Default returns a development configuration
func Default() Config {
	return Config{
		Env:                "development",
		Port:               DefaultPort,
		TemplatesDir:       DefaultTemplatesDir,
		LogLevel:           "info",
		RelayEndpoint:      DefaultRelayEndpoint,
		RelaySubjectPrefix: DefaultRelaySubjectPrefix,
		EdgeRatePerMinute:  DefaultEdgeRatePerMinute,
		EdgeRateBurst:      DefaultEdgeRateBurst,
		Security:           DefaultSecurity(),
	}
}

// IsProduction reports whether ENV=production
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads an optional .env file and the process environment.
// A missing .env file is not an error.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, starting from Default
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()
	e := envReader{get: getenv}

	c.Env = e.str("ENV", c.Env)
	c.Port = e.str("PORT", c.Port)
	c.TemplatesDir = e.str("TEMPLATES_DIR", c.TemplatesDir)
	c.SessionSecret = e.str("SESSION_SECRET", c.SessionSecret)
	c.CSRFKey = e.str("CSRF_KEY", c.CSRFKey)
	c.AdminToken = e.str("ADMIN_TOKEN", c.AdminToken)
	c.LogLevel = e.str("LOG_LEVEL", c.LogLevel)
	c.RelayEndpoint = e.str("RELAY_ENDPOINT", c.RelayEndpoint)
	c.RelaySubjectPrefix = e.str("RELAY_SUBJECT_PREFIX", c.RelaySubjectPrefix)
	c.RelayTimeout = e.duration("RELAY_TIMEOUT", c.RelayTimeout)
	c.EdgeRatePerMinute = e.integer("EDGE_RATE_PER_MINUTE", c.EdgeRatePerMinute)
	c.EdgeRateBurst = e.integer("EDGE_RATE_BURST", c.EdgeRateBurst)

	s := &c.Security
	s.EnableSanitization = e.boolean("SECURITY_SANITIZATION", s.EnableSanitization)
	s.SanitizationLevel = SanitizationLevel(strings.ToLower(e.str("SECURITY_SANITIZATION_LEVEL", string(s.SanitizationLevel))))
	s.EnableValidation = e.boolean("SECURITY_VALIDATION", s.EnableValidation)
	s.MaxLengths.Name = e.integer("SECURITY_MAX_NAME", s.MaxLengths.Name)
	s.MaxLengths.Email = e.integer("SECURITY_MAX_EMAIL", s.MaxLengths.Email)
	s.MaxLengths.Company = e.integer("SECURITY_MAX_COMPANY", s.MaxLengths.Company)
	s.MaxLengths.Message = e.integer("SECURITY_MAX_MESSAGE", s.MaxLengths.Message)
	s.EnableRateLimiting = e.boolean("SECURITY_RATE_LIMIT", s.EnableRateLimiting)
	s.RateLimitWindow = e.duration("SECURITY_RATE_WINDOW", s.RateLimitWindow)
	s.MaxSubmissionsPerWindow = e.integer("SECURITY_RATE_MAX", s.MaxSubmissionsPerWindow)
	s.EnableCSRF = e.boolean("SECURITY_CSRF", s.EnableCSRF)
	s.EnableHoneypot = e.boolean("SECURITY_HONEYPOT", s.EnableHoneypot)
	s.EnableRouteValidation = e.boolean("SECURITY_ROUTE_VALIDATION", s.EnableRouteValidation)
	s.EnableHashSanitization = e.boolean("SECURITY_HASH_SANITIZATION", s.EnableHashSanitization)
	s.EnableSecurityLogging = e.boolean("SECURITY_LOGGING", s.EnableSecurityLogging)
	s.LogLevel = LogLevel(strings.ToLower(e.str("SECURITY_LOG_LEVEL", string(s.LogLevel))))

	if e.err != nil {
		return c, e.err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks the process configuration
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.RelayEndpoint == "" {
		return errors.New("relay endpoint is required")
	}
	if c.RelayTimeout < 0 {
		return errors.New("relay timeout must be >= 0")
	}
	if c.EdgeRatePerMinute <= 0 || c.EdgeRateBurst <= 0 {
		return errors.New("edge rate and burst must be > 0")
	}
	if c.IsProduction() {
		if len(c.SessionSecret) < 32 {
			return errors.New("SESSION_SECRET must be at least 32 bytes in production")
		}
		if len(c.CSRFKey) != 32 {
			return errors.New("CSRF_KEY must be exactly 32 bytes in production")
		}
	}
	return c.Security.Validate()
}

// Validate checks the safeguard settings
func (s SecurityConfig) Validate() error {
	switch s.SanitizationLevel {
	case SanitizePermissive, SanitizeModerate, SanitizeStrict:
	default:
		return fmt.Errorf("sanitization level %q must be one of: permissive, moderate, strict", s.SanitizationLevel)
	}
	switch s.LogLevel {
	case LogNone, LogErrors, LogWarnings, LogAll:
	default:
		return fmt.Errorf("security log level %q must be one of: none, errors, warnings, all", s.LogLevel)
	}
	if s.MaxLengths.Name <= 0 || s.MaxLengths.Email <= 0 || s.MaxLengths.Company <= 0 || s.MaxLengths.Message <= 0 {
		return errors.New("max lengths must be > 0")
	}
	if s.RateLimitWindow <= 0 {
		return errors.New("rate limit window must be > 0")
	}
	if s.MaxSubmissionsPerWindow <= 0 {
		return errors.New("max submissions per window must be > 0")
	}
	return nil
}

// envReader collects the first parse error instead of failing per key
type envReader struct {
	get func(string) string
	err error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

func (e *envReader) integer(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("parse %s: %w", key, err)
	}
}
