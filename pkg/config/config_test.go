package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultSecurity_MatchesBaseline(t *testing.T) {
	s := DefaultSecurity()
	if s.MaxLengths != (MaxLengths{Name: 100, Email: 254, Company: 200, Message: 5000}) {
		t.Errorf("unexpected max lengths: %+v", s.MaxLengths)
	}
	if s.RateLimitWindow != time.Minute || s.MaxSubmissionsPerWindow != 10 {
		t.Errorf("unexpected rate limit: %v / %d", s.RateLimitWindow, s.MaxSubmissionsPerWindow)
	}
	if s.SanitizationLevel != SanitizeModerate || s.LogLevel != LogWarnings {
		t.Errorf("unexpected levels: %s / %s", s.SanitizationLevel, s.LogLevel)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestFromEnv_Empty(t *testing.T) {
	c, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.Port != DefaultPort {
		t.Errorf("want port %s, got %s", DefaultPort, c.Port)
	}
	if c.IsProduction() {
		t.Error("default env should not be production")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	c, err := FromEnv(envMap(map[string]string{
		"PORT":                        "9090",
		"SECURITY_RATE_MAX":           "3",
		"SECURITY_RATE_WINDOW":        "30s",
		"SECURITY_HONEYPOT":           "false",
		"SECURITY_SANITIZATION_LEVEL": "STRICT",
		"SECURITY_LOG_LEVEL":          "all",
		"SECURITY_MAX_NAME":           "50",
		"RELAY_TIMEOUT":               "5s",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.Port != "9090" {
		t.Errorf("port: got %s", c.Port)
	}
	s := c.Security
	if s.MaxSubmissionsPerWindow != 3 || s.RateLimitWindow != 30*time.Second {
		t.Errorf("rate limit not applied: %+v", s)
	}
	if s.EnableHoneypot {
		t.Error("honeypot should be disabled")
	}
	if s.SanitizationLevel != SanitizeStrict {
		t.Errorf("want strict, got %s", s.SanitizationLevel)
	}
	if s.LogLevel != LogAll {
		t.Errorf("want all, got %s", s.LogLevel)
	}
	if s.MaxLengths.Name != 50 {
		t.Errorf("want max name 50, got %d", s.MaxLengths.Name)
	}
	if c.RelayTimeout != 5*time.Second {
		t.Errorf("want relay timeout 5s, got %v", c.RelayTimeout)
	}
}

func TestFromEnv_ParseErrors(t *testing.T) {
	cases := map[string]string{
		"SECURITY_RATE_MAX":    "ten",
		"SECURITY_CSRF":        "maybe",
		"SECURITY_RATE_WINDOW": "forever",
	}
	for key, value := range cases {
		_, err := FromEnv(envMap(map[string]string{key: value}))
		if err == nil {
			t.Errorf("%s=%q: expected error", key, value)
			continue
		}
		if !strings.Contains(err.Error(), key) {
			t.Errorf("%s: error should name the key, got %v", key, err)
		}
	}
}

func TestSecurityValidate_Rejects(t *testing.T) {
	mutations := []func(*SecurityConfig){
		func(s *SecurityConfig) { s.SanitizationLevel = "paranoid" },
		func(s *SecurityConfig) { s.LogLevel = "verbose" },
		func(s *SecurityConfig) { s.MaxLengths.Message = 0 },
		func(s *SecurityConfig) { s.RateLimitWindow = 0 },
		func(s *SecurityConfig) { s.MaxSubmissionsPerWindow = -1 },
	}
	for i, mutate := range mutations {
		s := DefaultSecurity()
		mutate(&s)
		if err := s.Validate(); err == nil {
			t.Errorf("mutation %d: expected validation error", i)
		}
	}
}

func TestValidate_ProductionSecrets(t *testing.T) {
	c := Default()
	c.Env = "production"
	if err := c.Validate(); err == nil {
		t.Error("production without secrets should fail")
	}
	c.SessionSecret = strings.Repeat("s", 32)
	c.CSRFKey = strings.Repeat("k", 32)
	if err := c.Validate(); err != nil {
		t.Errorf("production with secrets should pass: %v", err)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("TEMPLATES_DIR=/srv/templates\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEMPLATES_DIR", "")
	os.Unsetenv("TEMPLATES_DIR")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.TemplatesDir != "/srv/templates" {
		t.Errorf("want templates dir from env file, got %q", c.TemplatesDir)
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing env file should be ignored: %v", err)
	}
}
