package security

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	mrand "math/rand/v2"
	"strconv"

	"github.com/payback159/contactgate/pkg/config"
	"github.com/payback159/contactgate/pkg/logging"
)

const tokenBytes = 32

// TokenGenerator produces the opaque per-form token sent with a submission.
// Nothing in this service verifies the token; it is only attached so a
// relay that checks it can be adopted later.
type TokenGenerator struct {
	Enabled bool
	// Reader is the random source, crypto/rand when nil
	Reader io.Reader
}

// NewTokenGenerator creates a generator from the security configuration
func NewTokenGenerator(cfg config.SecurityConfig) TokenGenerator {
	return TokenGenerator{Enabled: cfg.EnableCSRF}
}

// Generate returns 64 hex characters from 32 random bytes, a weaker base36
// token if the random source fails, or "" when the feature is disabled
func (g TokenGenerator) Generate() string {
	if !g.Enabled {
		return ""
	}

	reader := g.Reader
	if reader == nil {
		reader = rand.Reader
	}

	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		logging.LogWarn("Secure random source unavailable, using fallback token",
			"error", err)
		return fallbackToken()
	}
	return hex.EncodeToString(buf)
}

func fallbackToken() string {
	return strconv.FormatUint(mrand.Uint64(), 36) + strconv.FormatUint(mrand.Uint64(), 36)
}
