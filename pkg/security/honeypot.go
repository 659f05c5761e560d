package security

import "github.com/payback159/contactgate/pkg/config"

// Honeypot flags submissions whose hidden decoy field was filled in.
// Humans never see the field; naive bots fill every input they find.
type Honeypot struct {
	Enabled bool
}

// NewHoneypot creates a check from the security configuration
func NewHoneypot(cfg config.SecurityConfig) Honeypot {
	return Honeypot{Enabled: cfg.EnableHoneypot}
}

// Check reports whether value looks like it was filled by a bot. The raw
// value is inspected as submitted; whitespace counts as content.
func (h Honeypot) Check(value string) bool {
	return h.Enabled && value != ""
}
