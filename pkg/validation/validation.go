package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/payback159/contactgate/pkg/config"
	"github.com/payback159/contactgate/pkg/models"
)

// emailPattern is the simplified local@domain.tld shape
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validator checks contact form input against the configured limits
type Validator struct {
	enabled bool
	max     config.MaxLengths
}

// New creates a validator from the security configuration
func New(cfg config.SecurityConfig) *Validator {
	return &Validator{
		enabled: cfg.EnableValidation,
		max:     cfg.MaxLengths,
	}
}

// Validate returns the fields that failed with a reason each. A fresh result
// is built on every call. When validation is disabled it is always empty.
func (v *Validator) Validate(in models.FormInput) models.ValidationResult {
	errs := models.ValidationResult{}
	if !v.enabled {
		return errs
	}

	if !Name(in.Name, v.max.Name) {
		errs[models.FieldName] = fmt.Sprintf("Name must be between 1 and %d characters", v.max.Name)
	}
	if !Email(in.Email, v.max.Email) {
		errs[models.FieldEmail] = "Please enter a valid email address"
	}
	if !Company(in.Company, v.max.Company) {
		errs[models.FieldCompany] = fmt.Sprintf("Company name must be less than %d characters", v.max.Company)
	}
	if !Message(in.Message, v.max.Message) {
		errs[models.FieldMessage] = fmt.Sprintf("Message must be between 1 and %d characters", v.max.Message)
	}
	return errs
}

// Email reports whether the address is non-empty, within maxLen and shaped
// like local@domain.tld
func Email(email string, maxLen int) bool {
	if strings.TrimSpace(email) == "" {
		return false
	}
	if utf8.RuneCountInString(email) > maxLen {
		return false
	}
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// Length reports whether the trimmed text has between minLen and maxLen characters
func Length(text string, minLen, maxLen int) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	return n >= minLen && n <= maxLen
}

// Name is required
func Name(name string, maxLen int) bool {
	return Length(name, 1, maxLen)
}

// Company is optional; only its length is checked
func Company(company string, maxLen int) bool {
	if strings.TrimSpace(company) == "" {
		return true
	}
	return Length(company, 0, maxLen)
}

// Message is required
func Message(message string, maxLen int) bool {
	return Length(message, 1, maxLen)
}
