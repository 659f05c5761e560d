// Package sanitize strips markup and unexpected characters from contact form
// input. Every function is pure, never fails and is idempotent.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/payback159/contactgate/pkg/config"
	"github.com/payback159/contactgate/pkg/models"
	"golang.org/x/text/unicode/norm"
)

var (
	scriptBlock  = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)\s*>`)
	htmlTag      = regexp.MustCompile(`<[^>]*>`)
	jsProtocol   = regexp.MustCompile(`(?i)javascript:`)
	eventHandler = regexp.MustCompile(`(?i)on\w+\s*=`)
	extraSchemes = regexp.MustCompile(`(?i)(vbscript|data):`)
	whitespace   = regexp.MustCompile(`\s+`)

	entityDecoder = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
		"&#x27;", "'",
		"&#x2F;", "/",
	)
	lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")
	brackets   = strings.NewReplacer("<", "", ">", "")
)

// xssSignals are the patterns reported as a likely injection attempt
var xssSignals = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)<\s*iframe`),
	jsProtocol,
	regexp.MustCompile(`(?i)<[^>]*\bon\w+\s*=`),
}

// Text applies the generic rule: markup, script protocols and inline event
// handlers are removed and the common HTML entities are decoded. Decoding can
// surface new markup, so the rule repeats until the output stops changing.
// Each changing pass strictly shortens the string, which bounds the loop.
func Text(input string, level config.SanitizationLevel) string {
	if input == "" {
		return ""
	}
	out := input
	for {
		next := textPass(out, level)
		if next == out {
			return out
		}
		out = next
	}
}

func textPass(s string, level config.SanitizationLevel) string {
	s = scriptBlock.ReplaceAllString(s, "")
	s = htmlTag.ReplaceAllString(s, "")
	s = jsProtocol.ReplaceAllString(s, "")
	s = eventHandler.ReplaceAllString(s, "")
	if level != config.SanitizePermissive {
		s = extraSchemes.ReplaceAllString(s, "")
		s = strings.Map(dropControl, s)
	}
	if level == config.SanitizeStrict {
		s = strings.Map(func(r rune) rune {
			switch r {
			case '"', '\'', '`':
				return -1
			}
			return r
		}, s)
	}
	// a lone bracket is not a tag but must not reach the relay either.
	// Decoded entities are handled by the next pass.
	s = brackets.Replace(s)
	s = entityDecoder.Replace(s)
	return strings.TrimSpace(s)
}

func dropControl(r rune) rune {
	if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
		return -1
	}
	return r
}

// Email keeps only characters that can appear in an address and lowercases it
func Email(input string) string {
	if input == "" {
		return ""
	}
	kept := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '@', r == '.', r == '_', r == '+', r == '-':
			return r
		}
		return -1
	}, input)
	return strings.ToLower(strings.TrimSpace(kept))
}

// Name keeps Latin letters (accented ones included), whitespace, hyphens and
// apostrophes. Markup is removed first so the text inside script elements
// does not leak into the name.
func Name(input string, level config.SanitizationLevel) string {
	if input == "" {
		return ""
	}
	s := norm.NFC.String(Text(input, level))
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) && unicode.Is(unicode.Latin, r):
			return r
		case unicode.IsSpace(r):
			return r
		case r == '-', r == '\'':
			return r
		}
		return -1
	}, s)
	return collapse(s)
}

// Company removes quote and angle bracket characters and collapses whitespace
func Company(input string) string {
	if input == "" {
		return ""
	}
	s := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'':
			return -1
		}
		return r
	}, input)
	return collapse(s)
}

// Message applies the generic rule and normalizes line breaks to \n
func Message(input string, level config.SanitizationLevel) string {
	if input == "" {
		return ""
	}
	return lineBreaks.Replace(Text(input, level))
}

// Hash reduces a URL fragment to alphanumerics, '-', '_' and '/'
func Hash(input string) string {
	if input == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '/':
			return r
		}
		return -1
	}, input)
}

// Field dispatches to the rule for a form field. The honeypot is returned
// untouched because its raw content is the bot signal.
func Field(field models.Field, input string, level config.SanitizationLevel) string {
	switch field {
	case models.FieldName:
		return Name(input, level)
	case models.FieldEmail:
		return Email(input)
	case models.FieldCompany:
		return Company(input)
	case models.FieldMessage:
		return Message(input, level)
	case models.FieldHoneypot:
		return input
	default:
		return Text(input, level)
	}
}

// Input sanitizes every user field of a form
func Input(in models.FormInput, level config.SanitizationLevel) models.FormInput {
	out := in
	for _, f := range models.UserFields {
		out = out.With(f, Field(f, in.Get(f), level))
	}
	return out
}

// LooksLikeXSS reports whether the input carries a typical injection payload
func LooksLikeXSS(input string) bool {
	for _, re := range xssSignals {
		if re.MatchString(input) {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
