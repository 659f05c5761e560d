package sanitize

import (
	"strings"
	"testing"

	"github.com/payback159/contactgate/pkg/config"
	"github.com/payback159/contactgate/pkg/models"
)

var levels = []config.SanitizationLevel{
	config.SanitizePermissive,
	config.SanitizeModerate,
	config.SanitizeStrict,
}

// corpus mixes ordinary input with hostile payloads
var corpus = []string{
	"",
	"   ",
	"Hello world",
	"Max Mustermann",
	"<b>bold</b> text",
	"<script>alert(1)</script>John",
	"<SCRIPT src=x>alert('x')</SCRIPT >after",
	"<img src=x onerror=alert(1)>",
	`<a href="javascript:alert(1)">click</a>`,
	"JaVaScRiPt:void(0)",
	"&lt;script&gt;alert(1)&lt;/script&gt;",
	"&amp;lt;b&amp;gt;nested&amp;lt;/b&amp;gt;",
	"a < b and c > d",
	"<<b>>x<</b>>",
	"Tom &amp; Jerry &quot;quoted&quot; &#x27;single&#x27; &#x2F;slash",
	"line1\r\nline2\rline3\nline4",
	"onclick = steal()",
	"vbscript:msgbox data:text/html",
	"ctrl\x00chars\x07here",
	"José Álvarez-O'Brien",
	"Jose\u0301 decomposed",
	"  spaced   out \t name ",
	"ACME <Corp> \"Ltd\" 'Inc'",
	"UPPER.Case+tag@Example.COM",
	"bad email(at)x y@z",
	"#pricing<script>",
	"../../etc/passwd#x",
}

func TestText_NoAngleBracketsForMarkup(t *testing.T) {
	for _, lvl := range levels {
		for _, in := range corpus {
			if !strings.ContainsAny(in, "<>") && !strings.Contains(in, "&lt;") {
				continue
			}
			out := Text(in, lvl)
			if strings.ContainsAny(out, "<>") {
				t.Errorf("Text(%q, %s) = %q still contains angle brackets", in, lvl, out)
			}
		}
	}
}

func TestAllRules_Idempotent(t *testing.T) {
	fields := []models.Field{
		models.FieldName, models.FieldEmail, models.FieldCompany, models.FieldMessage, models.FieldHoneypot,
	}
	for _, lvl := range levels {
		for _, f := range fields {
			for _, in := range corpus {
				once := Field(f, in, lvl)
				twice := Field(f, once, lvl)
				if once != twice {
					t.Errorf("%s/%s not idempotent for %q: %q -> %q", f, lvl, in, once, twice)
				}
			}
		}
		for _, in := range corpus {
			once := Text(in, lvl)
			if twice := Text(once, lvl); once != twice {
				t.Errorf("Text/%s not idempotent for %q: %q -> %q", lvl, in, once, twice)
			}
		}
	}
	for _, in := range corpus {
		once := Hash(in)
		if twice := Hash(once); once != twice {
			t.Errorf("Hash not idempotent for %q", in)
		}
	}
}

func TestEmptyInput_ReturnsEmpty(t *testing.T) {
	if Text("", config.SanitizeModerate) != "" || Email("") != "" || Name("", config.SanitizeModerate) != "" ||
		Company("") != "" || Message("", config.SanitizeModerate) != "" || Hash("") != "" {
		t.Error("every rule should return empty string for empty input")
	}
}

func TestText_Rules(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"<b>bold</b> text", "bold text"},
		{"  padded  ", "padded"},
		{"JaVaScRiPt:void(0)", "void(0)"},
		{"onclick = steal()", "steal()"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"&quot;hi&quot; &#x27;x&#x27; a&#x2F;b", `"hi" 'x' a/b`},
		{"&lt;script&gt;alert(1)&lt;/script&gt;", ""},
		{"<script>alert(1)</script>John", "John"},
	}
	for _, tc := range cases {
		if got := Text(tc.in, config.SanitizeModerate); got != tc.want {
			t.Errorf("Text(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestText_Levels(t *testing.T) {
	in := "say \"hi\" via data:x\x00"
	if got := Text(in, config.SanitizePermissive); got != "say \"hi\" via data:x\x00" {
		t.Errorf("permissive changed too much: %q", got)
	}
	if got := Text(in, config.SanitizeModerate); got != `say "hi" via x` {
		t.Errorf("moderate: got %q", got)
	}
	if got := Text(in, config.SanitizeStrict); got != "say hi via x" {
		t.Errorf("strict: got %q", got)
	}
}

func TestEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"UPPER.Case+tag@Example.COM", "upper.case+tag@example.com"},
		{" john doe@example.com ", "johndoe@example.com"},
		{"<x>@y.z", "x@y.z"},
		{"user_name-1@sub.domain.org", "user_name-1@sub.domain.org"},
	}
	for _, tc := range cases {
		if got := Email(tc.in); got != tc.want {
			t.Errorf("Email(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Max Mustermann", "Max Mustermann"},
		{"José Álvarez-O'Brien", "José Álvarez-O'Brien"},
		{"  spaced   out \t name ", "spaced out name"},
		{"R2-D2", "R-D"},
		{"<script>alert(1)</script>John", "John"},
		{"Jose\u0301", "José"},
		{"Ærøskøbing Ÿves", "Ærøskøbing Ÿves"},
	}
	for _, tc := range cases {
		if got := Name(tc.in, config.SanitizeModerate); got != tc.want {
			t.Errorf("Name(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCompany(t *testing.T) {
	if got := Company("ACME <Corp>  \"Ltd\" 'Inc'"); got != "ACME Corp Ltd Inc" {
		t.Errorf("Company: got %q", got)
	}
	if got := Company("Müller & Söhne GmbH"); got != "Müller & Söhne GmbH" {
		t.Errorf("Company should keep business characters: got %q", got)
	}
}

func TestMessage_LineBreaks(t *testing.T) {
	got := Message("line1\r\nline2\rline3\nline4", config.SanitizeModerate)
	if got != "line1\nline2\nline3\nline4" {
		t.Errorf("Message: got %q", got)
	}
	if strings.Contains(Message("<i>a</i>\r\n<b>b</b>", config.SanitizeModerate), "\r") {
		t.Error("carriage returns must not survive")
	}
}

func TestHash(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"#pricing", "pricing"},
		{"features/section-2_a", "features/section-2_a"},
		{"faq\"><script>alert(1)</script>", "faqscriptalert1/script"},
		{"../../etc", "//etc"},
	}
	for _, tc := range cases {
		if got := Hash(tc.in); got != tc.want {
			t.Errorf("Hash(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestField_HoneypotUntouched(t *testing.T) {
	raw := "  <b>http://spam</b>  "
	if got := Field(models.FieldHoneypot, raw, config.SanitizeStrict); got != raw {
		t.Errorf("honeypot must not be sanitized, got %q", got)
	}
}

func TestInput_SanitizesUserFieldsOnly(t *testing.T) {
	in := models.FormInput{
		Name:     "<b>Ann</b>",
		Email:    "ANN@EXAMPLE.COM",
		Company:  "<Acme>",
		Message:  "hi\r\nthere",
		Honeypot: " x ",
	}
	got := Input(in, config.SanitizeModerate)
	want := models.FormInput{Name: "Ann", Email: "ann@example.com", Company: "Acme", Message: "hi\nthere", Honeypot: " x "}
	if got != want {
		t.Errorf("Input: got %+v, want %+v", got, want)
	}
}

func TestLooksLikeXSS(t *testing.T) {
	hostile := []string{
		"<script>alert(1)</script>",
		"< SCRIPT>",
		`<img src=x onerror="alert(1)">`,
		"javascript:alert(1)",
		"<iframe src=//evil>",
	}
	for _, in := range hostile {
		if !LooksLikeXSS(in) {
			t.Errorf("LooksLikeXSS(%q) = false, want true", in)
		}
	}
	benign := []string{"Hello", "Tom & Jerry", "a < b", "Monday = busy"}
	for _, in := range benign {
		if LooksLikeXSS(in) {
			t.Errorf("LooksLikeXSS(%q) = true, want false", in)
		}
	}
}
