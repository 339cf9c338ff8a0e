// Package normalize canonicalises user-supplied strings before they are
// compared or stored.
package normalize

import (
	"strings"
	"unicode"
)

// Email trims and lower-cases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims surrounding whitespace and collapses inner runs of spaces.
// Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Phone removes spaces, dashes, dots and parentheses, and prefixes a single
// "+" so numbers are stored in international form.
func Phone(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			// leading plus handled below
		case unicode.IsSpace(r), r == '-', r == '.', r == '(', r == ')':
		default:
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// Token trims a short identifier-like value (program, cohort, connection type).
func Token(s string) string {
	return strings.TrimSpace(s)
}

// LowerToken trims and lower-cases a short identifier-like value.
func LowerToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// QueryParam trims a query string value. Case is preserved.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}

// List splits a comma-separated setting into trimmed, non-empty items.
func List(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
