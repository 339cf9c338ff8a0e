// Package htmlsanitize strips markup from free-text fields (names, comments,
// support requests) before they are stored, exported or mailed.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text removes every tag from s and returns plain text. Entities that
// bluemonday escapes are decoded again so stored values read naturally;
// callers that render into HTML escape on output.
func Text(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Answers applies Text to every value in m and drops empty answers.
func Answers(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		k = Text(k)
		if v = Text(v); k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
