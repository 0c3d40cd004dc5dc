package recipient

import (
	"strings"
	"unicode"
)

// maxSubjectLength bounds the email subject line.
const maxSubjectLength = 255

// ValidSubject reports whether value is safe to use as an email subject:
// non-empty, at most 255 characters, free of control characters and of the
// injection-prone set <>"'&.
func ValidSubject(value string) bool {
	if value == "" || len(value) > maxSubjectLength {
		return false
	}
	if strings.ContainsAny(value, `<>"'&`) {
		return false
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
