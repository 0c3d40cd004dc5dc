package recipient

import (
	"net/mail"
	"strings"
)

// maxEmailLength is the RFC 5321 ceiling for a complete address.
const maxEmailLength = 254

// ValidEmail reports whether value is a valid email address for delivery
// purposes: RFC 5322 parseable, at most 254 characters, with a dotted
// domain and a local part free of leading/trailing/consecutive dots.
func ValidEmail(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxEmailLength {
		return false
	}
	if strings.ContainsAny(value, " \t\r\n") {
		return false
	}

	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		// Reject display-name forms like `Name <user@example.com>`;
		// a recipient token is a bare address.
		return false
	}

	local, domain, ok := strings.Cut(addr.Address, "@")
	if !ok || local == "" || domain == "" {
		return false
	}

	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return false
	}

	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	for part := range strings.SplitSeq(domain, ".") {
		if part == "" {
			return false
		}
	}

	return true
}

// NormalizeEmail returns the canonical lower-case form of an address.
// It does not validate; combine with ValidEmail.
func NormalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
