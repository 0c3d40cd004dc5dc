package recipient

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// maxWebhookURLLength keeps tenant-supplied URLs within what intermediaries
// reliably accept.
const maxWebhookURLLength = 2048

// ValidWebhookURL reports whether value is an acceptable webhook endpoint:
// an absolute http/https URL with a non-empty path, at most 2048 characters,
// with a valid port when one is given, and not targeting loopback,
// link-local, or RFC 1918 private address space.
//
// The private-address guard inspects the URL host syntactically (IP literals
// and well-known localhost names). It does not resolve DNS; callers that
// dispatch webhooks must pin the resolved address at request time to close
// the DNS-rebinding window.
func ValidWebhookURL(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxWebhookURLLength {
		return false
	}

	u, err := url.ParseRequestURI(value)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Hostname() == "" || u.Path == "" {
		return false
	}

	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return false
		}
	}

	return !isInternalHost(u.Hostname())
}

// isInternalHost reports whether host points at infrastructure a tenant
// webhook must never reach.
func isInternalHost(host string) bool {
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Hostname form; nothing more to check syntactically.
		return false
	}

	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
