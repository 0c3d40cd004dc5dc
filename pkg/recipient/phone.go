package recipient

import "regexp"

// E.164 with optional leading plus: country code 1-9 followed by 2-15
// digits total.
var phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// ValidPhone reports whether value is a valid international phone number.
func ValidPhone(value string) bool {
	return phoneRegex.MatchString(value)
}
