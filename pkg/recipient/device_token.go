package recipient

import "regexp"

var (
	// Covers FCM registration tokens and APNS device tokens. APNS tokens
	// are 64 hex characters; FCM tokens are longer and may contain
	// colon, underscore, and dash.
	deviceTokenRegex = regexp.MustCompile(`^[A-Za-z0-9:_-]{64,152}$`)

	apnsTokenRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// Platform identifies the push provider a device token belongs to.
type Platform string

const (
	PlatformAPNS    Platform = "apns"
	PlatformFCM     Platform = "fcm"
	PlatformUnknown Platform = "unknown"
)

// ValidDeviceToken reports whether value is a plausible push device token.
func ValidDeviceToken(value string) bool {
	return deviceTokenRegex.MatchString(value)
}

// DeviceTokenPlatform classifies a device token by shape. A 64-character
// hex string is an APNS token; any other valid token is assumed to be FCM.
// The heuristic backs the mixed-platform validation warning only and never
// gates delivery.
func DeviceTokenPlatform(value string) Platform {
	if !ValidDeviceToken(value) {
		return PlatformUnknown
	}
	if apnsTokenRegex.MatchString(value) {
		return PlatformAPNS
	}
	return PlatformFCM
}
