// Package recipient provides syntactic validation for the recipient token
// of each notification channel: email address, phone number, device token,
// and webhook URL.
//
// All checks are pure functions over the token string. The webhook check
// additionally enforces an SSRF guard: URLs pointing at loopback,
// link-local, or RFC 1918 private addresses are rejected. This is a
// security invariant, not cosmetics — tenant-supplied webhook URLs must
// never reach internal infrastructure.
//
//	recipient.Valid(notification.ChannelEmail, "User@Example.com") // true
//	recipient.Valid(notification.ChannelWebhook, "http://10.0.0.1/hook") // false
package recipient
