package recipient

import (
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Valid reports whether token is a syntactically valid recipient for the
// given channel. Unknown channels are never valid.
func Valid(ch notification.Channel, token string) bool {
	switch ch {
	case notification.ChannelEmail:
		return ValidEmail(token)
	case notification.ChannelSMS:
		return ValidPhone(token)
	case notification.ChannelPush:
		return ValidDeviceToken(token)
	case notification.ChannelWebhook:
		return ValidWebhookURL(token)
	}
	return false
}
