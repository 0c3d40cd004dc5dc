package notification

import "time"

// Channel identifies the delivery medium of a notification.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
)

// Channels lists all supported channels in a stable order.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook}
}

// Valid reports whether the channel is one of the supported values.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook:
		return true
	}
	return false
}

func (c Channel) String() string {
	return string(c)
}

// channelTuning holds the per-channel knobs that the validation and retry
// layers consume. The values are deliberate tuning decisions, not incidental:
// push providers tolerate much faster retry cadence than SMTP relays, and
// webhook payloads may legitimately be two orders of magnitude larger than
// an SMS template payload.
type channelTuning struct {
	payloadCeiling   int           // serialized template-data bytes before a size warning
	recipientCeiling int           // recipients per record before a batching warning
	backoffBase      time.Duration // first retry delay
	backoffCap       time.Duration // maximum retry delay
}

var tuning = map[Channel]channelTuning{
	ChannelEmail: {
		payloadCeiling:   10_000,
		recipientCeiling: 100,
		backoffBase:      60 * time.Second,
		backoffCap:       30 * time.Minute,
	},
	ChannelSMS: {
		payloadCeiling:   1_000,
		recipientCeiling: 100,
		backoffBase:      60 * time.Second,
		backoffCap:       30 * time.Minute,
	},
	ChannelPush: {
		payloadCeiling:   4_000,
		recipientCeiling: 1_000,
		backoffBase:      10 * time.Second,
		backoffCap:       5 * time.Minute,
	},
	ChannelWebhook: {
		payloadCeiling:   100_000,
		recipientCeiling: 100,
		backoffBase:      5 * time.Second,
		backoffCap:       10 * time.Minute,
	},
}

// PayloadCeiling returns the serialized template-data size (in bytes) above
// which validation emits a performance warning.
func (c Channel) PayloadCeiling() int {
	return tuning[c].payloadCeiling
}

// RecipientCeiling returns the recipient count above which validation
// suggests batching.
func (c Channel) RecipientCeiling() int {
	return tuning[c].recipientCeiling
}

// BackoffBase returns the first retry delay for the channel.
func (c Channel) BackoffBase() time.Duration {
	return tuning[c].backoffBase
}

// BackoffCap returns the maximum retry delay for the channel.
func (c Channel) BackoffCap() time.Duration {
	return tuning[c].backoffCap
}
