package validation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/recipient"
)

// Result is the outcome of a pre-flight check. Errors block processing;
// Warnings are advisory only.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate runs every business rule against the record. The reference time
// now is used for schedule checks so the function stays pure.
func Validate(rec notification.Record, now time.Time) Result {
	var res Result

	if len(rec.Recipients) == 0 {
		res.addError("recipients must not be empty")
	}
	for _, token := range rec.Recipients {
		if !recipient.Valid(rec.Channel, token) {
			res.addError("invalid %s recipient: %q", rec.Channel, token)
		}
	}

	if rec.TemplateID == "" {
		res.addError("template id is required")
	}

	if !rec.Priority.Valid() {
		res.addError("invalid priority: %q", rec.Priority)
	}

	if rec.ScheduledAt != nil && !rec.ScheduledAt.After(now) {
		res.addError("scheduled time must be in the future")
	}

	checkSubject(rec, &res)
	checkPayloadSize(rec, &res)
	checkRecipientCount(rec, &res)
	checkMixedRecipients(rec, &res)
	checkDuplicateEmails(rec, &res)

	res.Valid = len(res.Errors) == 0
	return res
}

// checkSubject warns when an email subject carries control characters,
// markup, or exceeds the length providers accept. The record still
// delivers; the provider may mangle or reject the line.
func checkSubject(rec notification.Record, res *Result) {
	if rec.Channel != notification.ChannelEmail || rec.Subject == "" {
		return
	}
	if !recipient.ValidSubject(rec.Subject) {
		res.addWarning("subject contains control characters, markup, or exceeds 255 characters")
	}
}

// checkPayloadSize warns when the serialized template data exceeds the
// channel ceiling. Oversized payloads still deliver; they just cost more.
func checkPayloadSize(rec notification.Record, res *Result) {
	if len(rec.Data) == 0 {
		return
	}
	raw, err := json.Marshal(rec.Data)
	if err != nil {
		res.addError("template data is not serializable: %v", err)
		return
	}
	if ceiling := rec.Channel.PayloadCeiling(); len(raw) > ceiling {
		res.addWarning("template data is %d bytes, above the %d byte %s ceiling", len(raw), ceiling, rec.Channel)
	}
}

func checkRecipientCount(rec notification.Record, res *Result) {
	if ceiling := rec.Channel.RecipientCeiling(); len(rec.Recipients) > ceiling {
		res.addWarning("%d recipients exceeds the %s ceiling of %d, consider batch sending", len(rec.Recipients), rec.Channel, ceiling)
	}
}

// checkMixedRecipients warns when a single record fans out to
// inconsistently typed recipients: device tokens from different push
// platforms, or webhook URLs mixing http and https.
func checkMixedRecipients(rec notification.Record, res *Result) {
	switch rec.Channel {
	case notification.ChannelPush:
		platforms := map[recipient.Platform]bool{}
		for _, token := range rec.Recipients {
			if p := recipient.DeviceTokenPlatform(token); p != recipient.PlatformUnknown {
				platforms[p] = true
			}
		}
		if len(platforms) > 1 {
			res.addWarning("recipients mix push platforms, deliveries will fan out across providers")
		}
	case notification.ChannelWebhook:
		schemes := map[string]bool{}
		for _, u := range rec.Recipients {
			if len(u) >= 8 && u[:8] == "https://" {
				schemes["https"] = true
			} else if len(u) >= 7 && u[:7] == "http://" {
				schemes["http"] = true
			}
		}
		if len(schemes) > 1 {
			res.addWarning("recipients mix http and https webhook endpoints")
		}
	}
}

// checkDuplicateEmails warns when two email recipients normalize to the
// same address, which would double-deliver.
func checkDuplicateEmails(rec notification.Record, res *Result) {
	if rec.Channel != notification.ChannelEmail || len(rec.Recipients) < 2 {
		return
	}
	seen := make(map[string]bool, len(rec.Recipients))
	warned := make(map[string]bool)
	for _, r := range rec.Recipients {
		norm := recipient.NormalizeEmail(r)
		if seen[norm] {
			if !warned[norm] {
				res.addWarning("duplicate recipient after normalization: %q", norm)
				warned[norm] = true
			}
			continue
		}
		seen[norm] = true
	}
}
