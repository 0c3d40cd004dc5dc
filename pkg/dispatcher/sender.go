package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Sender is the per-channel delivery capability. Implementations talk to
// the actual provider (SMTP relay, SMS gateway, push service, HTTP
// endpoint); the engine only consumes the outcome.
//
// A classified failure should be returned as *SendError so the retry
// calculator can distinguish transient from permanent conditions. Using
// the record id as the provider idempotency key is recommended: the engine
// cannot cancel an already-dispatched provider call.
type Sender interface {
	// Channel reports which channel this sender delivers.
	Channel() notification.Channel

	// Send delivers the record and returns the provider receipt.
	Send(ctx context.Context, rec notification.Record) (notification.Receipt, error)
}

// DevSender implements Sender for local development. It writes each
// notification as a JSON file to a directory instead of calling a
// provider.
type DevSender struct {
	dir     string
	channel notification.Channel
}

// NewDevSender creates a development sender for the given channel that
// saves notifications to dir. The directory is created on first send.
func NewDevSender(dir string, ch notification.Channel) *DevSender {
	return &DevSender{dir: dir, channel: ch}
}

func (d *DevSender) Channel() notification.Channel {
	return d.channel
}

type devPayload struct {
	Timestamp  string            `json:"timestamp"`
	Channel    string            `json:"channel"`
	TenantID   string            `json:"tenant_id"`
	TemplateID string            `json:"template_id"`
	Recipients []string          `json:"recipients"`
	Subject    string            `json:"subject,omitempty"`
	Data       map[string]any    `json:"data,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (d *DevSender) Send(ctx context.Context, rec notification.Record) (notification.Receipt, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return notification.Receipt{}, fmt.Errorf("create dev sender directory: %w", err)
	}

	now := time.Now()
	payload := devPayload{
		Timestamp:  now.Format(time.RFC3339),
		Channel:    rec.Channel.String(),
		TenantID:   rec.TenantID.String(),
		TemplateID: rec.TemplateID,
		Recipients: rec.Recipients,
		Subject:    rec.Subject,
		Data:       rec.Data,
		Metadata:   rec.Metadata,
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return notification.Receipt{}, fmt.Errorf("marshal dev payload: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.json", now.Format("2006_01_02_150405"), rec.Channel, rec.ID)
	if err := os.WriteFile(filepath.Join(d.dir, name), raw, 0o644); err != nil {
		return notification.Receipt{}, fmt.Errorf("write dev payload: %w", err)
	}

	return notification.Receipt{
		MessageID:      rec.ID.String(),
		DeliveryStatus: "delivered",
		Provider:       "dev",
	}, nil
}
