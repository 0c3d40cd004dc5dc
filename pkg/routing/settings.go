package routing

import (
	"context"

	"github.com/google/uuid"
)

// Settings holds the tenant delivery preferences consumed by the routing
// engine. The zero value means "always eligible to send now".
type Settings struct {
	// QuietHoursEnabled gates the quiet-window check entirely.
	QuietHoursEnabled bool `json:"quiet_hours_enabled"`
	// QuietHoursStart and QuietHoursEnd are local hours in [0,23]. The
	// window is [start, end) and wraps across midnight when start > end.
	// Equal values describe an empty window.
	QuietHoursStart int `json:"quiet_hours_start"`
	QuietHoursEnd   int `json:"quiet_hours_end"`
	// Timezone is an IANA zone name, e.g. "Europe/Berlin". Empty means UTC.
	Timezone string `json:"timezone"`
}

// SettingsProvider supplies per-tenant delivery preferences. Implementations
// should return the zero Settings (not an error) for tenants without
// explicit preferences.
type SettingsProvider interface {
	Settings(ctx context.Context, tenantID uuid.UUID) (Settings, error)
}

// StaticSettings is a SettingsProvider that returns the same settings for
// every tenant. Useful in tests and single-tenant deployments.
type StaticSettings Settings

func (s StaticSettings) Settings(ctx context.Context, tenantID uuid.UUID) (Settings, error) {
	return Settings(s), nil
}
