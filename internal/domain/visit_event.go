package domain

import (
	"time"

	"github.com/google/uuid"
)

// Device classifications recorded on visit events.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// VisitEvent is an append-only record of one click request.
type VisitEvent struct {
	ID            uuid.UUID `json:"id"`
	Domain        string    `json:"domain"`
	RemoteAddress string    `json:"remote_address"`
	UserAgent     string    `json:"user_agent"`
	Referrer      *string   `json:"referrer"`
	DeviceType    string    `json:"device_type"`
	IsBot         bool      `json:"is_bot"`
	Timestamp     time.Time `json:"timestamp"`
}
