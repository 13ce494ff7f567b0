package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceReading is one append-only raw sensor sample. Values is sparse: only
// the tags the device actually reported are present.
type DeviceReading struct {
	ReadingID    int64              `json:"id"`
	SerialNumber string             `json:"serial_number"`
	RecordedAt   time.Time          `json:"recorded_at"`
	Values       map[string]float64 `json:"values"`
	Longitude    *float64           `json:"longitude,omitempty"`
	Latitude     *float64           `json:"latitude,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// LatestReading is the single-row-per-device projection of the most recent
// sample by recorded timestamp.
type LatestReading struct {
	SerialNumber string             `json:"serial_number"`
	RecordedAt   time.Time          `json:"recorded_at"`
	Values       map[string]float64 `json:"values"`
	ReceivedAt   time.Time          `json:"received_at"`
}

// StaleDevice is a device whose latest sample is older than the offline
// cutoff, as reported by the offline scan.
type StaleDevice struct {
	SerialNumber string    `json:"serial_number"`
	TenantID     uuid.UUID `json:"tenant_id"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}
