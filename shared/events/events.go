package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	TopicTelemetryReadings = "telemetry.readings"
	TopicAlarmEvents       = "alarm.events"
	TopicDeviceStatus      = "device.status"
)

const (
	EventReadingReceived    = "reading.received"
	EventAlarmCreated       = "alarm.created"
	EventAlarmStatusChanged = "alarm.status_changed"
	EventDeviceOffline      = "device.offline"
)

// ReadingPayload is the wire form of one sensor reading as produced by the
// ingest gateway and consumed by the reading persister.
type ReadingPayload struct {
	SerialNumber string             `json:"serial_number"`
	RecordedAt   time.Time          `json:"recorded_at"`
	Values       map[string]float64 `json:"values"`
	Longitude    *float64           `json:"longitude,omitempty"`
	Latitude     *float64           `json:"latitude,omitempty"`
}

type AlarmEventPayload struct {
	AlarmID      int64  `json:"alarm_id"`
	SerialNumber string `json:"serial_number"`
	TypeName     string `json:"type_name"`
	Severity     string `json:"severity"`
	StatusName   string `json:"status_name"`
	Message      string `json:"message,omitempty"`
}
