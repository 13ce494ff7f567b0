package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AlarmType struct {
	TypeID   int64  `json:"id"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
}

type AlarmStatus struct {
	StatusID int64  `json:"id"`
	Name     string `json:"name"`
}

type Alarm struct {
	AlarmID        int64           `json:"id"`
	SerialNumber   string          `json:"serial_number"`
	TypeID         int64           `json:"alarm_type_id"`
	TypeName       string          `json:"alarm_type"`
	Severity       string          `json:"severity"`
	StatusID       int64           `json:"status_id"`
	StatusName     string          `json:"status"`
	Message        *string         `json:"message,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	AcknowledgedBy *uuid.UUID      `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	ResolvedBy     *uuid.UUID      `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type AlarmStatistics struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	BySeverity map[string]int64 `json:"by_severity"`
}
