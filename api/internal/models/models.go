package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Tenant struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	UserID      uuid.UUID  `json:"user_id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Subject     string     `json:"subject"`
	Email       string     `json:"email,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Role        string     `json:"role,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// HierarchyNode is one level of the organizational tree. LevelOrder ranks the
// tier: 1=Region, 2=Area, 3=Field, 4=Well.
type HierarchyNode struct {
	NodeID          int64     `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	Name            string    `json:"name"`
	LevelName       string    `json:"level_name"`
	LevelOrder      int       `json:"level_order"`
	ParentID        *int64    `json:"parent_id,omitempty"`
	CanAttachDevice bool      `json:"can_attach_device"`
	CreatedAt       time.Time `json:"created_at"`
}

type DeviceType struct {
	TypeID int64  `json:"id"`
	Name   string `json:"name"`
}

type Device struct {
	DeviceID     int64           `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	NodeID       *int64          `json:"hierarchy_node_id,omitempty"`
	TypeID       int64           `json:"device_type_id"`
	TypeName     string          `json:"device_type"`
	SerialNumber string          `json:"serial_number"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TagMapping binds a variable tag in raw payloads to a device type, with an
// optional arithmetic expression deriving the value from other tags.
type TagMapping struct {
	MappingID   int64   `json:"id"`
	TypeID      int64   `json:"device_type_id"`
	Tag         string  `json:"tag"`
	DisplayName string  `json:"display_name"`
	Unit        *string `json:"unit,omitempty"`
	Expression  *string `json:"expression,omitempty"`
	UIOrder     int     `json:"ui_order"`
}

type AuditLog struct {
	AuditID      int64
	OccurredAt   time.Time
	TenantID     uuid.UUID
	ActorUserID  *uuid.UUID
	Subject      string
	Action       string
	ResourceType *string
	ResourceID   *string
	RequestID    string
	Method       string
	Path         string
	StatusCode   int
	DurationMS   int64
	ClientIP     string
	UserAgent    string
	Details      []byte
}
