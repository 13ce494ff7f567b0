package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SeriesConfig references one tag mapping of the widget's device type. Each
// reference renders as one series.
type SeriesConfig struct {
	MappingID int64 `json:"mapping_id"`
}

// DataSourceConfig binds a widget to a device type and the mapped properties
// it plots.
type DataSourceConfig struct {
	DeviceTypeID int64          `json:"device_type_id"`
	Series       []SeriesConfig `json:"series"`
}

// WidgetDefinition describes a reusable chart widget.
type WidgetDefinition struct {
	WidgetID   int64            `json:"id"`
	WidgetType string           `json:"widget_type"`
	Title      string           `json:"title"`
	DataSource DataSourceConfig `json:"data_source"`
	CreatedAt  time.Time        `json:"created_at"`
}

type Dashboard struct {
	DashboardID int64     `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Name        string    `json:"name"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type DashboardLayout struct {
	LayoutID    int64           `json:"id"`
	DashboardID int64           `json:"dashboard_id"`
	WidgetID    int64           `json:"widget_id"`
	GridX       int             `json:"grid_x"`
	GridY       int             `json:"grid_y"`
	GridW       int             `json:"grid_w"`
	GridH       int             `json:"grid_h"`
	Overrides   json.RawMessage `json:"overrides,omitempty"`
}
