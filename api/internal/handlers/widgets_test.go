package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"multiphase-telemetry-dashboard/api/internal/aggregate"
	"multiphase-telemetry-dashboard/api/internal/models"
	"multiphase-telemetry-dashboard/shared/tenantx"
)

func strp(s string) *string { return &s }

func sampleReadings() []aggregate.Reading {
	t0 := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	return []aggregate.Reading{
		{SerialNumber: "WM-001", RecordedAt: t0, Values: map[string]float64{"oil": 10, "water": 30}},
		{SerialNumber: "WM-001", RecordedAt: t0.Add(time.Minute), Values: map[string]float64{"oil": 20, "water": 20}},
		{SerialNumber: "WM-002", RecordedAt: t0.Add(2 * time.Minute), Values: map[string]float64{"water": 50}},
	}
}

func TestSeriesRowsExpressionMapping(t *testing.T) {
	m := models.TagMapping{Tag: "liquid", DisplayName: "Liquid Rate", Expression: strp("oil + water")}
	points := seriesRows(m, sampleReadings())
	if len(points) != 3 {
		t.Fatalf("got %d points, want 3", len(points))
	}
	if points[0].Value != 40 || points[1].Value != 40 {
		t.Fatalf("expression values = %v, %v", points[0].Value, points[1].Value)
	}
	// Row without "oil" still evaluates, the missing tag reads zero.
	if points[2].Value != 50 {
		t.Fatalf("missing-tag row = %v, want 50", points[2].Value)
	}
	if points[2].SerialNumber != "WM-002" {
		t.Fatalf("serial = %s", points[2].SerialNumber)
	}
}

func TestSeriesRowsPlainTagSkipsMissing(t *testing.T) {
	m := models.TagMapping{Tag: "oil", DisplayName: "Oil Rate"}
	points := seriesRows(m, sampleReadings())
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	for _, p := range points {
		if p.SerialNumber != "WM-001" {
			t.Fatalf("row without the tag leaked in: %+v", p)
		}
	}
}

func TestLatestRowsMeanAcrossDevices(t *testing.T) {
	m := models.TagMapping{Tag: "water", DisplayName: "Water Cut"}
	latest := []aggregate.Latest{
		{SerialNumber: "WM-001", Values: map[string]float64{"water": 20}},
		{SerialNumber: "WM-002", Values: map[string]float64{"water": 40}},
		{SerialNumber: "WM-003", Values: map[string]float64{"oil": 5}},
	}
	points, mean := latestRows(m, latest)
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if mean == nil || *mean != 30 {
		t.Fatalf("mean = %v, want 30", mean)
	}
}

func TestLatestRowsNoContributorsNilMean(t *testing.T) {
	m := models.TagMapping{Tag: "gas", DisplayName: "Gas Rate"}
	points, mean := latestRows(m, []aggregate.Latest{
		{SerialNumber: "WM-001", Values: map[string]float64{"oil": 5}},
	})
	if len(points) != 0 {
		t.Fatalf("points = %+v", points)
	}
	if mean != nil {
		t.Fatalf("mean = %v, want nil", mean)
	}
}

func viewerRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := tenantx.WithTenant(r.Context(), tenantx.TenantContext{
		ID:   uuid.NewString(),
		Slug: "acme",
		Role: "viewer",
	})
	return r.WithContext(ctx)
}

func TestWidgetMutationsRequireAdmin(t *testing.T) {
	h := &WidgetsHandler{}
	calls := map[string]http.HandlerFunc{
		"create":  h.create,
		"layouts": h.updateLayouts,
		"delete":  h.delete,
	}
	for name, fn := range calls {
		w := httptest.NewRecorder()
		fn(w, viewerRequest(http.MethodPost, "/api/v1/widgets", `{}`))
		if w.Code != http.StatusForbidden {
			t.Fatalf("%s as viewer = %d, want 403", name, w.Code)
		}
	}
}

func TestCreateAlarmRequiresAdmin(t *testing.T) {
	h := &AlarmsHandler{}
	w := httptest.NewRecorder()
	h.create(w, viewerRequest(http.MethodPost, "/api/v1/alarms", `{}`))
	if w.Code != http.StatusForbidden {
		t.Fatalf("create as viewer = %d, want 403", w.Code)
	}
}
