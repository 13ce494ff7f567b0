package handlers

import (
	"encoding/json"
	"strings"
	"testing"

	"multiphase-telemetry-dashboard/api/internal/aggregate"
)

func TestHierarchyChartWireShape(t *testing.T) {
	chart := hierarchyChart{
		NodeID:      3,
		Range:       "24h",
		DeviceCount: 2,
		Points:      []aggregate.HierarchyPoint{},
	}
	raw, err := json.Marshal(chart)
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)
	// Synthetic-series degradation is visible in logs and metrics only, the
	// payload shape stays the same either way.
	if strings.Contains(body, "fallback") {
		t.Fatalf("payload leaks degradation flag: %s", body)
	}
	for _, key := range []string{`"node_id"`, `"range"`, `"device_count"`, `"points"`} {
		if !strings.Contains(body, key) {
			t.Fatalf("payload missing %s: %s", key, body)
		}
	}
}
