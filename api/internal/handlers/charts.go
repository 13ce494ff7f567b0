package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"multiphase-telemetry-dashboard/api/internal/aggregate"
	"multiphase-telemetry-dashboard/api/internal/expr"
	"multiphase-telemetry-dashboard/api/internal/hierarchy"
	"multiphase-telemetry-dashboard/api/internal/models"
	"multiphase-telemetry-dashboard/api/internal/repos"
	"multiphase-telemetry-dashboard/shared/cachex"
	"multiphase-telemetry-dashboard/shared/httpx"
	"multiphase-telemetry-dashboard/shared/logx"
	"multiphase-telemetry-dashboard/shared/metricsx"
	"multiphase-telemetry-dashboard/shared/tenantx"
)

type ChartsHandler struct {
	Devices   *repos.DevicesRepo
	Hierarchy *repos.HierarchyRepo
	Readings  *repos.ReadingsRepo
	Alarms    *repos.AlarmsRepo
	Mappings  *repos.MappingsRepo
	Cache     *cachex.Client
	CacheTTL  time.Duration
	Logger    logx.Logger
	Now       func() time.Time
}

func (h *ChartsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/charts/devices/{id}", h.deviceSeries)
	mux.HandleFunc("GET /api/v1/charts/devices/{id}/realtime", h.deviceRealtime)
	mux.HandleFunc("GET /api/v1/charts/hierarchy/{id}", h.hierarchySeries)
	mux.HandleFunc("GET /api/v1/charts/dashboard", h.dashboard)
}

func (h *ChartsHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// resolveDevice fetches the device and enforces tenant ownership.
func (h *ChartsHandler) resolveDevice(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID, tenant tenantx.TenantContext) (models.Device, bool) {
	deviceID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid device id", nil)
		return models.Device{}, false
	}
	device, err := h.Devices.GetDeviceAny(r.Context(), deviceID)
	if err != nil {
		writeRepoError(w, r, err, "device")
		return models.Device{}, false
	}
	if device.TenantID != tenantID && !tenant.IsAdmin() {
		forbidden(w, r)
		return models.Device{}, false
	}
	return device, true
}

func (h *ChartsHandler) deviceSeries(w http.ResponseWriter, r *http.Request) {
	tenantID, tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	device, ok := h.resolveDevice(w, r, tenantID, tenant)
	if !ok {
		return
	}

	rng := aggregate.ParseRange(r.URL.Query().Get("range"), h.now())
	readings, err := h.Readings.RangeBySerial(r.Context(), device.SerialNumber, rng.Start, rng.End)
	if err != nil {
		writeRepoError(w, r, err, "readings")
		return
	}
	points := aggregate.DeviceSeries(device.TypeName, readings, rng)

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"device_id":     device.DeviceID,
		"serial_number": device.SerialNumber,
		"type":          device.TypeName,
		"range":         rng.Label,
		"points":        points,
	})
}

func (h *ChartsHandler) deviceRealtime(w http.ResponseWriter, r *http.Request) {
	tenantID, tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	device, ok := h.resolveDevice(w, r, tenantID, tenant)
	if !ok {
		return
	}

	latest, err := h.Readings.LatestForSerial(r.Context(), device.SerialNumber)
	if err != nil {
		writeRepoError(w, r, err, "latest reading")
		return
	}

	fields := make(map[string]*float64, len(aggregate.FieldOrder))
	sources := aggregate.FieldsForType(device.TypeName)
	for _, field := range aggregate.FieldOrder {
		if tag, ok := sources[field]; ok {
			if v, present := latest.Values[tag]; present {
				value := v
				fields[field] = &value
				continue
			}
		}
		fields[field] = nil
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"device_id":     device.DeviceID,
		"serial_number": device.SerialNumber,
		"type":          device.TypeName,
		"recorded_at":   latest.RecordedAt,
		"received_at":   latest.ReceivedAt,
		"fields":        fields,
		"derived":       h.derivedValues(r, device.TypeID, latest.Values),
	})
}

// derivedValues evaluates the type's expression-backed tag mappings over
// the latest raw payload. Mapping lookup failures degrade to no derived
// block rather than failing the realtime read.
func (h *ChartsHandler) derivedValues(r *http.Request, typeID int64, values map[string]float64) map[string]float64 {
	if h.Mappings == nil {
		return nil
	}
	mappings, err := h.Mappings.ListByType(r.Context(), typeID)
	if err != nil {
		h.Logger.Warn(r.Context(), "mapping_lookup_failed", "derived values skipped",
			slog.Int64("device_type_id", typeID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	var derived map[string]float64
	for _, m := range mappings {
		if m.Expression == nil || *m.Expression == "" {
			continue
		}
		if derived == nil {
			derived = make(map[string]float64)
		}
		derived[m.Tag] = expr.EvalString(*m.Expression, values)
	}
	return derived
}

type hierarchyChart struct {
	NodeID      int64                      `json:"node_id"`
	Range       string                     `json:"range"`
	DeviceCount int                        `json:"device_count"`
	Points      []aggregate.HierarchyPoint `json:"points"`
}

func (h *ChartsHandler) hierarchySeries(w http.ResponseWriter, r *http.Request) {
	tenantID, tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	nodeID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid node id", nil)
		return
	}
	node, err := h.Hierarchy.GetNodeAny(r.Context(), nodeID)
	if err != nil {
		writeRepoError(w, r, err, "hierarchy node")
		return
	}
	if node.TenantID != tenantID && !tenant.IsAdmin() {
		forbidden(w, r)
		return
	}

	rng := aggregate.ParseRange(r.URL.Query().Get("range"), h.now())
	cacheKey := chartCacheKey(node.TenantID, node.NodeID, rng.Label)
	if h.Cache != nil {
		var cached hierarchyChart
		if hit, err := h.Cache.GetJSON(r.Context(), cacheKey, &cached); err == nil && hit {
			metricsx.IncChartCacheHit()
			httpx.WriteJSON(w, http.StatusOK, cached)
			return
		}
		metricsx.IncChartCacheMiss()
	}

	chart, err := h.buildHierarchyChart(r, node, rng)
	if err != nil {
		writeRepoError(w, r, err, "readings")
		return
	}
	if h.Cache != nil {
		if err := h.Cache.SetJSON(r.Context(), cacheKey, chart, h.CacheTTL); err != nil {
			h.Logger.Warn(r.Context(), "chart_cache_write_failed", "chart cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, chart)
}

func (h *ChartsHandler) buildHierarchyChart(r *http.Request, node models.HierarchyNode, rng aggregate.Range) (hierarchyChart, error) {
	ctx := r.Context()
	nodes, err := h.Hierarchy.ListNodes(ctx, node.TenantID)
	if err != nil {
		return hierarchyChart{}, err
	}
	subtree := hierarchy.ResolveSubtree(nodes, node.NodeID)
	serials, err := h.Devices.SerialsForNodes(ctx, node.TenantID, subtree)
	if err != nil {
		return hierarchyChart{}, err
	}

	chart := hierarchyChart{NodeID: node.NodeID, Range: rng.Label, DeviceCount: len(serials)}

	readings, err := h.Readings.RangeBySerials(ctx, serials, rng.Start, rng.End)
	if err != nil {
		return hierarchyChart{}, err
	}
	chart.Points = aggregate.HierarchySeries(readings, rng)
	if len(chart.Points) > 0 {
		return chart, nil
	}

	// No readings in the window: synthesize a flat series from the latest
	// snapshots so the chart never renders empty.
	latest, err := h.Readings.LatestForSerials(ctx, serials)
	if err != nil {
		return hierarchyChart{}, err
	}
	chart.Points = aggregate.SyntheticSeries(latest, h.now())
	metricsx.IncChartFallback("hierarchy")
	h.Logger.Info(ctx, "chart_fallback", "serving synthetic series",
		slog.Int64("node_id", node.NodeID),
		slog.String("range", rng.Label),
		slog.Int("devices", len(latest)),
	)
	return chart, nil
}

func (h *ChartsHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	rng := aggregate.ParseRange(r.URL.Query().Get("range"), h.now())
	serials, err := h.Devices.SerialsForTenant(r.Context(), tenantID)
	if err != nil {
		writeRepoError(w, r, err, "devices")
		return
	}

	readings, err := h.Readings.RangeBySerials(r.Context(), serials, rng.Start, rng.End)
	if err != nil {
		writeRepoError(w, r, err, "readings")
		return
	}
	points := aggregate.HierarchySeries(readings, rng)
	if len(points) == 0 {
		latest, err := h.Readings.LatestForSerials(r.Context(), serials)
		if err != nil {
			writeRepoError(w, r, err, "readings")
			return
		}
		points = aggregate.SyntheticSeries(latest, h.now())
		metricsx.IncChartFallback("dashboard")
		h.Logger.Info(r.Context(), "chart_fallback", "serving synthetic series",
			slog.String("range", rng.Label),
			slog.Int("devices", len(latest)),
		)
	}

	stats, err := h.Alarms.Statistics(r.Context(), tenantID, nil)
	if err != nil {
		writeRepoError(w, r, err, "alarms")
		return
	}
	deviceBreakdown, err := h.Devices.CountByType(r.Context(), tenantID)
	if err != nil {
		writeRepoError(w, r, err, "devices")
		return
	}
	hierarchyBreakdown, err := h.Hierarchy.CountByLevel(r.Context(), tenantID)
	if err != nil {
		writeRepoError(w, r, err, "hierarchy")
		return
	}
	var totalHierarchies int64
	for _, n := range hierarchyBreakdown {
		totalHierarchies += n
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"range":        rng.Label,
		"device_count": len(serials),
		"points":       points,
		"alarms":       stats,
		"statistics": map[string]any{
			"total_devices":       len(serials),
			"total_hierarchies":   totalHierarchies,
			"hierarchy_breakdown": hierarchyBreakdown,
			"device_breakdown":    deviceBreakdown,
		},
	})
}

func chartCacheKey(tenantID uuid.UUID, nodeID int64, rangeLabel string) string {
	return fmt.Sprintf("chart:%s:%d:%s", tenantID, nodeID, rangeLabel)
}
