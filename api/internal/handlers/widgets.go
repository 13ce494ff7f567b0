package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"multiphase-telemetry-dashboard/api/internal/aggregate"
	"multiphase-telemetry-dashboard/api/internal/expr"
	"multiphase-telemetry-dashboard/api/internal/hierarchy"
	"multiphase-telemetry-dashboard/api/internal/models"
	"multiphase-telemetry-dashboard/api/internal/repos"
	"multiphase-telemetry-dashboard/shared/dbx"
	"multiphase-telemetry-dashboard/shared/httpx"
)

type WidgetsHandler struct {
	Widgets   *repos.WidgetsRepo
	Devices   *repos.DevicesRepo
	Readings  *repos.ReadingsRepo
	Mappings  *repos.MappingsRepo
	Hierarchy *repos.HierarchyRepo
	Now       func() time.Time
}

func (h *WidgetsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/dashboards/active", h.activeDashboard)
	mux.HandleFunc("GET /api/v1/widgets", h.list)
	mux.HandleFunc("POST /api/v1/widgets", h.create)
	mux.HandleFunc("PUT /api/v1/widgets/layout", h.updateLayouts)
	mux.HandleFunc("GET /api/v1/widgets/{id}/data", h.data)
	mux.HandleFunc("GET /api/v1/widgets/{id}/latest", h.latest)
	mux.HandleFunc("DELETE /api/v1/widgets/{id}", h.delete)
}

func (h *WidgetsHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *WidgetsHandler) activeDashboard(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	dashboard, err := h.Widgets.ActiveDashboard(r.Context(), tenantID)
	if err != nil {
		writeRepoError(w, r, err, "dashboard")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dashboard)
}

func (h *WidgetsHandler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	dashboard, err := h.Widgets.ActiveDashboard(r.Context(), tenantID)
	if err != nil {
		writeRepoError(w, r, err, "dashboard")
		return
	}
	widgets, err := h.Widgets.ListWidgets(r.Context(), dashboard.DashboardID)
	if err != nil {
		writeRepoError(w, r, err, "widgets")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"dashboard": dashboard,
		"widgets":   widgets,
	})
}

type createWidgetRequest struct {
	WidgetType string                  `json:"widget_type"`
	Title      string                  `json:"title"`
	DataSource models.DataSourceConfig `json:"data_source"`
	Layout     models.DashboardLayout  `json:"layout"`
}

func (h *WidgetsHandler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	if !requireAdmin(w, r, tenant) {
		return
	}
	var req createWidgetRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	req.WidgetType = strings.TrimSpace(req.WidgetType)
	req.Title = strings.TrimSpace(req.Title)
	if req.WidgetType == "" || req.Title == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "widget_type and title are required", nil)
		return
	}
	if req.DataSource.DeviceTypeID == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "data_source.device_type_id is required", nil)
		return
	}
	// Every series must reference a mapping of the widget's device type.
	for _, s := range req.DataSource.Series {
		if _, err := h.Mappings.GetForType(r.Context(), s.MappingID, req.DataSource.DeviceTypeID); err != nil {
			writeRepoError(w, r, err, "series mapping")
			return
		}
	}

	dashboard, err := h.Widgets.ActiveDashboard(r.Context(), tenantID)
	if err != nil {
		writeRepoError(w, r, err, "dashboard")
		return
	}

	var created repos.WidgetWithLayout
	err = dbx.WithTx(r.Context(), h.Widgets.Pool(), func(tx pgx.Tx) error {
		var txErr error
		created, txErr = h.Widgets.CreateWidget(r.Context(), tx, dashboard.DashboardID,
			models.WidgetDefinition{WidgetType: req.WidgetType, Title: req.Title, DataSource: req.DataSource},
			req.Layout)
		return txErr
	})
	if err != nil {
		writeRepoError(w, r, err, "widget")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

type updateLayoutsRequest struct {
	Layouts []models.DashboardLayout `json:"layouts"`
}

func (h *WidgetsHandler) updateLayouts(w http.ResponseWriter, r *http.Request) {
	tenantID, tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	if !requireAdmin(w, r, tenant) {
		return
	}
	var req updateLayoutsRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if len(req.Layouts) == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "layouts are required", nil)
		return
	}
	dashboard, err := h.Widgets.ActiveDashboard(r.Context(), tenantID)
	if err != nil {
		writeRepoError(w, r, err, "dashboard")
		return
	}
	err = dbx.WithTx(r.Context(), h.Widgets.Pool(), func(tx pgx.Tx) error {
		return h.Widgets.UpdateLayouts(r.Context(), tx, dashboard.DashboardID, req.Layouts)
	})
	if err != nil {
		writeRepoError(w, r, err, "layouts")
		return
	}
	widgets, err := h.Widgets.ListWidgets(r.Context(), dashboard.DashboardID)
	if err != nil {
		writeRepoError(w, r, err, "widgets")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"widgets": widgets})
}

// seriesPoint is one evaluated sample of a widget series.
type seriesPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	SerialNumber string    `json:"serial_number"`
	Value        float64   `json:"value"`
}

// widgetSeries is the wire shape of one series in the data and latest
// responses.
type widgetSeries struct {
	Property        string        `json:"property"`
	Unit            string        `json:"unit"`
	Data            []seriesPoint `json:"data,omitempty"`
	Latest          []latestPoint `json:"latest,omitempty"`
	AggregatedValue *float64      `json:"aggregated_value,omitempty"`
	Count           int           `json:"count"`
}

type latestPoint struct {
	SerialNumber string  `json:"serial_number"`
	Value        float64 `json:"value"`
}

// seriesRows evaluates a mapping over raw readings. Expression-backed
// mappings evaluate on every row with missing tags reading zero; plain tag
// mappings skip rows that do not carry the tag.
func seriesRows(m models.TagMapping, readings []aggregate.Reading) []seriesPoint {
	var parsed expr.Expr
	if m.Expression != nil && strings.TrimSpace(*m.Expression) != "" {
		parsed, _ = expr.Parse(*m.Expression)
	}

	points := make([]seriesPoint, 0, len(readings))
	for _, rd := range readings {
		var value float64
		if parsed != nil {
			value = parsed.Eval(rd.Values)
		} else {
			v, present := rd.Values[m.Tag]
			if !present {
				continue
			}
			value = v
		}
		points = append(points, seriesPoint{
			Timestamp:    rd.RecordedAt,
			SerialNumber: rd.SerialNumber,
			Value:        value,
		})
	}
	return points
}

// latestRows evaluates a mapping over per-device latest snapshots and
// computes the mean across devices. The mean is nil when no device
// contributed a value.
func latestRows(m models.TagMapping, latest []aggregate.Latest) ([]latestPoint, *float64) {
	var parsed expr.Expr
	if m.Expression != nil && strings.TrimSpace(*m.Expression) != "" {
		parsed, _ = expr.Parse(*m.Expression)
	}

	points := make([]latestPoint, 0, len(latest))
	sum := 0.0
	for _, l := range latest {
		var value float64
		if parsed != nil {
			value = parsed.Eval(l.Values)
		} else {
			v, present := l.Values[m.Tag]
			if !present {
				continue
			}
			value = v
		}
		points = append(points, latestPoint{SerialNumber: l.SerialNumber, Value: value})
		sum += value
	}
	if len(points) == 0 {
		return points, nil
	}
	mean := sum / float64(len(points))
	return points, &mean
}

// scopedSerials narrows a widget's device-type population by the optional
// hierarchy_id / device_id query parameters. An unknown scope yields an
// empty population, not an error.
func (h *WidgetsHandler) scopedSerials(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID, typeID int64) ([]string, bool) {
	q := r.URL.Query()
	if v := q.Get("device_id"); v != "" {
		deviceID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid device_id", nil)
			return nil, false
		}
		device, err := h.Devices.GetDevice(r.Context(), tenantID, deviceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, true
			}
			writeRepoError(w, r, err, "device")
			return nil, false
		}
		if device.TypeID != typeID {
			return nil, true
		}
		return []string{device.SerialNumber}, true
	}

	var nodeIDs []int64
	if v := q.Get("hierarchy_id"); v != "" {
		rootID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid hierarchy_id", nil)
			return nil, false
		}
		nodes, err := h.Hierarchy.ListNodes(r.Context(), tenantID)
		if err != nil {
			writeRepoError(w, r, err, "hierarchy")
			return nil, false
		}
		nodeIDs = hierarchy.ResolveSubtree(nodes, rootID)
		if len(nodeIDs) == 0 {
			return nil, true
		}
	}

	serials, err := h.Devices.SerialsForType(r.Context(), tenantID, typeID, nodeIDs)
	if err != nil {
		writeRepoError(w, r, err, "devices")
		return nil, false
	}
	return serials, true
}

// tenantWidget loads the widget through the tenant's active dashboard so a
// widget on another tenant's dashboard reads as not found.
func (h *WidgetsHandler) tenantWidget(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID) (repos.WidgetWithLayout, bool) {
	widgetID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid widget id", nil)
		return repos.WidgetWithLayout{}, false
	}
	dashboard, err := h.Widgets.ActiveDashboard(r.Context(), tenantID)
	if err != nil {
		writeRepoError(w, r, err, "dashboard")
		return repos.WidgetWithLayout{}, false
	}
	widget, err := h.Widgets.GetWidget(r.Context(), dashboard.DashboardID, widgetID)
	if err != nil {
		writeRepoError(w, r, err, "widget")
		return repos.WidgetWithLayout{}, false
	}
	return widget, true
}

func (h *WidgetsHandler) data(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	widget, ok := h.tenantWidget(w, r, tenantID)
	if !ok {
		return
	}
	cfg := widget.DataSource

	rng := aggregate.ParseRange(r.URL.Query().Get("range"), h.now())
	limit := queryInt(r, "limit", 200)

	series := map[string]widgetSeries{}
	if len(cfg.Series) > 0 {
		serials, ok := h.scopedSerials(w, r, tenantID, cfg.DeviceTypeID)
		if !ok {
			return
		}
		readings, err := h.Readings.SeriesBySerials(r.Context(), serials, rng.Start, rng.End, limit)
		if err != nil {
			writeRepoError(w, r, err, "readings")
			return
		}
		for _, s := range cfg.Series {
			mapping, err := h.Mappings.GetForType(r.Context(), s.MappingID, cfg.DeviceTypeID)
			if err != nil {
				// Mappings deleted since the widget was saved drop out of
				// the response instead of failing the whole widget.
				if errors.Is(err, pgx.ErrNoRows) {
					continue
				}
				writeRepoError(w, r, err, "series mapping")
				return
			}
			points := seriesRows(mapping, readings)
			series[mapping.DisplayName] = widgetSeries{
				Property: mapping.DisplayName,
				Unit:     unitOrEmpty(mapping.Unit),
				Data:     points,
				Count:    len(points),
			}
		}
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"widget": widget,
		"range":  rng.Label,
		"series": series,
	})
}

func (h *WidgetsHandler) latest(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	widget, ok := h.tenantWidget(w, r, tenantID)
	if !ok {
		return
	}
	cfg := widget.DataSource

	series := map[string]widgetSeries{}
	if len(cfg.Series) > 0 {
		serials, ok := h.scopedSerials(w, r, tenantID, cfg.DeviceTypeID)
		if !ok {
			return
		}
		latest, err := h.Readings.LatestForSerials(r.Context(), serials)
		if err != nil {
			writeRepoError(w, r, err, "latest readings")
			return
		}
		for _, s := range cfg.Series {
			mapping, err := h.Mappings.GetForType(r.Context(), s.MappingID, cfg.DeviceTypeID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					continue
				}
				writeRepoError(w, r, err, "series mapping")
				return
			}
			points, mean := latestRows(mapping, latest)
			series[mapping.DisplayName] = widgetSeries{
				Property:        mapping.DisplayName,
				Unit:            unitOrEmpty(mapping.Unit),
				Latest:          points,
				AggregatedValue: mean,
				Count:           len(points),
			}
		}
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"widget": widget,
		"series": series,
	})
}

func (h *WidgetsHandler) delete(w http.ResponseWriter, r *http.Request) {
	tenantID, tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	if !requireAdmin(w, r, tenant) {
		return
	}
	widgetID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid widget id", nil)
		return
	}
	dashboard, err := h.Widgets.ActiveDashboard(r.Context(), tenantID)
	if err != nil {
		writeRepoError(w, r, err, "dashboard")
		return
	}
	var affected int64
	err = dbx.WithTx(r.Context(), h.Widgets.Pool(), func(tx pgx.Tx) error {
		var txErr error
		affected, txErr = h.Widgets.DeleteWidget(r.Context(), tx, dashboard.DashboardID, widgetID)
		return txErr
	})
	if err != nil {
		writeRepoError(w, r, err, "widget")
		return
	}
	if affected == 0 {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "widget not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func unitOrEmpty(u *string) string {
	if u == nil {
		return ""
	}
	return *u
}
