package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"multiphase-telemetry-dashboard/api/internal/alarmflow"
	"multiphase-telemetry-dashboard/api/internal/hierarchy"
	"multiphase-telemetry-dashboard/api/internal/models"
	"multiphase-telemetry-dashboard/api/internal/repos"
	"multiphase-telemetry-dashboard/shared/authx"
	"multiphase-telemetry-dashboard/shared/events"
	"multiphase-telemetry-dashboard/shared/httpx"
	"multiphase-telemetry-dashboard/shared/logx"
	"multiphase-telemetry-dashboard/shared/metricsx"
	"multiphase-telemetry-dashboard/shared/mqx"
)

type AlarmsHandler struct {
	Alarms    *repos.AlarmsRepo
	Devices   *repos.DevicesRepo
	Users     *repos.UsersRepo
	Hierarchy *repos.HierarchyRepo
	Producer  *mqx.Producer
	Logger    logx.Logger
}

func (h *AlarmsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/alarms", h.list)
	mux.HandleFunc("POST /api/v1/alarms", h.create)
	mux.HandleFunc("GET /api/v1/alarms/statistics", h.statistics)
	mux.HandleFunc("GET /api/v1/alarms/{id}", h.get)
	mux.HandleFunc("PUT /api/v1/alarms/{id}/status", h.updateStatus)
	mux.HandleFunc("GET /api/v1/alarm-types", h.listTypes)
	mux.HandleFunc("GET /api/v1/alarm-statuses", h.listStatuses)
}

func (h *AlarmsHandler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := repos.AlarmFilter{
		Severity:     strings.TrimSpace(q.Get("severity")),
		SerialNumber: strings.TrimSpace(q.Get("serial_number")),
		SortBy:       strings.TrimSpace(q.Get("sort_by")),
		SortOrder:    strings.TrimSpace(q.Get("sort_order")),
		Limit:        queryInt(r, "limit", 50),
		Offset:       queryInt(r, "offset", 0),
	}
	nodeIDs, empty, ok := h.subtreeScope(w, r, tenantID)
	if !ok {
		return
	}
	if empty {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"alarms": []models.Alarm{},
			"total":  int64(0),
			"limit":  filter.Limit,
			"offset": filter.Offset,
		})
		return
	}
	filter.NodeIDs = nodeIDs
	for name, dest := range map[string]*int64{"status_id": &filter.StatusID, "type_id": &filter.TypeID} {
		if v := q.Get(name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid "+name, nil)
				return
			}
			*dest = n
		}
	}
	for name, dest := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(name); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid "+name+" timestamp", nil)
				return
			}
			*dest = ts
		}
	}

	alarms, total, err := h.Alarms.ListAlarms(r.Context(), tenantID, filter)
	if err != nil {
		writeRepoError(w, r, err, "alarms")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"alarms": alarms,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// subtreeScope resolves the optional hierarchy_id query parameter to the
// node ids of that subtree. empty reports a subtree with no nodes, which
// callers answer with an empty result set instead of an unfiltered one.
func (h *AlarmsHandler) subtreeScope(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID) (nodeIDs []int64, empty bool, ok bool) {
	v := r.URL.Query().Get("hierarchy_id")
	if v == "" {
		return nil, false, true
	}
	rootID, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid hierarchy_id", nil)
		return nil, false, false
	}
	nodes, err := h.Hierarchy.ListNodes(r.Context(), tenantID)
	if err != nil {
		writeRepoError(w, r, err, "hierarchy")
		return nil, false, false
	}
	nodeIDs = hierarchy.ResolveSubtree(nodes, rootID)
	if len(nodeIDs) == 0 {
		return nil, true, true
	}
	return nodeIDs, false, true
}

func (h *AlarmsHandler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	alarmID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid alarm id", nil)
		return
	}
	alarm, err := h.Alarms.GetAlarm(r.Context(), tenantID, alarmID)
	if err != nil {
		writeRepoError(w, r, err, "alarm")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, alarm)
}

type createAlarmRequest struct {
	SerialNumber string          `json:"serial_number"`
	TypeID       int64           `json:"type_id"`
	StatusID     int64           `json:"status_id"`
	Message      *string         `json:"message"`
	Metadata     json.RawMessage `json:"metadata"`
}

func (h *AlarmsHandler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	if !requireAdmin(w, r, tenant) {
		return
	}
	var req createAlarmRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	req.SerialNumber = strings.TrimSpace(req.SerialNumber)
	if req.SerialNumber == "" || req.TypeID == 0 || req.StatusID == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "serial_number, type_id and status_id are required", nil)
		return
	}

	device, err := h.Devices.GetDeviceBySerial(r.Context(), req.SerialNumber)
	if err != nil {
		writeRepoError(w, r, err, "device")
		return
	}
	if device.TenantID != tenantID {
		forbidden(w, r)
		return
	}
	if _, err := h.Alarms.GetType(r.Context(), req.TypeID); err != nil {
		writeRepoError(w, r, err, "alarm type")
		return
	}

	alarmID, err := h.Alarms.CreateAlarm(r.Context(), req.SerialNumber, req.TypeID, req.StatusID, req.Message, req.Metadata)
	if err != nil {
		writeRepoError(w, r, err, "alarm")
		return
	}
	alarm, err := h.Alarms.GetAlarm(r.Context(), device.TenantID, alarmID)
	if err != nil {
		writeRepoError(w, r, err, "alarm")
		return
	}
	metricsx.IncAlarmRaised(alarm.Severity)
	h.publishAlarmEvent(r, device.TenantID, events.EventAlarmCreated, alarm.AlarmID, alarm.SerialNumber, alarm.TypeName, alarm.Severity, alarm.StatusName, alarm.Message)
	httpx.WriteJSON(w, http.StatusCreated, alarm)
}

type updateAlarmStatusRequest struct {
	StatusID int64 `json:"status_id"`
}

func (h *AlarmsHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	alarmID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid alarm id", nil)
		return
	}
	var req updateAlarmStatusRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if req.StatusID == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "status_id is required", nil)
		return
	}
	status, err := h.Alarms.GetStatus(r.Context(), req.StatusID)
	if err != nil {
		writeRepoError(w, r, err, "alarm status")
		return
	}

	actor := h.actorID(r, tenantID)
	change := alarmflow.Apply(status.StatusID, status.Name, actor, time.Now().UTC())
	affected, err := h.Alarms.UpdateStatus(r.Context(), tenantID, alarmID, change)
	if err != nil {
		writeRepoError(w, r, err, "alarm")
		return
	}
	if affected == 0 {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "alarm not found", nil)
		return
	}
	alarm, err := h.Alarms.GetAlarm(r.Context(), tenantID, alarmID)
	if err != nil {
		writeRepoError(w, r, err, "alarm")
		return
	}
	h.publishAlarmEvent(r, tenantID, events.EventAlarmStatusChanged, alarm.AlarmID, alarm.SerialNumber, alarm.TypeName, alarm.Severity, alarm.StatusName, alarm.Message)
	httpx.WriteJSON(w, http.StatusOK, alarm)
}

func (h *AlarmsHandler) statistics(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	nodeIDs, empty, ok := h.subtreeScope(w, r, tenantID)
	if !ok {
		return
	}
	if empty {
		var stats models.AlarmStatistics
		stats.BySeverity = map[string]int64{}
		for _, sev := range alarmflow.Severities() {
			stats.BySeverity[sev] = 0
		}
		stats.ByStatus = map[string]int64{}
		httpx.WriteJSON(w, http.StatusOK, stats)
		return
	}
	stats, err := h.Alarms.Statistics(r.Context(), tenantID, nodeIDs)
	if err != nil {
		writeRepoError(w, r, err, "alarms")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *AlarmsHandler) listTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Alarms.ListAlarmTypes(r.Context())
	if err != nil {
		writeRepoError(w, r, err, "alarm types")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"types": types})
}

func (h *AlarmsHandler) listStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.Alarms.ListAlarmStatuses(r.Context())
	if err != nil {
		writeRepoError(w, r, err, "alarm statuses")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"statuses": statuses})
}

// actorID resolves the acting user for audit stamps on alarm transitions.
// Requests without a resolvable user fall back to the nil UUID.
func (h *AlarmsHandler) actorID(r *http.Request, tenantID uuid.UUID) uuid.UUID {
	auth, ok := authx.FromContext(r.Context())
	if !ok || h.Users == nil {
		return uuid.Nil
	}
	user, err := h.Users.UpsertUserFromOIDC(r.Context(), tenantID, auth.Subject, auth.Email, auth.Name, "")
	if err != nil {
		return uuid.Nil
	}
	return user.UserID
}

func (h *AlarmsHandler) publishAlarmEvent(r *http.Request, tenantID uuid.UUID, eventType string, alarmID int64, serial, typeName, severity, statusName string, message *string) {
	if h.Producer == nil {
		return
	}
	msg := ""
	if message != nil {
		msg = *message
	}
	payload, err := json.Marshal(events.AlarmEventPayload{
		AlarmID:      alarmID,
		SerialNumber: serial,
		TypeName:     typeName,
		Severity:     severity,
		StatusName:   statusName,
		Message:      msg,
	})
	if err != nil {
		return
	}
	env := events.Envelope{
		EventID:       uuid.New(),
		TenantID:      tenantID,
		OccurredAt:    time.Now().UTC(),
		AggregateType: "alarm",
		AggregateID:   strconv.FormatInt(alarmID, 10),
		EventType:     eventType,
		Payload:       payload,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := h.Producer.Publish(r.Context(), events.TopicAlarmEvents, []byte(serial), raw, nil); err != nil {
		h.Logger.Warn(r.Context(), "alarm_event_publish_failed", "alarm event publish failed",
			slog.Int64("alarm_id", alarmID),
			slog.String("error", err.Error()),
		)
	}
}
