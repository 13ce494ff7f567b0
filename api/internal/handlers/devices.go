package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"multiphase-telemetry-dashboard/api/internal/repos"
	"multiphase-telemetry-dashboard/shared/httpx"
)

type DevicesHandler struct {
	Devices *repos.DevicesRepo
}

func (h *DevicesHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/devices", h.list)
	mux.HandleFunc("POST /api/v1/devices", h.create)
	mux.HandleFunc("GET /api/v1/devices/{id}", h.get)
	mux.HandleFunc("PUT /api/v1/devices/{id}/node", h.attach)
	mux.HandleFunc("DELETE /api/v1/devices/{id}", h.delete)
	mux.HandleFunc("GET /api/v1/device-types", h.listTypes)
}

func (h *DevicesHandler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := repos.DeviceFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if v := q.Get("type_id"); v != "" {
		typeID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid type_id", nil)
			return
		}
		filter.TypeID = typeID
	}
	if v := q.Get("node_id"); v != "" {
		nodeID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid node_id", nil)
			return
		}
		filter.NodeIDs = []int64{nodeID}
	}

	devices, total, err := h.Devices.ListDevices(r.Context(), tenantID, filter)
	if err != nil {
		writeRepoError(w, r, err, "devices")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func (h *DevicesHandler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	deviceID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid device id", nil)
		return
	}
	device, err := h.Devices.GetDeviceAny(r.Context(), deviceID)
	if err != nil {
		writeRepoError(w, r, err, "device")
		return
	}
	if device.TenantID != tenantID && !tenant.IsAdmin() {
		forbidden(w, r)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, device)
}

type createDeviceRequest struct {
	TypeID       int64           `json:"type_id"`
	SerialNumber string          `json:"serial_number"`
	NodeID       *int64          `json:"node_id"`
	Metadata     json.RawMessage `json:"metadata"`
}

func (h *DevicesHandler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req createDeviceRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	req.SerialNumber = strings.TrimSpace(req.SerialNumber)
	if req.SerialNumber == "" || req.TypeID == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "serial_number and type_id are required", nil)
		return
	}
	device, err := h.Devices.CreateDevice(r.Context(), tenantID, req.TypeID, req.SerialNumber, req.NodeID, req.Metadata)
	if err != nil {
		writeRepoError(w, r, err, "device")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, device)
}

type attachDeviceRequest struct {
	NodeID *int64 `json:"node_id"`
}

func (h *DevicesHandler) attach(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	deviceID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid device id", nil)
		return
	}
	var req attachDeviceRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	affected, err := h.Devices.AttachToNode(r.Context(), tenantID, deviceID, req.NodeID)
	if err != nil {
		writeRepoError(w, r, err, "device")
		return
	}
	if affected == 0 {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "device or attachable node not found", nil)
		return
	}
	device, err := h.Devices.GetDevice(r.Context(), tenantID, deviceID)
	if err != nil {
		writeRepoError(w, r, err, "device")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, device)
}

func (h *DevicesHandler) delete(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	deviceID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid device id", nil)
		return
	}
	affected, err := h.Devices.DeleteDevice(r.Context(), tenantID, deviceID)
	if err != nil {
		writeRepoError(w, r, err, "device")
		return
	}
	if affected == 0 {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "device not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DevicesHandler) listTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Devices.ListDeviceTypes(r.Context())
	if err != nil {
		writeRepoError(w, r, err, "device types")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"types": types})
}
