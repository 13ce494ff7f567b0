package handlers

import (
	"net/http"
	"strings"

	"multiphase-telemetry-dashboard/api/internal/hierarchy"
	"multiphase-telemetry-dashboard/api/internal/repos"
	"multiphase-telemetry-dashboard/shared/httpx"
)

type HierarchyHandler struct {
	Hierarchy *repos.HierarchyRepo
}

func (h *HierarchyHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/hierarchy", h.tree)
	mux.HandleFunc("POST /api/v1/hierarchy", h.create)
	mux.HandleFunc("PATCH /api/v1/hierarchy/{id}", h.rename)
	mux.HandleFunc("DELETE /api/v1/hierarchy/{id}", h.delete)
}

func (h *HierarchyHandler) tree(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	nodes, err := h.Hierarchy.ListNodes(r.Context(), tenantID)
	if err != nil {
		writeRepoError(w, r, err, "hierarchy")
		return
	}
	counts, err := h.Hierarchy.DeviceCountsByNode(r.Context(), tenantID)
	if err != nil {
		writeRepoError(w, r, err, "hierarchy")
		return
	}
	roots, stats := hierarchy.BuildForest(nodes, counts)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"roots": roots,
		"stats": stats,
	})
}

type createNodeRequest struct {
	Name            string `json:"name"`
	LevelName       string `json:"level_name"`
	LevelOrder      int    `json:"level_order"`
	ParentID        *int64 `json:"parent_id"`
	CanAttachDevice bool   `json:"can_attach_device"`
}

func (h *HierarchyHandler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req createNodeRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.LevelName == "" || req.LevelOrder < 1 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "name, level_name and level_order are required", nil)
		return
	}
	if req.ParentID != nil {
		parent, err := h.Hierarchy.GetNode(r.Context(), tenantID, *req.ParentID)
		if err != nil {
			writeRepoError(w, r, err, "parent node")
			return
		}
		if parent.LevelOrder >= req.LevelOrder {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "parent must sit at a higher level", nil)
			return
		}
	}
	node, err := h.Hierarchy.CreateNode(r.Context(), tenantID, req.Name, req.LevelName, req.LevelOrder, req.ParentID, req.CanAttachDevice)
	if err != nil {
		writeRepoError(w, r, err, "hierarchy node")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, node)
}

type renameNodeRequest struct {
	Name string `json:"name"`
}

func (h *HierarchyHandler) rename(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	nodeID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid node id", nil)
		return
	}
	var req renameNodeRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "name is required", nil)
		return
	}
	node, err := h.Hierarchy.RenameNode(r.Context(), tenantID, nodeID, req.Name)
	if err != nil {
		writeRepoError(w, r, err, "hierarchy node")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, node)
}

func (h *HierarchyHandler) delete(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requireTenant(w, r)
	if !ok {
		return
	}
	nodeID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid node id", nil)
		return
	}
	affected, err := h.Hierarchy.DeleteNode(r.Context(), tenantID, nodeID)
	if err != nil {
		writeRepoError(w, r, err, "hierarchy node")
		return
	}
	if affected == 0 {
		// Either the node does not exist or it still has children or devices.
		if _, err := h.Hierarchy.GetNode(r.Context(), tenantID, nodeID); err != nil {
			writeRepoError(w, r, err, "hierarchy node")
			return
		}
		httpx.WriteError(w, r, http.StatusConflict, "FAILED_PRECONDITION", "node still has children or devices", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
