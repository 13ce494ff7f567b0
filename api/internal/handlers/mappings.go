package handlers

import (
	"net/http"
	"strings"

	"multiphase-telemetry-dashboard/api/internal/expr"
	"multiphase-telemetry-dashboard/api/internal/models"
	"multiphase-telemetry-dashboard/api/internal/repos"
	"multiphase-telemetry-dashboard/shared/httpx"
)

type MappingsHandler struct {
	Mappings *repos.MappingsRepo
}

func (h *MappingsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/device-types/{id}/mappings", h.list)
	mux.HandleFunc("POST /api/v1/device-types/{id}/mappings", h.create)
	mux.HandleFunc("PUT /api/v1/mappings/{id}", h.update)
	mux.HandleFunc("DELETE /api/v1/mappings/{id}", h.delete)
}

func (h *MappingsHandler) list(w http.ResponseWriter, r *http.Request) {
	typeID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid type id", nil)
		return
	}
	mappings, err := h.Mappings.ListByType(r.Context(), typeID)
	if err != nil {
		writeRepoError(w, r, err, "mappings")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"mappings": mappings})
}

type mappingRequest struct {
	Tag         string  `json:"tag"`
	DisplayName string  `json:"display_name"`
	Unit        *string `json:"unit"`
	Expression  *string `json:"expression"`
	UIOrder     int     `json:"ui_order"`
}

// validateExpression rejects derived mappings whose expression does not
// parse or references tags the type does not report.
func (h *MappingsHandler) validateExpression(w http.ResponseWriter, r *http.Request, typeID int64, expression *string) bool {
	if expression == nil || strings.TrimSpace(*expression) == "" {
		return true
	}
	known, err := h.Mappings.KnownTags(r.Context(), typeID)
	if err != nil {
		writeRepoError(w, r, err, "mappings")
		return false
	}
	if err := expr.Validate(*expression, known); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid expression: "+err.Error(), nil)
		return false
	}
	return true
}

func (h *MappingsHandler) create(w http.ResponseWriter, r *http.Request) {
	typeID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid type id", nil)
		return
	}
	var req mappingRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	req.Tag = strings.TrimSpace(req.Tag)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Tag == "" || req.DisplayName == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "tag and display_name are required", nil)
		return
	}
	if !h.validateExpression(w, r, typeID, req.Expression) {
		return
	}
	mapping, err := h.Mappings.Create(r.Context(), models.TagMapping{
		TypeID:      typeID,
		Tag:         req.Tag,
		DisplayName: req.DisplayName,
		Unit:        req.Unit,
		Expression:  req.Expression,
		UIOrder:     req.UIOrder,
	})
	if err != nil {
		writeRepoError(w, r, err, "mapping")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, mapping)
}

func (h *MappingsHandler) update(w http.ResponseWriter, r *http.Request) {
	mappingID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid mapping id", nil)
		return
	}
	var req mappingRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "display_name is required", nil)
		return
	}
	if req.Expression != nil && strings.TrimSpace(*req.Expression) != "" {
		// The type id is looked up through the mapping row itself.
		typeID, lookupErr := h.typeIDForMapping(r, mappingID)
		if lookupErr != nil {
			writeRepoError(w, r, lookupErr, "mapping")
			return
		}
		if !h.validateExpression(w, r, typeID, req.Expression) {
			return
		}
	}
	affected, err := h.Mappings.Update(r.Context(), models.TagMapping{
		MappingID:   mappingID,
		DisplayName: req.DisplayName,
		Unit:        req.Unit,
		Expression:  req.Expression,
		UIOrder:     req.UIOrder,
	})
	if err != nil {
		writeRepoError(w, r, err, "mapping")
		return
	}
	if affected == 0 {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "mapping not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MappingsHandler) delete(w http.ResponseWriter, r *http.Request) {
	mappingID, err := pathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid mapping id", nil)
		return
	}
	affected, err := h.Mappings.Delete(r.Context(), mappingID)
	if err != nil {
		writeRepoError(w, r, err, "mapping")
		return
	}
	if affected == 0 {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "mapping not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MappingsHandler) typeIDForMapping(r *http.Request, mappingID int64) (int64, error) {
	return h.Mappings.TypeIDForMapping(r.Context(), mappingID)
}
