package handlers

import (
	"net/http"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type TenantHandler struct {
	resolver *service.TenantResolver
}

func NewTenantHandler(resolver *service.TenantResolver) *TenantHandler {
	return &TenantHandler{resolver: resolver}
}

type purgeTenantResponse struct {
	ID         string `json:"id"`
	PurgedKeys int64  `json:"purged_keys"`
}

func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.resolver.ListTenants(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to list tenants")
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.TenantInput
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenant, err := h.resolver.CreateTenant(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "failed to create tenant")
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

func (h *TenantHandler) Switch(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}

	tenant, err := h.resolver.SwitchTenant(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to switch tenant")
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}

	var patch domain.TenantPatch
	if err := decodeJSON(w, r, &patch, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenant, err := h.resolver.UpdateTenant(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, err, "failed to update tenant")
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (h *TenantHandler) Purge(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}

	n, err := h.resolver.PurgeTenant(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to purge tenant")
		return
	}
	writeJSON(w, http.StatusOK, purgeTenantResponse{ID: id, PurgedKeys: n})
}

func tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return "", false
	}
	return id.String(), true
}
