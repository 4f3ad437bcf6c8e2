package handlers

import (
	"net/http"
	"slices"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/service"
	"github.com/go-chi/chi/v5"
)

// RecordHandler exposes the tenant-scoped collections. Every write goes to
// the local cache and the pending queue; none waits for the backend.
type RecordHandler struct {
	records *service.RecordService
}

func NewRecordHandler(records *service.RecordService) *RecordHandler {
	return &RecordHandler{records: records}
}

func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	table, ok := collection(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.records.List(r.Context(), table))
}

func (h *RecordHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	table, ok := collection(w, r)
	if !ok {
		return
	}

	p, err := h.records.Get(r.Context(), table, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "failed to get record")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	table, ok := collection(w, r)
	if !ok {
		return
	}
	p, ok := decodeRecord(w, r, table)
	if !ok {
		return
	}

	created, err := h.records.Create(r.Context(), p)
	if err != nil {
		writeServiceError(w, err, "failed to create record")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	table, ok := collection(w, r)
	if !ok {
		return
	}
	p, ok := decodeRecord(w, r, table)
	if !ok {
		return
	}

	updated, err := h.records.Update(r.Context(), p.WithID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err, "failed to update record")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	table, ok := collection(w, r)
	if !ok {
		return
	}

	if err := h.records.Delete(r.Context(), table, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err, "failed to delete record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func collection(w http.ResponseWriter, r *http.Request) (domain.Table, bool) {
	table := domain.Table(chi.URLParam(r, "table"))
	if !slices.Contains(domain.TenantCollections, table) {
		writeError(w, http.StatusNotFound, "unknown collection")
		return "", false
	}
	return table, true
}

func decodeRecord(w http.ResponseWriter, r *http.Request, table domain.Table) (domain.Payload, bool) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	p, err := domain.DecodePayload(table, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return p, true
}
