package handlers

import (
	"errors"
	"net/http"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/service"
	"github.com/go-chi/chi/v5"
)

type SyncHandler struct {
	sync  *service.SyncService
	queue *service.QueueService
}

func NewSyncHandler(sync *service.SyncService, queue *service.QueueService) *SyncHandler {
	return &SyncHandler{sync: sync, queue: queue}
}

type pullResponse struct {
	Refreshed []domain.Table `json:"refreshed"`
}

// Now runs a manual sync cycle. Concurrent callers share one run.
func (h *SyncHandler) Now(w http.ResponseWriter, r *http.Request) {
	report, err := h.sync.SyncNow(r.Context(), service.TriggerManual)
	if err != nil {
		writeServiceError(w, err, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Push drains the queue without pulling. 503 while offline.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.Push(r.Context())
	if err != nil {
		writeServiceError(w, err, "push failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Pull refreshes the cache from the backend. 503 while offline.
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	refreshed, err := h.sync.Pull(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrOffline) || errors.Is(err, service.ErrNotResolved) || errors.Is(err, service.ErrScopeChanged) {
			writeServiceError(w, err, "pull failed")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pullResponse{Refreshed: refreshed})
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.Status())
}

func (h *SyncHandler) Pending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Pending())
}

func (h *SyncHandler) Failures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Failures())
}

func (h *SyncHandler) DismissFailure(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.DismissFailure(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err, "failed to dismiss failure")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
