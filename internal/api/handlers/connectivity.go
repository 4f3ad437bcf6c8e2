package handlers

import (
	"net/http"

	"github.com/brainbox/retailplus/internal/service"
)

type ConnectivityHandler struct {
	monitor *service.ConnectivityMonitor
}

func NewConnectivityHandler(monitor *service.ConnectivityMonitor) *ConnectivityHandler {
	return &ConnectivityHandler{monitor: monitor}
}

type setOnlineRequest struct {
	Online *bool `json:"online"`
}

func (h *ConnectivityHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.State())
}

func (h *ConnectivityHandler) Probe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.ProbeBackend(r.Context()))
}

// SetOnline records a network-state signal from the UI host, the way a
// browser reports online and offline events.
func (h *ConnectivityHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var req setOnlineRequest
	if err := decodeJSON(w, r, &req, false); err != nil || req.Online == nil {
		writeError(w, http.StatusBadRequest, "online is required")
		return
	}

	h.monitor.SetOnline(*req.Online)
	writeJSON(w, http.StatusOK, h.monitor.State())
}
