package handlers

import (
	"net/http"

	"github.com/brainbox/retailplus/internal/buildconfig"
	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/service"
)

type HealthHandler struct {
	monitor  *service.ConnectivityMonitor
	resolver *service.TenantResolver
	deviceID string
}

func NewHealthHandler(monitor *service.ConnectivityMonitor, resolver *service.TenantResolver, deviceID string) *HealthHandler {
	return &HealthHandler{monitor: monitor, resolver: resolver, deviceID: deviceID}
}

type healthResponse struct {
	Status           string               `json:"status"`
	Version          string               `json:"version"`
	Commit           string               `json:"commit"`
	DeviceID         string               `json:"device_id,omitempty"`
	TenantState      domain.ResolverState `json:"tenant_state"`
	Online           bool                 `json:"online"`
	BackendReachable bool                 `json:"backend_reachable"`
}

// Get reports the agent as healthy whenever it serves requests; an
// unreachable backend is a normal offline state, not a failure.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	state := h.monitor.State()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		Version:          buildconfig.Version(),
		Commit:           buildconfig.Commit(),
		DeviceID:         h.deviceID,
		TenantState:      h.resolver.State(),
		Online:           state.IsOnline,
		BackendReachable: state.IsBackendReachable,
	})
}
