package handlers

import (
	"net/http"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/service"
)

type SessionHandler struct {
	resolver *service.TenantResolver
}

func NewSessionHandler(resolver *service.TenantResolver) *SessionHandler {
	return &SessionHandler{resolver: resolver}
}

type sessionResponse struct {
	State  domain.ResolverState `json:"state"`
	Owner  bool                 `json:"owner"`
	Tenant *domain.Tenant       `json:"tenant,omitempty"`
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session())
}

// Resolve settles the session tenant. Resolution runs once; later calls
// report the tenant already chosen, and a valid owner pair promotes the
// session to owner mode.
func (h *SessionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req service.ResolveRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.resolver.Resolve(r.Context(), req)
	writeJSON(w, http.StatusOK, h.session())
}

func (h *SessionHandler) session() sessionResponse {
	resp := sessionResponse{
		State: h.resolver.State(),
		Owner: h.resolver.IsOwner(),
	}
	if t, ok := h.resolver.ActiveTenant(); ok {
		resp.Tenant = &t
	}
	return resp
}
