package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/service"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service and domain sentinels to a status. Unknown
// errors are reported as fallback without leaking their text.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrTenantNotFound),
		errors.Is(err, service.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrOwnerOnly):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotResolved),
		errors.Is(err, service.ErrRecordExists),
		errors.Is(err, service.ErrTenantActive),
		errors.Is(err, service.ErrScopeChanged):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrTenantNameEmpty),
		errors.Is(err, service.ErrInvalidPlan),
		errors.Is(err, service.ErrWrongCollection),
		errors.Is(err, service.ErrTenantMismatch),
		errors.Is(err, service.ErrEmptySale),
		domain.KindOf(err) == domain.KindData:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// decodeJSON decodes a bounded request body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// readBody returns the raw request body, bounded.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}
