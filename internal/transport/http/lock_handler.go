package http

import (
	"net/http"
	"time"

	"github.com/axiom-software-co/coordination/internal/lock"
	"github.com/gorilla/mux"
)

// LockHandler adapts lock.Manager to REST.
type LockHandler struct {
	manager lock.Manager
}

// NewLockHandler builds a LockHandler over manager.
func NewLockHandler(manager lock.Manager) *LockHandler {
	return &LockHandler{manager: manager}
}

// RegisterRoutes registers the lock routes with router.
func (h *LockHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/locks/{key}", h.Acquire).Methods(http.MethodPost)
	router.HandleFunc("/locks/{key}", h.Release).Methods(http.MethodDelete)
	router.HandleFunc("/locks/{key}", h.Status).Methods(http.MethodGet)
}

type acquireLockRequest struct {
	Owner       string            `json:"owner"`
	TTLSeconds  float64           `json:"ttl_seconds"`
	WaitSeconds float64           `json:"wait_seconds"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Acquire handles POST /locks/{key}.
func (h *LockHandler) Acquire(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req acquireLockRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	result, err := h.manager.Acquire(r.Context(), lock.AcquireRequest{
		Key:         key,
		Owner:       req.Owner,
		TTL:         time.Duration(req.TTLSeconds * float64(time.Second)),
		WaitTimeout: time.Duration(req.WaitSeconds * float64(time.Second)),
		Metadata:    req.Metadata,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	writeJSONResponse(w, r, status, map[string]interface{}{
		"lock_id": result.LockID,
		"success": result.Success,
		"reason":  result.Reason,
	})
}

// Release handles DELETE /locks/{key}.
func (h *LockHandler) Release(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	lockID := r.URL.Query().Get("lock_id")
	owner := r.URL.Query().Get("owner")

	result, err := h.manager.Release(r.Context(), key, lockID, owner)
	if err != nil {
		handleError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	writeJSONResponse(w, r, status, map[string]interface{}{
		"success": result.Success,
		"reason":  result.Reason,
	})
}

// Status handles GET /locks/{key}.
func (h *LockHandler) Status(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	state, err := h.manager.Status(r.Context(), key)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if state == nil {
		writeJSONResponse(w, r, http.StatusOK, map[string]interface{}{"held": false})
		return
	}

	writeJSONResponse(w, r, http.StatusOK, map[string]interface{}{
		"held":  true,
		"state": state,
	})
}
