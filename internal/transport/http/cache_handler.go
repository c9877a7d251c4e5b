package http

import (
	"net/http"
	"time"

	"github.com/axiom-software-co/coordination/internal/cache"
	"github.com/gorilla/mux"
)

// CacheHandler adapts cache.Manager to REST.
type CacheHandler struct {
	manager cache.Manager
}

// NewCacheHandler builds a CacheHandler over manager.
func NewCacheHandler(manager cache.Manager) *CacheHandler {
	return &CacheHandler{manager: manager}
}

// RegisterRoutes registers the cache routes with router.
func (h *CacheHandler) RegisterRoutes(router *mux.Router) {
	// /cache/stats is registered before /cache/{key} so the literal path is
	// matched first instead of being read as a key named "stats".
	router.HandleFunc("/cache/stats", h.Stats).Methods(http.MethodGet)
	router.HandleFunc("/cache/{key}", h.Set).Methods(http.MethodPost)
	router.HandleFunc("/cache/{key}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/cache/{key}", h.Delete).Methods(http.MethodDelete)
	router.HandleFunc("/cache/tags/{tag}/invalidate", h.InvalidateByTag).Methods(http.MethodPost)
}

type setCacheRequest struct {
	Value      []byte   `json:"value"`
	TTLSeconds float64  `json:"ttl_seconds"`
	Tags       []string `json:"tags,omitempty"`
}

// Set handles POST /cache/{key}.
func (h *CacheHandler) Set(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req setCacheRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	ttl := time.Duration(req.TTLSeconds * float64(time.Second))
	if err := h.manager.Set(r.Context(), key, req.Value, ttl, req.Tags); err != nil {
		handleError(w, r, err)
		return
	}

	writeJSONResponse(w, r, http.StatusOK, map[string]interface{}{"key": key})
}

// Get handles GET /cache/{key}.
func (h *CacheHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	value, found, err := h.manager.Get(r.Context(), key)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !found {
		writeJSONResponse(w, r, http.StatusNotFound, map[string]interface{}{"found": false})
		return
	}

	writeJSONResponse(w, r, http.StatusOK, map[string]interface{}{
		"found": true,
		"value": value,
	})
}

// Delete handles DELETE /cache/{key}.
func (h *CacheHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if err := h.manager.Delete(r.Context(), key); err != nil {
		handleError(w, r, err)
		return
	}

	writeJSONResponse(w, r, http.StatusNoContent, nil)
}

// InvalidateByTag handles POST /cache/tags/{tag}/invalidate.
func (h *CacheHandler) InvalidateByTag(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]

	count, err := h.manager.InvalidateByTag(r.Context(), tag)
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSONResponse(w, r, http.StatusOK, map[string]interface{}{
		"invalidated": count,
	})
}

// Stats handles GET /cache/stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSONResponse(w, r, http.StatusOK, map[string]interface{}{
		"stats": stats,
	})
}
