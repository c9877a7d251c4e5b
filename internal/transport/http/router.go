package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Handlers bundles the four core-component adapters that make up the
// coordination service's REST surface.
type Handlers struct {
	Lock  *LockHandler
	Saga  *SagaHandler
	Event *EventHandler
	Cache *CacheHandler
}

// NewRouter builds the full mux.Router for the coordination service: each
// component's routes plus a liveness probe. It never leaks adapter-specific
// types into the core packages it wraps.
func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	h.Lock.RegisterRoutes(router)
	h.Saga.RegisterRoutes(router)
	h.Event.RegisterRoutes(router)
	h.Cache.RegisterRoutes(router)

	return router
}

func healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, r, http.StatusOK, map[string]interface{}{"status": "ok"})
}
