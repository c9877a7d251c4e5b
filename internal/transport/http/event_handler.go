package http

import (
	"net/http"
	"strconv"

	"github.com/axiom-software-co/coordination/internal/event"
	"github.com/gorilla/mux"
)

// EventHandler adapts event.Store to REST.
type EventHandler struct {
	store event.Store
}

// NewEventHandler builds an EventHandler over store.
func NewEventHandler(store event.Store) *EventHandler {
	return &EventHandler{store: store}
}

// RegisterRoutes registers the event routes with router.
func (h *EventHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/events/{stream}", h.Append).Methods(http.MethodPost)
	router.HandleFunc("/events/{stream}", h.GetEvents).Methods(http.MethodGet)
}

type appendEventRequest struct {
	EventType string            `json:"event_type"`
	Data      []byte            `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Append handles POST /events/{stream}.
func (h *EventHandler) Append(w http.ResponseWriter, r *http.Request) {
	streamID := mux.Vars(r)["stream"]

	var req appendEventRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	evt, err := h.store.Append(r.Context(), event.AppendRequest{
		StreamID:  streamID,
		EventType: req.EventType,
		Data:      req.Data,
		Metadata:  req.Metadata,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSONResponse(w, r, http.StatusCreated, map[string]interface{}{
		"event": evt,
	})
}

// GetEvents handles GET /events/{stream}.
func (h *EventHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	streamID := mux.Vars(r)["stream"]

	fromVersion := int64(0)
	if v := r.URL.Query().Get("from_version"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			fromVersion = parsed
		}
	}

	limit := int64(100)
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.ParseInt(l, 10, 64)
		if err == nil && parsed > 0 {
			limit = parsed
		}
	}

	events, err := h.store.GetEvents(r.Context(), streamID, fromVersion, limit)
	if err != nil {
		handleError(w, r, err)
		return
	}

	version, err := h.store.StreamVersion(r.Context(), streamID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSONResponse(w, r, http.StatusOK, map[string]interface{}{
		"events":         events,
		"count":          len(events),
		"stream_version": version,
	})
}
