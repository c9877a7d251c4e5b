package http

import (
	"net/http"
	"time"

	"github.com/axiom-software-co/coordination/internal/saga"
	"github.com/gorilla/mux"
)

// SagaHandler adapts saga.Orchestrator to REST.
type SagaHandler struct {
	orchestrator saga.Orchestrator
}

// NewSagaHandler builds a SagaHandler over orchestrator.
func NewSagaHandler(orchestrator saga.Orchestrator) *SagaHandler {
	return &SagaHandler{orchestrator: orchestrator}
}

// RegisterRoutes registers the saga routes with router.
func (h *SagaHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sagas", h.Start).Methods(http.MethodPost)
	router.HandleFunc("/sagas/{id}", h.Status).Methods(http.MethodGet)
	router.HandleFunc("/sagas/{id}/compensate", h.Compensate).Methods(http.MethodPost)
	router.HandleFunc("/sagas/{id}/resume", h.Resume).Methods(http.MethodPost)
}

type startSagaStep struct {
	Name           string            `json:"name"`
	Service        string            `json:"service"`
	Action         string            `json:"action"`
	Compensation   string            `json:"compensation"`
	TimeoutSeconds float64           `json:"timeout_seconds"`
	MaxRetries     int               `json:"max_retries"`
	Backoff        string            `json:"backoff"`
	InitialDelayMs int               `json:"initial_delay_ms"`
	Payload        []byte            `json:"payload,omitempty"`
}

type startSagaRequest struct {
	Name     string            `json:"name"`
	Steps    []startSagaStep   `json:"steps"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Start handles POST /sagas.
func (h *SagaHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSagaRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	steps := make([]saga.Step, len(req.Steps))
	for i, s := range req.Steps {
		steps[i] = saga.Step{
			Name:         s.Name,
			Service:      s.Service,
			Action:       s.Action,
			Compensation: s.Compensation,
			Timeout:      time.Duration(s.TimeoutSeconds * float64(time.Second)),
			Payload:      s.Payload,
			Retry: saga.RetryPolicy{
				MaxRetries:   s.MaxRetries,
				Backoff:      saga.BackoffStrategy(s.Backoff),
				InitialDelay: time.Duration(s.InitialDelayMs) * time.Millisecond,
			},
		}
	}

	sagaID, err := h.orchestrator.Start(r.Context(), saga.StartRequest{
		Name:     req.Name,
		Steps:    steps,
		Metadata: req.Metadata,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSONResponse(w, r, http.StatusAccepted, map[string]interface{}{
		"saga_id": sagaID,
	})
}

// Status handles GET /sagas/{id}.
func (h *SagaHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	instance, err := h.orchestrator.Status(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSONResponse(w, r, http.StatusOK, map[string]interface{}{
		"saga": instance,
	})
}

// Compensate handles POST /sagas/{id}/compensate.
func (h *SagaHandler) Compensate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.orchestrator.Compensate(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}

	writeJSONResponse(w, r, http.StatusAccepted, map[string]interface{}{
		"saga_id": id,
	})
}

// Resume handles POST /sagas/{id}/resume.
func (h *SagaHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.orchestrator.Resume(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}

	writeJSONResponse(w, r, http.StatusAccepted, map[string]interface{}{
		"saga_id": id,
	})
}
