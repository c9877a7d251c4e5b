package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/axiom-software-co/coordination/internal/event"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEventRouter() *mux.Router {
	router := mux.NewRouter()
	NewEventHandler(event.NewMemoryStore()).RegisterRoutes(router)
	return router
}

func TestEventHandler_AppendThenGetEventsReturnsGapFreeVersions(t *testing.T) {
	router := newEventRouter()

	for i := 0; i < 3; i++ {
		body, err := json.Marshal(appendEventRequest{EventType: "order.created", Data: []byte(`{"n":1}`)})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/events/order-7", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/events/order-7", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var resp struct {
		Events        []event.Event `json:"events"`
		Count         int           `json:"count"`
		StreamVersion int64         `json:"stream_version"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 3)
	assert.EqualValues(t, 3, resp.StreamVersion)
	assert.EqualValues(t, 1, resp.Events[0].Version)
	assert.EqualValues(t, 2, resp.Events[1].Version)
	assert.EqualValues(t, 3, resp.Events[2].Version)
}

func TestEventHandler_AppendRejectsEmptyEventType(t *testing.T) {
	router := newEventRouter()

	body, err := json.Marshal(appendEventRequest{Data: []byte(`{}`)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/events/order-7", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
