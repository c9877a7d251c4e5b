package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/axiom-software-co/coordination/internal/lock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockRouter() *mux.Router {
	manager := lock.NewManager(lock.NewMemoryStore(), slog.Default())
	router := mux.NewRouter()
	NewLockHandler(manager).RegisterRoutes(router)
	return router
}

func TestLockHandler_AcquireThenStatusThenRelease(t *testing.T) {
	router := newLockRouter()

	body, err := json.Marshal(acquireLockRequest{Owner: "worker-1", TTLSeconds: 30})
	require.NoError(t, err)

	acquireReq := httptest.NewRequest(http.MethodPost, "/locks/checkout-42", bytes.NewReader(body))
	acquireRec := httptest.NewRecorder()
	router.ServeHTTP(acquireRec, acquireReq)
	require.Equal(t, http.StatusOK, acquireRec.Code)

	var acquireResp map[string]interface{}
	require.NoError(t, json.Unmarshal(acquireRec.Body.Bytes(), &acquireResp))
	assert.Equal(t, true, acquireResp["success"])
	lockID, _ := acquireResp["lock_id"].(string)
	require.NotEmpty(t, lockID)

	statusReq := httptest.NewRequest(http.MethodGet, "/locks/checkout-42", nil)
	statusRec := httptest.NewRecorder()
	router.ServeHTTP(statusRec, statusReq)
	require.Equal(t, http.StatusOK, statusRec.Code)

	var statusResp map[string]interface{}
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &statusResp))
	assert.Equal(t, true, statusResp["held"])

	releaseReq := httptest.NewRequest(http.MethodDelete, "/locks/checkout-42?lock_id="+lockID+"&owner=worker-1", nil)
	releaseRec := httptest.NewRecorder()
	router.ServeHTTP(releaseRec, releaseReq)
	require.Equal(t, http.StatusOK, releaseRec.Code)

	var releaseResp map[string]interface{}
	require.NoError(t, json.Unmarshal(releaseRec.Body.Bytes(), &releaseResp))
	assert.Equal(t, true, releaseResp["success"])
}

func TestLockHandler_AcquireRejectsMissingOwner(t *testing.T) {
	router := newLockRouter()

	body, err := json.Marshal(acquireLockRequest{TTLSeconds: 30})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/locks/checkout-42", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLockHandler_StatusReportsNotHeldForUnknownKey(t *testing.T) {
	router := newLockRouter()

	req := httptest.NewRequest(http.MethodGet, "/locks/never-acquired", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["held"])
}
