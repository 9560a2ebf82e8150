package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/notify"
	"github.com/carbon-tracker/internal/service"
	"github.com/carbon-tracker/internal/types"
)

type mockOrchestrator struct {
	createErr    error
	decryptValue *uint64
	decryptErr   error
	availErr     error
	lastInput    *service.CreateRecordInput
	lastKey      string
}

func (m *mockOrchestrator) CreateRecord(ctx context.Context, input *service.CreateRecordInput) error {
	m.lastInput = input
	return m.createErr
}

func (m *mockOrchestrator) DecryptRecord(ctx context.Context, businessKey string) (*uint64, error) {
	m.lastKey = businessKey
	return m.decryptValue, m.decryptErr
}

func (m *mockOrchestrator) CheckAvailability(ctx context.Context) error {
	return m.availErr
}

type mockRegistry struct {
	records    []*models.Record
	stats      models.Stats
	refreshErr error
}

func (m *mockRegistry) Records() []*models.Record { return m.records }

func (m *mockRegistry) Get(businessKey string) (*models.Record, bool) {
	for _, r := range m.records {
		if r.BusinessKey == businessKey {
			return r, true
		}
	}
	return nil, false
}

func (m *mockRegistry) Stats() models.Stats { return m.stats }

func (m *mockRegistry) Refresh(ctx context.Context) ([]*models.Record, error) {
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return m.records, nil
}

type mockStatus struct {
	current notify.Status
}

func (m *mockStatus) Current() notify.Status { return m.current }

type mockHistory struct {
	entries []models.HistoryEntry
}

func (m *mockHistory) Entries() []models.HistoryEntry { return m.entries }

func createTestServer(orch *mockOrchestrator, reg *mockRegistry) *Server {
	return NewServer(
		&ServerConfig{Host: "127.0.0.1", Port: "0"},
		orch,
		reg,
		&mockStatus{current: notify.Status{Visible: true, Kind: types.StatusSuccess, Message: "ok"}},
		&mockHistory{entries: []models.HistoryEntry{{Timestamp: time.Now(), Text: "Loaded 1 carbon records"}}},
	)
}

func TestHandleHealth(t *testing.T) {
	server := createTestServer(&mockOrchestrator{}, &mockRegistry{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "carbon-tracker")
}

func TestHandleListRecords(t *testing.T) {
	reg := &mockRegistry{records: []*models.Record{
		{BusinessKey: "carbon-1", Name: "Commute", Level: types.LevelLow},
		{BusinessKey: "carbon-2", Name: "Flight", Level: types.LevelVeryHigh},
	}}
	server := createTestServer(&mockOrchestrator{}, reg)

	req := httptest.NewRequest("GET", "/api/records", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ListRecordsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "Commute", resp.Records[0].Name)
}

func TestHandleGetRecord_NotFound(t *testing.T) {
	server := createTestServer(&mockOrchestrator{}, &mockRegistry{})

	req := httptest.NewRequest("GET", "/api/records/carbon-missing", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestHandleCreateRecord(t *testing.T) {
	orch := &mockOrchestrator{}
	server := createTestServer(orch, &mockRegistry{})

	body, _ := json.Marshal(map[string]interface{}{
		"name":        "Commute",
		"category":    "transport",
		"carbonValue": 42,
	})

	req := httptest.NewRequest("POST", "/api/records", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, orch.lastInput)
	assert.Equal(t, "Commute", orch.lastInput.Name)
	assert.Equal(t, uint64(42), orch.lastInput.CarbonValue)
}

func TestHandleCreateRecord_InvalidJSON(t *testing.T) {
	server := createTestServer(&mockOrchestrator{}, &mockRegistry{})

	req := httptest.NewRequest("POST", "/api/records", bytes.NewReader([]byte("invalid json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateRecord_WorkflowError(t *testing.T) {
	orch := &mockOrchestrator{createErr: apperrors.NewNotConnectedError()}
	server := createTestServer(orch, &mockRegistry{})

	body, _ := json.Marshal(map[string]interface{}{
		"name":        "Commute",
		"category":    "transport",
		"carbonValue": 42,
	})

	req := httptest.NewRequest("POST", "/api/records", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, apperrors.GetHTTPStatusCode(orch.createErr), w.Code)
	assert.Contains(t, w.Body.String(), "NOT_CONNECTED")
}

func TestHandleDecryptRecord(t *testing.T) {
	value := uint64(37)
	orch := &mockOrchestrator{decryptValue: &value}
	server := createTestServer(orch, &mockRegistry{})

	req := httptest.NewRequest("POST", "/api/records/carbon-1/decrypt", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "carbon-1", orch.lastKey)

	var resp DecryptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.ClearValue)
	assert.Equal(t, uint64(37), *resp.ClearValue)
}

func TestHandleDecryptRecord_AlreadyVerifiedReturnsNull(t *testing.T) {
	server := createTestServer(&mockOrchestrator{decryptValue: nil}, &mockRegistry{})

	req := httptest.NewRequest("POST", "/api/records/carbon-1/decrypt", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp DecryptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.ClearValue)
}

func TestHandleDecryptRecord_Busy(t *testing.T) {
	orch := &mockOrchestrator{decryptErr: apperrors.NewDecryptionBusyError()}
	server := createTestServer(orch, &mockRegistry{})

	req := httptest.NewRequest("POST", "/api/records/carbon-1/decrypt", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "DECRYPTION_BUSY")
}

func TestHandleRefresh_Error(t *testing.T) {
	reg := &mockRegistry{refreshErr: apperrors.NewLoadFailedError(fmt.Errorf("rpc down"))}
	server := createTestServer(&mockOrchestrator{}, reg)

	req := httptest.NewRequest("POST", "/api/records/refresh", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "LOAD_FAILED")
}

func TestHandleGetStats(t *testing.T) {
	reg := &mockRegistry{stats: models.Stats{TotalEntries: 3, VerifiedCount: 1, TodayCount: 2, AverageLevel: types.LevelMedium}}
	server := createTestServer(&mockOrchestrator{}, reg)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var stats models.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, types.LevelMedium, stats.AverageLevel)
}

func TestHandleGetHistoryAndStatus(t *testing.T) {
	server := createTestServer(&mockOrchestrator{}, &mockRegistry{})

	req := httptest.NewRequest("GET", "/api/history", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Loaded 1 carbon records")

	req = httptest.NewRequest("GET", "/api/status", nil)
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var status notify.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Visible)
	assert.Equal(t, types.StatusSuccess, status.Kind)
}

func TestCORSPreflight(t *testing.T) {
	server := createTestServer(&mockOrchestrator{}, &mockRegistry{})

	req := httptest.NewRequest("OPTIONS", "/api/records", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
