package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/service"
)

// ListRecordsResponse is the payload for the record listing endpoint
type ListRecordsResponse struct {
	Records []*models.Record `json:"records"`
	Count   int              `json:"count"`
}

// DecryptResponse is the payload for the decryption endpoint. ClearValue is
// null when the record was already verified and no new cleartext was
// produced.
type DecryptResponse struct {
	BusinessKey string  `json:"businessKey"`
	ClearValue  *uint64 `json:"clearValue"`
}

// handleListRecords returns the current record snapshot.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records := s.registry.Records()
	respondJSON(w, http.StatusOK, ListRecordsResponse{
		Records: records,
		Count:   len(records),
	})
}

// handleGetRecord returns a single record by business key.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	record, ok := s.registry.Get(key)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Record not found", map[string]interface{}{
			"businessKey": key,
		})
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// handleCreateRecord runs the creation workflow.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var input service.CreateRecordInput
	if err := parseJSONBody(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body: "+err.Error(), nil)
		return
	}

	if err := s.orchestrator.CreateRecord(r.Context(), &input); err != nil {
		respondWorkflowError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"message": "Carbon record created successfully",
	})
}

// handleDecryptRecord runs the decryption workflow for one record.
func (s *Server) handleDecryptRecord(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	value, err := s.orchestrator.DecryptRecord(r.Context(), key)
	if err != nil {
		respondWorkflowError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, DecryptResponse{
		BusinessKey: key,
		ClearValue:  value,
	})
}

// handleRefresh reloads the record snapshot from the ledger.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	records, err := s.registry.Refresh(r.Context())
	if err != nil {
		respondWorkflowError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ListRecordsResponse{
		Records: records,
		Count:   len(records),
	})
}

// handleGetStats returns the dashboard statistics.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.registry.Stats())
}

// handleGetHistory returns the bounded operation history, newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": s.history.Entries(),
	})
}

// handleGetStatus returns the current transient transaction status.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.status.Current())
}

// handleCheckAvailability probes the registry contract.
func (s *Server) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.CheckAvailability(r.Context()); err != nil {
		respondWorkflowError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Contract is available and working",
	})
}
