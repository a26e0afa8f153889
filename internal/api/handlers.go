// Package api provides the HTTP handlers for PromptPipe Agent.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	"github.com/BTreeMap/PromptPipeAgent/internal/util"
)

// processMessageHandler routes one inbound participant message.
func (s *Server) processMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}

	requestID := util.GenerateRequestID()
	slog.Debug("Server.processMessageHandler: received request", "requestID", requestID)

	var req models.ProcessMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.processMessageHandler: invalid JSON body", "error", err, "requestID", requestID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.processMessageHandler: validation failed", "error", err, "requestID", requestID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	slog.Info("Server.processMessageHandler: processing message",
		"requestID", requestID, "participantID", req.ParticipantID, "messageLength", len(req.Message))

	response, finalState, err := s.processor.ProcessMessage(r.Context(), req.ParticipantID, req.Message)
	if err != nil {
		slog.Error("Server.processMessageHandler: processing failed",
			"error", err, "requestID", requestID, "participantID", req.ParticipantID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to process message"))
		return
	}

	slog.Info("Server.processMessageHandler: message processed",
		"requestID", requestID, "participantID", req.ParticipantID, "state", finalState)

	writeJSONResponse(w, http.StatusOK, models.Success(models.ProcessMessageResponse{
		Response: response,
		State:    finalState,
	}))
}

// healthHandler reports service liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.HealthResponse{
		Status:  "healthy",
		Version: models.Version,
	})
}

// rootHandler returns basic service information.
func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"service": "PromptPipe Agent",
		"version": models.Version,
	}))
}
