package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/PromptPipeAgent/internal/flow"
	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
)

// mockProcessor is a scriptable MessageProcessor for handler tests.
type mockProcessor struct {
	response string
	state    models.ConversationState
	err      error

	lastParticipantID string
	lastMessage       string
}

func (m *mockProcessor) ProcessMessage(ctx context.Context, participantID, message string) (string, models.ConversationState, error) {
	m.lastParticipantID = participantID
	m.lastMessage = message
	if m.err != nil {
		return "", "", m.err
	}
	return m.response, m.state, nil
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestProcessMessageEndpoint(t *testing.T) {
	processor := &mockProcessor{response: "hello there", state: models.StateCoordinator}
	server := NewServer(processor)

	rec := postJSON(t, server.Handler(), "/process-message", models.ProcessMessageRequest{
		ParticipantID: "p1",
		Message:       "hi",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Status string                        `json:"status"`
		Result models.ProcessMessageResponse `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if envelope.Status != "ok" {
		t.Errorf("status = %q, want ok", envelope.Status)
	}
	if envelope.Result.Response != "hello there" {
		t.Errorf("response = %q, want hello there", envelope.Result.Response)
	}
	if envelope.Result.State != models.StateCoordinator {
		t.Errorf("state = %v, want COORDINATOR", envelope.Result.State)
	}
	if processor.lastParticipantID != "p1" || processor.lastMessage != "hi" {
		t.Errorf("processor received (%q, %q), want (p1, hi)", processor.lastParticipantID, processor.lastMessage)
	}
}

func TestProcessMessageValidation(t *testing.T) {
	tests := []struct {
		name string
		req  models.ProcessMessageRequest
	}{
		{"missing participant", models.ProcessMessageRequest{Message: "hi"}},
		{"missing message", models.ProcessMessageRequest{ParticipantID: "p1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(&mockProcessor{})
			rec := postJSON(t, server.Handler(), "/process-message", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestProcessMessageInvalidJSON(t *testing.T) {
	server := NewServer(&mockProcessor{})
	req := httptest.NewRequest(http.MethodPost, "/process-message", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestProcessMessageMethodNotAllowed(t *testing.T) {
	server := NewServer(&mockProcessor{})
	req := httptest.NewRequest(http.MethodGet, "/process-message", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestProcessMessageStoreFailure(t *testing.T) {
	server := NewServer(&mockProcessor{err: errors.New("database unavailable")})
	rec := postJSON(t, server.Handler(), "/process-message", models.ProcessMessageRequest{
		ParticipantID: "p1",
		Message:       "hi",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var envelope models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if envelope.Status != "error" {
		t.Errorf("status = %q, want error", envelope.Status)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(&mockProcessor{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var health models.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", health.Status)
	}
	if health.Version != models.Version {
		t.Errorf("version = %q, want %q", health.Version, models.Version)
	}
}

func TestRootEndpoint(t *testing.T) {
	server := NewServer(&mockProcessor{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status for unknown path = %d, want 404", rec.Code)
	}
}

// End-to-end through a real orchestrator over the in-memory store.
func TestProcessMessageThroughOrchestrator(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &flow.MockGenAIClient{Response: "welcome aboard"}

	transitionTool := flow.NewStateTransitionTool(st)
	coordinator := flow.NewCoordinatorModule(st, mock, "", flow.DefaultHistoryLimit, transitionTool, nil)
	orchestrator := flow.NewOrchestrator(st, coordinator, coordinator, coordinator)

	server := NewServer(orchestrator)
	rec := postJSON(t, server.Handler(), "/process-message", models.ProcessMessageRequest{
		ParticipantID: "p1",
		Message:       "hello",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Result models.ProcessMessageResponse `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if envelope.Result.Response != "welcome aboard" {
		t.Errorf("response = %q, want welcome aboard", envelope.Result.Response)
	}
	if envelope.Result.State != models.StateCoordinator {
		t.Errorf("state = %v, want COORDINATOR", envelope.Result.State)
	}
}
