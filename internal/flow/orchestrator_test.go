package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/BTreeMap/PromptPipeAgent/internal/genai"
	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
)

// testHarness wires an orchestrator over an in-memory store with one
// scriptable mock client per module.
type testHarness struct {
	store           *store.InMemoryStore
	coordinatorMock *MockGenAIClient
	intakeMock      *MockGenAIClient
	feedbackMock    *MockGenAIClient
	orchestrator    *Orchestrator
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	st := store.NewInMemoryStore()
	coordinatorMock := &MockGenAIClient{Response: "coordinator reply"}
	intakeMock := &MockGenAIClient{Response: "intake reply"}
	feedbackMock := &MockGenAIClient{Response: "feedback reply"}

	transitionTool := NewStateTransitionTool(st)
	profileTool := NewProfileSaveTool(st)
	schedulerTool := NewSchedulerTool(st)
	promptTool := NewPromptGeneratorTool(st, coordinatorMock, "")

	coordinator := NewCoordinatorModule(st, coordinatorMock, "", DefaultHistoryLimit, transitionTool, promptTool)
	intake := NewIntakeModule(st, intakeMock, "", DefaultHistoryLimit, transitionTool, profileTool, schedulerTool, promptTool)
	feedback := NewFeedbackModule(st, feedbackMock, "", DefaultHistoryLimit, transitionTool, profileTool)

	return &testHarness{
		store:           st,
		coordinatorMock: coordinatorMock,
		intakeMock:      intakeMock,
		feedbackMock:    feedbackMock,
		orchestrator:    NewOrchestrator(st, coordinator, intake, feedback),
	}
}

func TestFirstContactPersistsDefaultState(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	response, finalState, err := h.orchestrator.ProcessMessage(ctx, "p1", "hello")
	if err != nil {
		t.Fatalf("ProcessMessage() failed: %v", err)
	}
	if response != "coordinator reply" {
		t.Errorf("response = %q, want coordinator reply", response)
	}
	if finalState != models.StateCoordinator {
		t.Errorf("finalState = %v, want COORDINATOR", finalState)
	}

	state, found, err := h.store.GetConversationState(ctx, "p1")
	if err != nil {
		t.Fatalf("GetConversationState() failed: %v", err)
	}
	if !found {
		t.Fatal("default state was not persisted on first contact")
	}
	if state != models.StateCoordinator {
		t.Errorf("persisted state = %v, want COORDINATOR", state)
	}
}

func TestRoutingByState(t *testing.T) {
	tests := []struct {
		name         string
		state        models.ConversationState
		wantResponse string
	}{
		{"coordinator state", models.StateCoordinator, "coordinator reply"},
		{"conversation active routes to coordinator", models.StateConversationActive, "coordinator reply"},
		{"intake state", models.StateIntake, "intake reply"},
		{"feedback state", models.StateFeedback, "feedback reply"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t)
			ctx := context.Background()

			if err := h.store.SetConversationState(ctx, "p1", tt.state); err != nil {
				t.Fatalf("SetConversationState() failed: %v", err)
			}

			response, _, err := h.orchestrator.ProcessMessage(ctx, "p1", "hi")
			if err != nil {
				t.Fatalf("ProcessMessage() failed: %v", err)
			}
			if response != tt.wantResponse {
				t.Errorf("response = %q, want %q", response, tt.wantResponse)
			}
		})
	}
}

func TestHistoryAppendOrder(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	const turns = 3
	for i := 0; i < turns; i++ {
		msg := fmt.Sprintf("message %d", i)
		if _, _, err := h.orchestrator.ProcessMessage(ctx, "p1", msg); err != nil {
			t.Fatalf("ProcessMessage() turn %d failed: %v", i, err)
		}
	}

	history, err := h.store.GetConversationHistory(ctx, "p1")
	if err != nil {
		t.Fatalf("GetConversationHistory() failed: %v", err)
	}
	if len(history.Messages) != 2*turns {
		t.Fatalf("history length = %d, want %d", len(history.Messages), 2*turns)
	}

	for i, msg := range history.Messages {
		wantRole := models.RoleUser
		if i%2 == 1 {
			wantRole = models.RoleAssistant
		}
		if msg.Role != wantRole {
			t.Errorf("message %d role = %v, want %v", i, msg.Role, wantRole)
		}
	}
	for i := 0; i < turns; i++ {
		if history.Messages[2*i].Content != fmt.Sprintf("message %d", i) {
			t.Errorf("user message %d content = %q, want message %d", i, history.Messages[2*i].Content, i)
		}
	}
}

func TestTransitionThenReread(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.coordinatorMock.ToolResponses = []*genai.ToolCallResponse{
		newToolCallResponse("call_1", "transition_state", `{"target_state":"INTAKE"}`),
	}
	h.coordinatorMock.Response = "switching to intake"

	response, finalState, err := h.orchestrator.ProcessMessage(ctx, "p1", "I want to set up my profile")
	if err != nil {
		t.Fatalf("ProcessMessage() failed: %v", err)
	}
	if finalState != models.StateIntake {
		t.Errorf("finalState = %v, want INTAKE (transition requested mid-turn)", finalState)
	}
	if response == "" {
		t.Error("response is empty")
	}
}

func TestInvalidTransitionSafety(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.coordinatorMock.ToolResponses = []*genai.ToolCallResponse{
		newToolCallResponse("call_1", "transition_state", `{"target_state":"BOGUS"}`),
	}
	h.coordinatorMock.Response = "let's continue"

	response, finalState, err := h.orchestrator.ProcessMessage(ctx, "p1", "hello")
	if err != nil {
		t.Fatalf("ProcessMessage() failed: %v", err)
	}
	if finalState != models.StateCoordinator {
		t.Errorf("finalState = %v, want COORDINATOR (invalid transition must not change state)", finalState)
	}
	if response == "" {
		t.Error("turn did not yield a response after invalid transition")
	}
}

func TestGenerationFailureIsSoft(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.coordinatorMock.Err = errors.New("model unavailable")

	response, finalState, err := h.orchestrator.ProcessMessage(ctx, "p1", "hello")
	if err != nil {
		t.Fatalf("ProcessMessage() returned hard error for generation failure: %v", err)
	}
	if response != generationApology {
		t.Errorf("response = %q, want apology", response)
	}
	if finalState != models.StateCoordinator {
		t.Errorf("finalState = %v, want COORDINATOR (state unchanged on generation failure)", finalState)
	}

	// The inbound message and the apology are both durably recorded.
	history, err := h.store.GetConversationHistory(ctx, "p1")
	if err != nil {
		t.Fatalf("GetConversationHistory() failed: %v", err)
	}
	if len(history.Messages) != 2 {
		t.Fatalf("history length = %d, want 2", len(history.Messages))
	}
	if history.Messages[0].Role != models.RoleUser || history.Messages[0].Content != "hello" {
		t.Errorf("first message = %+v, want recorded user message", history.Messages[0])
	}
	if history.Messages[1].Role != models.RoleAssistant || history.Messages[1].Content != generationApology {
		t.Errorf("second message = %+v, want recorded apology", history.Messages[1])
	}
}

// failingStore wraps a Store and fails state reads.
type failingStore struct {
	store.Store
}

func (f *failingStore) GetConversationState(ctx context.Context, participantID string) (models.ConversationState, bool, error) {
	return "", false, errors.New("connection refused")
}

func TestStoreFailurePropagates(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	broken := &failingStore{Store: h.store}
	orchestrator := NewOrchestrator(broken,
		NewCoordinatorModule(h.store, h.coordinatorMock, "", DefaultHistoryLimit, nil, nil),
		nil, nil)

	_, _, err := orchestrator.ProcessMessage(ctx, "p1", "hello")
	if err == nil {
		t.Fatal("ProcessMessage() expected hard error on store failure, got nil")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error = %v, want wrapped connection refused", err)
	}
}

func TestFullIntakeScenario(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	// Turn 1: coordinator hands off to intake.
	h.coordinatorMock.ToolResponses = []*genai.ToolCallResponse{
		newToolCallResponse("call_1", "transition_state", `{"target_state":"INTAKE"}`),
	}
	h.coordinatorMock.Response = "Let's set up your profile."

	_, state, err := h.orchestrator.ProcessMessage(ctx, "p1", "I want to build a walking habit")
	if err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}
	if state != models.StateIntake {
		t.Fatalf("state after turn 1 = %v, want INTAKE", state)
	}

	// Turn 2: intake saves a profile field and hands back.
	h.intakeMock.ToolResponses = []*genai.ToolCallResponse{
		newToolCallResponse("call_2", "save_user_profile", `{"habit_domain":"walking","preferred_time":"09:00"}`),
		newToolCallResponse("call_3", "transition_state", `{"target_state":"COORDINATOR"}`),
	}
	h.intakeMock.Response = "All set!"

	_, state, err = h.orchestrator.ProcessMessage(ctx, "p1", "mornings work best")
	if err != nil {
		t.Fatalf("turn 2 failed: %v", err)
	}
	if state != models.StateCoordinator {
		t.Fatalf("state after turn 2 = %v, want COORDINATOR", state)
	}

	profile, err := h.store.GetUserProfile(ctx, "p1")
	if err != nil {
		t.Fatalf("GetUserProfile() failed: %v", err)
	}
	if profile == nil {
		t.Fatal("profile was not created during intake")
	}
	if profile.HabitDomain != "walking" {
		t.Errorf("HabitDomain = %q, want walking", profile.HabitDomain)
	}
	if profile.PreferredTime != "09:00" {
		t.Errorf("PreferredTime = %q, want 09:00", profile.PreferredTime)
	}
}
