package flow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BTreeMap/PromptPipeAgent/internal/genai"
	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
)

func TestResolveHandler(t *testing.T) {
	tests := []struct {
		state models.ConversationState
		want  HandlerKind
	}{
		{models.StateCoordinator, HandlerCoordinator},
		{models.StateConversationActive, HandlerCoordinator},
		{models.StateIntake, HandlerIntake},
		{models.StateFeedback, HandlerFeedback},
		{"", HandlerCoordinator},
	}

	for _, tt := range tests {
		if got := ResolveHandler(tt.state); got != tt.want {
			t.Errorf("ResolveHandler(%q) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestToolLoopUnknownToolStillCompletes(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &MockGenAIClient{
		Response: "done anyway",
		ToolResponses: []*genai.ToolCallResponse{
			newToolCallResponse("call_1", "nonexistent_tool", `{}`),
		},
	}
	module := NewCoordinatorModule(st, mock, "", DefaultHistoryLimit, NewStateTransitionTool(st), nil)

	response, err := module.ProcessMessage(context.Background(), "p1", "hello")
	if err != nil {
		t.Fatalf("ProcessMessage() failed: %v", err)
	}
	if response != "done anyway" {
		t.Errorf("response = %q, want done anyway", response)
	}
}

func TestToolLoopBoundedRounds(t *testing.T) {
	st := store.NewInMemoryStore()
	// More scripted tool rounds than the loop allows; every round requests
	// another tool call and never produces text.
	var script []*genai.ToolCallResponse
	for i := 0; i < maxToolRounds+2; i++ {
		script = append(script, newToolCallResponse("call_n", "transition_state", `{"target_state":"COORDINATOR"}`))
	}
	mock := &MockGenAIClient{ToolResponses: script}
	module := NewCoordinatorModule(st, mock, "", DefaultHistoryLimit, NewStateTransitionTool(st), nil)

	response, err := module.ProcessMessage(context.Background(), "p1", "hello")
	if err != nil {
		t.Fatalf("ProcessMessage() failed: %v", err)
	}
	if response != toolLoopFallback {
		t.Errorf("response = %q, want loop fallback", response)
	}
	if mock.Calls != maxToolRounds {
		t.Errorf("generation calls = %d, want %d (loop must be bounded)", mock.Calls, maxToolRounds)
	}
}

func TestToolLoopEmptyResponseFallback(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &MockGenAIClient{Response: ""}
	module := NewCoordinatorModule(st, mock, "", DefaultHistoryLimit, nil, nil)

	response, err := module.ProcessMessage(context.Background(), "p1", "hello")
	if err != nil {
		t.Fatalf("ProcessMessage() failed: %v", err)
	}
	if response != toolLoopFallback {
		t.Errorf("response = %q, want loop fallback for empty generation", response)
	}
}

func TestLoadPromptFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "prompt.txt")
	if err := os.WriteFile(path, []byte("  You are a test assistant.\n"), 0644); err != nil {
		t.Fatalf("failed to write prompt file: %v", err)
	}

	prompt, err := loadPromptFile(path)
	if err != nil {
		t.Fatalf("loadPromptFile() failed: %v", err)
	}
	if prompt != "You are a test assistant." {
		t.Errorf("prompt = %q, want trimmed content", prompt)
	}

	if _, err := loadPromptFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("loadPromptFile() expected error for missing file")
	}
	if _, err := loadPromptFile(""); err == nil {
		t.Error("loadPromptFile() expected error for unconfigured path")
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("   \n"), 0644); err != nil {
		t.Fatalf("failed to write empty file: %v", err)
	}
	if _, err := loadPromptFile(empty); err == nil {
		t.Error("loadPromptFile() expected error for empty file")
	}
}

func TestModuleUsesConfiguredPromptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinator.txt")
	if err := os.WriteFile(path, []byte("Custom coordinator instruction."), 0644); err != nil {
		t.Fatalf("failed to write prompt file: %v", err)
	}

	st := store.NewInMemoryStore()
	mock := &MockGenAIClient{Response: "ok"}
	module := NewCoordinatorModule(st, mock, path, DefaultHistoryLimit, nil, nil)

	if _, err := module.ProcessMessage(context.Background(), "p1", "hello"); err != nil {
		t.Fatalf("ProcessMessage() failed: %v", err)
	}
	if module.systemPrompt != "Custom coordinator instruction." {
		t.Errorf("systemPrompt = %q, want file content", module.systemPrompt)
	}
}

func TestHistoryToMessagesSkipsSystemRows(t *testing.T) {
	msgs := []models.ConversationMessage{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleSystem, Content: "instruction"},
		{Role: models.RoleAssistant, Content: "hello"},
	}
	out := historyToMessages(msgs)
	if len(out) != 2 {
		t.Errorf("converted message count = %d, want 2 (system rows skipped)", len(out))
	}
}
