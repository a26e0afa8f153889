// Package flow provides state transition tool functionality for managing conversation state transitions.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// ErrInvalidTransition indicates a requested target state outside the
// closed enumeration. The prior state is retained when this occurs.
var ErrInvalidTransition = errors.New("invalid state transition")

// StateTransitionTool provides functionality for transitioning between conversation states.
type StateTransitionTool struct {
	store store.Store
}

// NewStateTransitionTool creates a new state transition tool instance.
func NewStateTransitionTool(st store.Store) *StateTransitionTool {
	slog.Debug("StateTransitionTool.NewStateTransitionTool: creating state transition tool", "hasStore", st != nil)
	return &StateTransitionTool{store: st}
}

// GetToolDefinition returns the OpenAI tool definition for state transitions.
func (stt *StateTransitionTool) GetToolDefinition() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        "transition_state",
			Description: openai.String("Transition the conversation to a specific state. Use this to route the conversation to a specialized handler (INTAKE for profile building, FEEDBACK for habit feedback) or back to the coordinator."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"target_state": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"COORDINATOR", "INTAKE", "FEEDBACK", "CONVERSATION_ACTIVE"},
						"description": "The target state to transition to",
					},
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "Optional reason for the transition (for logging and debugging)",
					},
				},
				"required": []string{"target_state"},
			},
		},
	}
}

// ExecuteStateTransition validates the requested target state and persists it.
// An unrecognized label returns ErrInvalidTransition and leaves the prior
// state untouched; callers report that as tool-result text so the turn still
// completes with a response.
func (stt *StateTransitionTool) ExecuteStateTransition(ctx context.Context, participantID string, args map[string]interface{}) (string, error) {
	slog.Debug("StateTransitionTool.ExecuteStateTransition: executing state transition",
		"participantID", participantID, "args", args)

	if stt.store == nil {
		err := fmt.Errorf("store is required for state transitions")
		slog.Error("StateTransitionTool.ExecuteStateTransition: missing store", "error", err)
		return "", err
	}

	targetStateStr, ok := args["target_state"].(string)
	if !ok {
		slog.Error("StateTransitionTool.ExecuteStateTransition: target_state missing or not a string", "participantID", participantID)
		return "", fmt.Errorf("%w: target_state is required and must be a string", ErrInvalidTransition)
	}

	targetState, err := models.ParseConversationState(targetStateStr)
	if err != nil {
		slog.Warn("StateTransitionTool.ExecuteStateTransition: unrecognized target state, prior state retained",
			"participantID", participantID, "targetState", targetStateStr)
		return "", fmt.Errorf("%w: unrecognized target state %q", ErrInvalidTransition, targetStateStr)
	}

	reason, _ := args["reason"].(string)

	currentState, found, err := stt.store.GetConversationState(ctx, participantID)
	if err != nil {
		slog.Error("StateTransitionTool.ExecuteStateTransition: failed to get current state",
			"error", err, "participantID", participantID)
		return "", fmt.Errorf("failed to get current state: %w", err)
	}
	if !found {
		currentState = models.StateCoordinator
	}

	if err := stt.store.SetConversationState(ctx, participantID, targetState); err != nil {
		slog.Error("StateTransitionTool.ExecuteStateTransition: failed to set conversation state",
			"error", err, "participantID", participantID, "targetState", targetState)
		return "", fmt.Errorf("failed to set conversation state: %w", err)
	}

	slog.Info("StateTransitionTool.ExecuteStateTransition: transition completed",
		"participantID", participantID,
		"fromState", currentState,
		"toState", targetState,
		"reason", reason)

	return fmt.Sprintf("Conversation state transitioned to %s", targetState), nil
}
