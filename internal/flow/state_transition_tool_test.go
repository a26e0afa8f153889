package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
)

func TestExecuteStateTransitionValidTargets(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   models.ConversationState
	}{
		{"to intake", "INTAKE", models.StateIntake},
		{"to feedback", "FEEDBACK", models.StateFeedback},
		{"back to coordinator", "COORDINATOR", models.StateCoordinator},
		{"to conversation active", "CONVERSATION_ACTIVE", models.StateConversationActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewInMemoryStore()
			tool := NewStateTransitionTool(st)
			ctx := context.Background()

			result, err := tool.ExecuteStateTransition(ctx, "p1", map[string]interface{}{
				"target_state": tt.target,
			})
			if err != nil {
				t.Fatalf("ExecuteStateTransition() failed: %v", err)
			}
			if result == "" {
				t.Error("ExecuteStateTransition() returned empty result")
			}

			state, found, err := st.GetConversationState(ctx, "p1")
			if err != nil || !found {
				t.Fatalf("state not persisted: found=%v err=%v", found, err)
			}
			if state != tt.want {
				t.Errorf("persisted state = %v, want %v", state, tt.want)
			}
		})
	}
}

func TestExecuteStateTransitionInvalidTarget(t *testing.T) {
	st := store.NewInMemoryStore()
	tool := NewStateTransitionTool(st)
	ctx := context.Background()

	if err := st.SetConversationState(ctx, "p1", models.StateCoordinator); err != nil {
		t.Fatalf("SetConversationState() failed: %v", err)
	}

	_, err := tool.ExecuteStateTransition(ctx, "p1", map[string]interface{}{
		"target_state": "HIBERNATE",
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}

	// Prior state must be retained.
	state, found, err := st.GetConversationState(ctx, "p1")
	if err != nil || !found {
		t.Fatalf("state lookup failed: found=%v err=%v", found, err)
	}
	if state != models.StateCoordinator {
		t.Errorf("state = %v, want COORDINATOR unchanged", state)
	}
}

func TestExecuteStateTransitionMissingTarget(t *testing.T) {
	tool := NewStateTransitionTool(store.NewInMemoryStore())

	_, err := tool.ExecuteStateTransition(context.Background(), "p1", map[string]interface{}{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want ErrInvalidTransition for missing target_state", err)
	}
}
