// Package flow provides the conversation state machine, the message router,
// and the handler modules with their shared tools.
package flow

import (
	"context"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
)

// HandlerKind identifies which conversational handler serves a routing state.
type HandlerKind string

const (
	HandlerCoordinator HandlerKind = "coordinator"
	HandlerIntake      HandlerKind = "intake"
	HandlerFeedback    HandlerKind = "feedback"
)

// Handler is the single capability all conversational modules implement.
// ProcessMessage reads whatever context it needs from the store, generates
// a reply, appends that reply to the conversation history as an assistant
// message, and returns it. Generation failures are absorbed into an
// apologetic reply; only store failures propagate.
type Handler interface {
	ProcessMessage(ctx context.Context, participantID, userMessage string) (string, error)
}

// ResolveHandler maps a routing state to the handler that serves it.
// INTAKE and FEEDBACK route to their dedicated modules; every other value
// (COORDINATOR, CONVERSATION_ACTIVE) falls through to the coordinator.
func ResolveHandler(state models.ConversationState) HandlerKind {
	switch state {
	case models.StateIntake:
		return HandlerIntake
	case models.StateFeedback:
		return HandlerFeedback
	default:
		return HandlerCoordinator
	}
}
