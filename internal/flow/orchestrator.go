// Package flow provides the orchestrator that routes inbound messages to
// handler modules according to persisted conversation state.
package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
)

// Orchestrator routes each inbound message to the handler serving the
// participant's current conversation state and keeps state, history, and
// response consistent within the turn.
//
// Concurrent calls for the same participant are not serialized here;
// callers that need per-participant ordering must provide it.
type Orchestrator struct {
	store       store.Store
	coordinator Handler
	intake      Handler
	feedback    Handler
}

// NewOrchestrator creates an orchestrator with the given store and handlers.
func NewOrchestrator(st store.Store, coordinator, intake, feedback Handler) *Orchestrator {
	slog.Debug("Orchestrator.NewOrchestrator: creating orchestrator",
		"hasStore", st != nil,
		"hasCoordinator", coordinator != nil,
		"hasIntake", intake != nil,
		"hasFeedback", feedback != nil)
	return &Orchestrator{
		store:       st,
		coordinator: coordinator,
		intake:      intake,
		feedback:    feedback,
	}
}

// ProcessMessage executes one routing turn:
//
//  1. read the participant's state; if unset, persist COORDINATOR first so
//     handlers never observe "unset" mid-turn;
//  2. resolve the handler for that state;
//  3. record the inbound message as a user history entry before delegating;
//  4. delegate to the handler, which may transition state and appends its
//     own reply to history;
//  5. re-read the state and return it with the handler's reply.
//
// Store failures propagate as errors; generation failures never do (the
// handler absorbs them into an apologetic reply with state unchanged).
func (o *Orchestrator) ProcessMessage(ctx context.Context, participantID, message string) (string, models.ConversationState, error) {
	slog.Debug("Orchestrator.ProcessMessage: routing message", "participantID", participantID)

	state, found, err := o.store.GetConversationState(ctx, participantID)
	if err != nil {
		slog.Error("Orchestrator.ProcessMessage: failed to read state", "error", err, "participantID", participantID)
		return "", "", fmt.Errorf("failed to read conversation state: %w", err)
	}
	if !found {
		state = models.StateCoordinator
		if err := o.store.SetConversationState(ctx, participantID, state); err != nil {
			slog.Error("Orchestrator.ProcessMessage: failed to persist default state", "error", err, "participantID", participantID)
			return "", "", fmt.Errorf("failed to persist default conversation state: %w", err)
		}
		slog.Info("Orchestrator.ProcessMessage: first contact, default state persisted",
			"participantID", participantID, "state", state)
	}

	handler, kind := o.resolve(state)
	slog.Debug("Orchestrator.ProcessMessage: handler resolved",
		"participantID", participantID, "state", state, "handler", kind)

	if err := o.store.AddMessage(ctx, participantID, models.RoleUser, message); err != nil {
		slog.Error("Orchestrator.ProcessMessage: failed to record inbound message", "error", err, "participantID", participantID)
		return "", "", fmt.Errorf("failed to record inbound message: %w", err)
	}

	response, err := handler.ProcessMessage(ctx, participantID, message)
	if err != nil {
		slog.Error("Orchestrator.ProcessMessage: handler failed", "error", err,
			"participantID", participantID, "handler", kind)
		return "", "", fmt.Errorf("handler %s failed: %w", kind, err)
	}

	// A transition may have occurred during delegation.
	finalState, found, err := o.store.GetConversationState(ctx, participantID)
	if err != nil {
		slog.Error("Orchestrator.ProcessMessage: failed to re-read state", "error", err, "participantID", participantID)
		return "", "", fmt.Errorf("failed to re-read conversation state: %w", err)
	}
	if !found {
		finalState = state
	}

	slog.Info("Orchestrator.ProcessMessage: turn completed",
		"participantID", participantID,
		"handler", kind,
		"initialState", state,
		"finalState", finalState,
		"responseLength", len(response))
	return response, finalState, nil
}

// resolve returns the handler instance serving the given state.
func (o *Orchestrator) resolve(state models.ConversationState) (Handler, HandlerKind) {
	kind := ResolveHandler(state)
	switch kind {
	case HandlerIntake:
		return o.intake, kind
	case HandlerFeedback:
		return o.feedback, kind
	default:
		return o.coordinator, kind
	}
}
