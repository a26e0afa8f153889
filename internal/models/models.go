// Package models defines the core data structures for PromptPipe Agent.
//
// It includes the conversation state enumeration, message and history types,
// and the API request/response shapes shared across modules.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ConversationState represents the routing state of a participant's conversation.
type ConversationState string

const (
	// StateCoordinator routes messages to the general-purpose coordinator handler.
	StateCoordinator ConversationState = "COORDINATOR"
	// StateIntake routes messages to the intake handler for profile building.
	StateIntake ConversationState = "INTAKE"
	// StateFeedback routes messages to the feedback tracker handler.
	StateFeedback ConversationState = "FEEDBACK"
	// StateConversationActive marks an ongoing general conversation; handled by the coordinator.
	StateConversationActive ConversationState = "CONVERSATION_ACTIVE"
)

// ErrInvalidConversationState indicates a state label outside the closed enumeration.
var ErrInvalidConversationState = errors.New("invalid conversation state")

// ParseConversationState validates a state label against the closed enumeration.
func ParseConversationState(label string) (ConversationState, error) {
	switch ConversationState(label) {
	case StateCoordinator, StateIntake, StateFeedback, StateConversationActive:
		return ConversationState(label), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidConversationState, label)
	}
}

// FlowTypeConversation is the flow namespace this service owns in the shared database.
// The external delivery system writes other flow types to the same tables.
const FlowTypeConversation = "conversation"

// DataKeySchedule is the state-data key under which a participant's daily
// prompt schedule preference is stored. The external delivery system reads
// this document to drive actual message delivery.
const DataKeySchedule = "schedule"

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	// RoleUser marks a message authored by the participant.
	RoleUser MessageRole = "user"
	// RoleAssistant marks a message authored by a handler.
	RoleAssistant MessageRole = "assistant"
	// RoleSystem marks an instruction message.
	RoleSystem MessageRole = "system"
)

// IsValidMessageRole checks if the given role is supported.
func IsValidMessageRole(role MessageRole) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// ConversationMessage is a single immutable message in a participant's history.
type ConversationMessage struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConversationHistory is the ordered message sequence for one participant.
// Ordering is by timestamp, ties broken by insertion order.
type ConversationHistory struct {
	Messages []ConversationMessage `json:"messages"`
}

// Bounded returns a suffix view of the history for presentation to a handler.
// limit semantics: -1 returns the full history, 0 returns no messages,
// a positive N returns the last N messages.
func (h ConversationHistory) Bounded(limit int) []ConversationMessage {
	switch {
	case limit < 0:
		return h.Messages
	case limit == 0:
		return nil
	case len(h.Messages) > limit:
		return h.Messages[len(h.Messages)-limit:]
	default:
		return h.Messages
	}
}
