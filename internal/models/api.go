// Package models defines API request and response structures for PromptPipe Agent.
package models

import "errors"

// Version is the service version reported by the health endpoint.
const Version = "0.1.0"

// Error variables for request validation.
var (
	ErrEmptyParticipantID = errors.New("participant_id cannot be empty")
	ErrEmptyMessage       = errors.New("message cannot be empty")
)

// ProcessMessageRequest is the inbound request from the delivery system.
type ProcessMessageRequest struct {
	ParticipantID string `json:"participant_id"`
	Message       string `json:"message"`
	PhoneNumber   string `json:"phone_number,omitempty"`
}

// Validate performs validation on a ProcessMessageRequest.
func (r *ProcessMessageRequest) Validate() error {
	if r.ParticipantID == "" {
		return ErrEmptyParticipantID
	}
	if r.Message == "" {
		return ErrEmptyMessage
	}
	return nil
}

// ProcessMessageResponse carries the handler response and final routing state.
type ProcessMessageResponse struct {
	Response string            `json:"response"`
	State    ConversationState `json:"state"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
