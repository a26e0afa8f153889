package flow

import (
	"context"

	"github.com/BTreeMap/PromptPipeAgent/internal/genai"
	"github.com/openai/openai-go"
)

// MockGenAIClient is a scriptable genai.ClientInterface for tests.
// Successive GenerateWithTools calls consume ToolResponses in order; once
// exhausted (or when none are scripted) a plain text Response is returned.
type MockGenAIClient struct {
	Response      string
	Err           error
	ToolResponses []*genai.ToolCallResponse
	toolCallIndex int

	LastMessages []openai.ChatCompletionMessageParamUnion
	LastTools    []openai.ChatCompletionToolParam
	Calls        int
}

// GeneratePrompt returns the scripted response or error.
func (m *MockGenAIClient) GeneratePrompt(system, user string) (string, error) {
	return m.GeneratePromptWithContext(context.Background(), system, user)
}

// GeneratePromptWithContext returns the scripted response or error.
func (m *MockGenAIClient) GeneratePromptWithContext(ctx context.Context, system, user string) (string, error) {
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// GenerateWithMessages returns the scripted response or error.
func (m *MockGenAIClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	m.Calls++
	m.LastMessages = messages
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// GenerateWithTools consumes the next scripted tool response, falling back
// to a plain text response once the script is exhausted.
func (m *MockGenAIClient) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*genai.ToolCallResponse, error) {
	m.Calls++
	m.LastMessages = messages
	m.LastTools = tools
	if m.Err != nil {
		return nil, m.Err
	}
	if m.toolCallIndex < len(m.ToolResponses) {
		resp := m.ToolResponses[m.toolCallIndex]
		m.toolCallIndex++
		return resp, nil
	}
	return &genai.ToolCallResponse{Content: m.Response}, nil
}

// newToolCallResponse builds a single-tool-call response for scripting mocks.
func newToolCallResponse(callID, toolName, argsJSON string) *genai.ToolCallResponse {
	return &genai.ToolCallResponse{
		ToolCalls: []genai.ToolCall{
			{
				ID:   callID,
				Type: "function",
				Function: genai.FunctionCall{
					Name:      toolName,
					Arguments: []byte(argsJSON),
				},
			},
		},
	}
}
