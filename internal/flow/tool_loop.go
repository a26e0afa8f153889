// Package flow provides the shared function-calling loop used by all handler modules.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PromptPipeAgent/internal/genai"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
)

// maxToolRounds bounds the tool call loop so a model that keeps requesting
// tools cannot spin forever.
const maxToolRounds = 10

// toolLoopFallback is returned when the loop exhausts its rounds without a
// user-facing message.
const toolLoopFallback = "I've completed the requested actions."

// toolExecutor runs one named tool call. Execution errors are reported back
// to the model as tool-result text, never surfaced as loop failures.
type toolExecutor func(ctx context.Context, participantID string, args map[string]interface{}) (string, error)

// runToolLoop drives the function-calling conversation until the model
// produces a plain text reply. Only generation failures escape as errors.
func runToolLoop(ctx context.Context, moduleName, participantID string, client genai.ClientInterface, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam, executors map[string]toolExecutor) (string, error) {
	currentMessages := messages

	for round := 1; round <= maxToolRounds; round++ {
		slog.Debug("runToolLoop: round start", "module", moduleName, "participantID", participantID,
			"round", round, "messageCount", len(currentMessages))

		toolResponse, err := client.GenerateWithTools(ctx, currentMessages, tools)
		if err != nil {
			slog.Error("runToolLoop: generation failed", "error", err, "module", moduleName,
				"participantID", participantID, "round", round)
			return "", fmt.Errorf("failed to generate response with tools: %w", err)
		}

		if len(toolResponse.ToolCalls) == 0 {
			if toolResponse.Content != "" {
				slog.Debug("runToolLoop: final response", "module", moduleName, "participantID", participantID,
					"round", round, "responseLength", len(toolResponse.Content))
				return toolResponse.Content, nil
			}
			slog.Warn("runToolLoop: empty content and no tool calls", "module", moduleName,
				"participantID", participantID, "round", round)
			return toolLoopFallback, nil
		}

		slog.Info("runToolLoop: executing tool calls", "module", moduleName, "participantID", participantID,
			"round", round, "toolCallCount", len(toolResponse.ToolCalls))

		currentMessages = executeToolCalls(ctx, moduleName, participantID, toolResponse, currentMessages, executors)

		// Content alongside tool calls is the model's final user-facing text.
		if toolResponse.Content != "" {
			return toolResponse.Content, nil
		}
	}

	slog.Warn("runToolLoop: hit maximum tool rounds", "module", moduleName,
		"participantID", participantID, "maxRounds", maxToolRounds)
	return toolLoopFallback, nil
}

// executeToolCalls appends the assistant tool-call message, runs each
// requested tool, and appends the results as tool messages.
func executeToolCalls(ctx context.Context, moduleName, participantID string, toolResponse *genai.ToolCallResponse, messages []openai.ChatCompletionMessageParamUnion, executors map[string]toolExecutor) []openai.ChatCompletionMessageParamUnion {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	for _, toolCall := range toolResponse.ToolCalls {
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   toolCall.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      toolCall.Function.Name,
				Arguments: string(toolCall.Function.Arguments),
			},
		})
	}

	assistantMessage := openai.ChatCompletionAssistantMessageParam{
		Content: openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: param.NewOpt(toolResponse.Content),
		},
		ToolCalls: toolCalls,
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMessage})

	for _, toolCall := range toolResponse.ToolCalls {
		name := toolCall.Function.Name
		slog.Info("executeToolCalls: executing tool", "module", moduleName, "participantID", participantID,
			"toolName", name, "toolCallID", toolCall.ID)

		var result string
		executor, known := executors[name]
		if !known {
			slog.Warn("executeToolCalls: unknown tool requested", "module", moduleName,
				"participantID", participantID, "toolName", name)
			result = fmt.Sprintf("Unknown tool: %s", name)
		} else {
			var args map[string]interface{}
			if parseErr := json.Unmarshal(toolCall.Function.Arguments, &args); parseErr != nil {
				slog.Error("executeToolCalls: failed to parse tool arguments", "error", parseErr,
					"module", moduleName, "participantID", participantID, "toolName", name)
				result = fmt.Sprintf("Failed to execute %s: invalid arguments", name)
			} else {
				execResult, execErr := executor(ctx, participantID, args)
				if execErr != nil {
					slog.Warn("executeToolCalls: tool execution failed", "error", execErr,
						"module", moduleName, "participantID", participantID, "toolName", name)
					result = fmt.Sprintf("Failed to execute %s: %s", name, execErr.Error())
				} else {
					result = execResult
				}
			}
		}

		if result == "" {
			result = "Tool executed successfully"
		}
		messages = append(messages, openai.ToolMessage(result, toolCall.ID))
	}

	return messages
}
