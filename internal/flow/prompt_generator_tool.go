// Package flow provides prompt generator tool functionality for creating personalized habit prompts.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PromptPipeAgent/internal/genai"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// staticFallbackPrompt is returned when the participant has no profile yet
// or generation fails. The tool never surfaces a generation error.
const staticFallbackPrompt = "If your phone buzzes, take 50 steps, either walking around or walking in place. " +
	"Active people like you can reach their fitness goals with these tiny steps."

// defaultPromptGeneratorInstruction is used when no instruction file is configured or readable.
const defaultPromptGeneratorInstruction = "Generate a personalized 1-minute habit prompt based on the user's profile. " +
	"The prompt should be actionable, specific, and aligned with their preferences."

// PromptGeneratorTool generates personalized habit prompts from the
// participant's stored profile.
type PromptGeneratorTool struct {
	store            store.Store
	genaiClient      genai.ClientInterface
	systemPromptFile string
	systemPrompt     string
}

// NewPromptGeneratorTool creates a new prompt generator tool instance.
func NewPromptGeneratorTool(st store.Store, genaiClient genai.ClientInterface, systemPromptFile string) *PromptGeneratorTool {
	slog.Debug("PromptGeneratorTool.NewPromptGeneratorTool: creating prompt generator tool",
		"hasStore", st != nil, "hasGenAI", genaiClient != nil, "systemPromptFile", systemPromptFile)
	return &PromptGeneratorTool{
		store:            st,
		genaiClient:      genaiClient,
		systemPromptFile: systemPromptFile,
	}
}

// GetToolDefinition returns the OpenAI tool definition for generating habit prompts.
func (pgt *PromptGeneratorTool) GetToolDefinition() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        "generate_habit_prompt",
			Description: openai.String("Generate a personalized habit prompt based on the user's profile. Use this when the user wants to try the habit now or after completing the intake. The generated prompt will be based on their preferences (anchor, timing, motivational frame)."),
			Parameters: shared.FunctionParameters{
				"type":       "object",
				"properties": map[string]interface{}{},
				"required":   []string{},
			},
		},
	}
}

// ExecutePromptGenerator generates a personalized habit prompt for the
// participant. Profile lookup failures, a missing profile, and generation
// failures all degrade to the static fallback prompt.
func (pgt *PromptGeneratorTool) ExecutePromptGenerator(ctx context.Context, participantID string, args map[string]interface{}) (string, error) {
	slog.Debug("PromptGeneratorTool.ExecutePromptGenerator: generating habit prompt", "participantID", participantID)

	if pgt.store == nil || pgt.genaiClient == nil {
		slog.Warn("PromptGeneratorTool.ExecutePromptGenerator: missing dependencies, using static fallback",
			"participantID", participantID, "hasStore", pgt.store != nil, "hasGenAI", pgt.genaiClient != nil)
		return staticFallbackPrompt, nil
	}

	profile, err := pgt.store.GetUserProfile(ctx, participantID)
	if err != nil {
		slog.Warn("PromptGeneratorTool.ExecutePromptGenerator: profile lookup failed, using static fallback",
			"error", err, "participantID", participantID)
		return staticFallbackPrompt, nil
	}
	if profile == nil {
		slog.Debug("PromptGeneratorTool.ExecutePromptGenerator: no profile, using static fallback", "participantID", participantID)
		return staticFallbackPrompt, nil
	}

	if pgt.systemPrompt == "" {
		prompt, err := loadPromptFile(pgt.systemPromptFile)
		if err != nil {
			slog.Warn("PromptGeneratorTool.ExecutePromptGenerator: using default instruction", "error", err)
			prompt = defaultPromptGeneratorInstruction
		}
		pgt.systemPrompt = prompt
	}

	userPrompt := fmt.Sprintf("User Profile:\n%s\n\nGenerate a personalized habit prompt.", profile.ContextString())
	generated, err := pgt.genaiClient.GeneratePromptWithContext(ctx, pgt.systemPrompt, userPrompt)
	if err != nil {
		slog.Warn("PromptGeneratorTool.ExecutePromptGenerator: generation failed, using static fallback",
			"error", err, "participantID", participantID)
		return staticFallbackPrompt, nil
	}

	generated = strings.TrimSpace(generated)
	if generated == "" {
		return staticFallbackPrompt, nil
	}

	slog.Info("PromptGeneratorTool.ExecutePromptGenerator: prompt generated",
		"participantID", participantID, "length", len(generated))
	return generated, nil
}
