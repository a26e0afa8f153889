// Package flow provides the coordinator module, the general-purpose handler
// responsible for open conversation and routing to specialized modules.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PromptPipeAgent/internal/genai"
	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
	"github.com/openai/openai-go"
)

// defaultCoordinatorInstruction is used when no instruction file is configured or readable.
const defaultCoordinatorInstruction = "You are a helpful AI coordinator for habit building. " +
	"You can generate personalized habit prompts and route the conversation to specialized modules. " +
	"Use transition_state to move to INTAKE when the user's profile is missing or incomplete, " +
	"and to FEEDBACK when the user reports on a habit attempt."

// CoordinatorModule serves the COORDINATOR and CONVERSATION_ACTIVE states.
// It handles open conversation and decides when to hand off to the intake
// or feedback modules via the state transition tool.
type CoordinatorModule struct {
	store               store.Store
	genaiClient         genai.ClientInterface
	systemPromptFile    string
	systemPrompt        string
	historyLimit        int
	stateTransitionTool *StateTransitionTool
	promptGeneratorTool *PromptGeneratorTool
}

// NewCoordinatorModule creates a new coordinator module instance.
func NewCoordinatorModule(st store.Store, genaiClient genai.ClientInterface, systemPromptFile string, historyLimit int, stateTransitionTool *StateTransitionTool, promptGeneratorTool *PromptGeneratorTool) *CoordinatorModule {
	slog.Debug("CoordinatorModule.NewCoordinatorModule: creating coordinator module",
		"hasStore", st != nil,
		"hasGenAI", genaiClient != nil,
		"systemPromptFile", systemPromptFile,
		"historyLimit", historyLimit,
		"hasStateTransition", stateTransitionTool != nil,
		"hasPromptGenerator", promptGeneratorTool != nil)
	return &CoordinatorModule{
		store:               st,
		genaiClient:         genaiClient,
		systemPromptFile:    systemPromptFile,
		historyLimit:        historyLimit,
		stateTransitionTool: stateTransitionTool,
		promptGeneratorTool: promptGeneratorTool,
	}
}

// ProcessMessage handles one coordinator turn. The inbound message has
// already been recorded by the router; this method appends its own reply
// as an assistant message before returning.
func (cm *CoordinatorModule) ProcessMessage(ctx context.Context, participantID, userMessage string) (string, error) {
	slog.Debug("CoordinatorModule.ProcessMessage: processing message", "participantID", participantID)

	if cm.store == nil || cm.genaiClient == nil {
		return "", fmt.Errorf("coordinator module not fully initialized")
	}

	if cm.systemPrompt == "" {
		prompt, err := loadPromptFile(cm.systemPromptFile)
		if err != nil {
			slog.Warn("CoordinatorModule.ProcessMessage: using default instruction", "error", err)
			prompt = defaultCoordinatorInstruction
		}
		cm.systemPrompt = prompt
	}

	messages, err := cm.buildMessages(ctx, participantID, userMessage)
	if err != nil {
		return "", err
	}

	tools := []openai.ChatCompletionToolParam{}
	executors := map[string]toolExecutor{}
	if cm.stateTransitionTool != nil {
		tools = append(tools, cm.stateTransitionTool.GetToolDefinition())
		executors["transition_state"] = cm.stateTransitionTool.ExecuteStateTransition
	}
	if cm.promptGeneratorTool != nil {
		tools = append(tools, cm.promptGeneratorTool.GetToolDefinition())
		executors["generate_habit_prompt"] = cm.promptGeneratorTool.ExecutePromptGenerator
	}

	response, err := runToolLoop(ctx, "coordinator", participantID, cm.genaiClient, messages, tools, executors)
	if err != nil {
		slog.Warn("CoordinatorModule.ProcessMessage: generation failed, replying with apology",
			"error", err, "participantID", participantID)
		response = generationApology
	}

	if err := cm.store.AddMessage(ctx, participantID, models.RoleAssistant, response); err != nil {
		slog.Error("CoordinatorModule.ProcessMessage: failed to record assistant message",
			"error", err, "participantID", participantID)
		return "", fmt.Errorf("failed to record assistant message: %w", err)
	}

	slog.Info("CoordinatorModule.ProcessMessage: turn completed",
		"participantID", participantID, "responseLength", len(response))
	return response, nil
}

// buildMessages assembles instruction, profile status, and bounded history
// for the language model.
func (cm *CoordinatorModule) buildMessages(ctx context.Context, participantID, userMessage string) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(cm.systemPrompt),
	}

	if status := cm.profileStatus(ctx, participantID); status != "" {
		messages = append(messages, openai.SystemMessage(status))
	}

	history, err := cm.store.GetConversationHistory(ctx, participantID)
	if err != nil {
		slog.Error("CoordinatorModule.buildMessages: failed to load history", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	bounded := history.Bounded(cm.historyLimit)
	messages = append(messages, historyToMessages(bounded)...)

	// The bounded view may have dropped the current inbound message.
	if len(bounded) == 0 || bounded[len(bounded)-1].Role != models.RoleUser || bounded[len(bounded)-1].Content != userMessage {
		messages = append(messages, openai.UserMessage(userMessage))
	}

	return messages, nil
}

// profileStatus summarizes profile completeness so the model knows when to
// hand off to intake instead of asking intake questions itself.
func (cm *CoordinatorModule) profileStatus(ctx context.Context, participantID string) string {
	profile, err := cm.store.GetUserProfile(ctx, participantID)
	if err != nil {
		slog.Warn("CoordinatorModule.profileStatus: profile lookup failed", "error", err, "participantID", participantID)
		return ""
	}
	if profile == nil {
		return "PROFILE STATUS: User has no profile. Use transition_state to INTAKE to collect their information. DO NOT ask intake questions yourself."
	}

	var missing []string
	if profile.HabitDomain == "" {
		missing = append(missing, "habit domain")
	}
	if profile.MotivationalFrame == "" {
		missing = append(missing, "motivation")
	}
	if profile.PreferredTime == "" {
		missing = append(missing, "preferred time")
	}
	if profile.PromptAnchor == "" {
		missing = append(missing, "habit anchor")
	}

	if len(missing) > 0 {
		return fmt.Sprintf("PROFILE STATUS: User profile is incomplete, missing: %s. Use transition_state to INTAKE to complete their profile. DO NOT ask intake questions yourself.", strings.Join(missing, ", "))
	}
	return "PROFILE STATUS: User profile is complete. You can generate_habit_prompt for this user."
}
