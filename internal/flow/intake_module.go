// Package flow provides the intake module, the handler that builds the
// participant's personalization profile through conversation.
package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PromptPipeAgent/internal/genai"
	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
	"github.com/openai/openai-go"
)

// defaultIntakeInstruction is used when no instruction file is configured or readable.
const defaultIntakeInstruction = "You are an intake assistant for a habit-building program. " +
	"Ask the user about their habit goals one question at a time and save what you learn with save_user_profile. " +
	"Collect: habit domain, motivational frame, preferred time, and prompt anchor. " +
	"Only ask about fields that are still missing from the profile. " +
	"When the profile is complete, offer to schedule a daily prompt with schedule_daily_prompt, " +
	"optionally generate a first prompt with generate_habit_prompt, and use transition_state to COORDINATOR."

// IntakeModule serves the INTAKE state. It collects profile fields
// incrementally and hands back to the coordinator when done.
type IntakeModule struct {
	store               store.Store
	genaiClient         genai.ClientInterface
	systemPromptFile    string
	systemPrompt        string
	historyLimit        int
	stateTransitionTool *StateTransitionTool
	profileSaveTool     *ProfileSaveTool
	schedulerTool       *SchedulerTool
	promptGeneratorTool *PromptGeneratorTool
}

// NewIntakeModule creates a new intake module instance.
func NewIntakeModule(st store.Store, genaiClient genai.ClientInterface, systemPromptFile string, historyLimit int, stateTransitionTool *StateTransitionTool, profileSaveTool *ProfileSaveTool, schedulerTool *SchedulerTool, promptGeneratorTool *PromptGeneratorTool) *IntakeModule {
	slog.Debug("IntakeModule.NewIntakeModule: creating intake module",
		"hasStore", st != nil,
		"hasGenAI", genaiClient != nil,
		"systemPromptFile", systemPromptFile,
		"historyLimit", historyLimit,
		"hasStateTransition", stateTransitionTool != nil,
		"hasProfileSave", profileSaveTool != nil,
		"hasScheduler", schedulerTool != nil,
		"hasPromptGenerator", promptGeneratorTool != nil)
	return &IntakeModule{
		store:               st,
		genaiClient:         genaiClient,
		systemPromptFile:    systemPromptFile,
		historyLimit:        historyLimit,
		stateTransitionTool: stateTransitionTool,
		profileSaveTool:     profileSaveTool,
		schedulerTool:       schedulerTool,
		promptGeneratorTool: promptGeneratorTool,
	}
}

// ProcessMessage handles one intake turn.
func (im *IntakeModule) ProcessMessage(ctx context.Context, participantID, userMessage string) (string, error) {
	slog.Debug("IntakeModule.ProcessMessage: processing message", "participantID", participantID)

	if im.store == nil || im.genaiClient == nil {
		return "", fmt.Errorf("intake module not fully initialized")
	}

	if im.systemPrompt == "" {
		prompt, err := loadPromptFile(im.systemPromptFile)
		if err != nil {
			slog.Warn("IntakeModule.ProcessMessage: using default instruction", "error", err)
			prompt = defaultIntakeInstruction
		}
		im.systemPrompt = prompt
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(im.systemPrompt),
	}
	if pc := profileContext(ctx, im.store, participantID); pc != "" {
		messages = append(messages, openai.SystemMessage(pc))
	}

	history, err := im.store.GetConversationHistory(ctx, participantID)
	if err != nil {
		slog.Error("IntakeModule.ProcessMessage: failed to load history", "error", err, "participantID", participantID)
		return "", fmt.Errorf("failed to load conversation history: %w", err)
	}
	bounded := history.Bounded(im.historyLimit)
	messages = append(messages, historyToMessages(bounded)...)
	if len(bounded) == 0 || bounded[len(bounded)-1].Role != models.RoleUser || bounded[len(bounded)-1].Content != userMessage {
		messages = append(messages, openai.UserMessage(userMessage))
	}

	tools := []openai.ChatCompletionToolParam{}
	executors := map[string]toolExecutor{}
	if im.stateTransitionTool != nil {
		tools = append(tools, im.stateTransitionTool.GetToolDefinition())
		executors["transition_state"] = im.stateTransitionTool.ExecuteStateTransition
	}
	if im.profileSaveTool != nil {
		tools = append(tools, im.profileSaveTool.GetToolDefinition())
		executors["save_user_profile"] = im.profileSaveTool.ExecuteProfileSave
	}
	if im.schedulerTool != nil {
		tools = append(tools, im.schedulerTool.GetToolDefinition())
		executors["schedule_daily_prompt"] = im.schedulerTool.ExecuteScheduler
	}
	if im.promptGeneratorTool != nil {
		tools = append(tools, im.promptGeneratorTool.GetToolDefinition())
		executors["generate_habit_prompt"] = im.promptGeneratorTool.ExecutePromptGenerator
	}

	response, err := runToolLoop(ctx, "intake", participantID, im.genaiClient, messages, tools, executors)
	if err != nil {
		slog.Warn("IntakeModule.ProcessMessage: generation failed, replying with apology",
			"error", err, "participantID", participantID)
		response = generationApology
	}

	if err := im.store.AddMessage(ctx, participantID, models.RoleAssistant, response); err != nil {
		slog.Error("IntakeModule.ProcessMessage: failed to record assistant message",
			"error", err, "participantID", participantID)
		return "", fmt.Errorf("failed to record assistant message: %w", err)
	}

	slog.Info("IntakeModule.ProcessMessage: turn completed",
		"participantID", participantID, "responseLength", len(response))
	return response, nil
}
