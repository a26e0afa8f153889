// Package flow provides the feedback module, the handler that collects the
// participant's reflections on habit attempts.
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

// defaultFeedbackInstruction is used when no instruction file is configured or readable.
const defaultFeedbackInstruction = "You are a feedback assistant for a habit-building program. " +
	"Ask the user how their habit attempt went. If they hit a barrier or want to tweak the habit, " +
	"record it with save_user_profile in other_personalization. " +
	"Keep the exchange short and encouraging, then use transition_state to COORDINATOR."

// FeedbackModule serves the FEEDBACK state. It records barriers and tweaks
// into the profile and hands back to the coordinator.
type FeedbackModule struct {
	store               store.Store
	genaiClient         genai.ClientInterface
	systemPromptFile    string
	systemPrompt        string
	historyLimit        int
	stateTransitionTool *StateTransitionTool
	profileSaveTool     *ProfileSaveTool
}

// NewFeedbackModule creates a new feedback module instance.
func NewFeedbackModule(st store.Store, genaiClient genai.ClientInterface, systemPromptFile string, historyLimit int, stateTransitionTool *StateTransitionTool, profileSaveTool *ProfileSaveTool) *FeedbackModule {
	slog.Debug("FeedbackModule.NewFeedbackModule: creating feedback module",
		"hasStore", st != nil,
		"hasGenAI", genaiClient != nil,
		"systemPromptFile", systemPromptFile,
		"historyLimit", historyLimit,
		"hasStateTransition", stateTransitionTool != nil,
		"hasProfileSave", profileSaveTool != nil)
	return &FeedbackModule{
		store:               st,
		genaiClient:         genaiClient,
		systemPromptFile:    systemPromptFile,
		historyLimit:        historyLimit,
		stateTransitionTool: stateTransitionTool,
		profileSaveTool:     profileSaveTool,
	}
}

// ProcessMessage handles one feedback turn.
func (fm *FeedbackModule) ProcessMessage(ctx context.Context, participantID, userMessage string) (string, error) {
	slog.Debug("FeedbackModule.ProcessMessage: processing message", "participantID", participantID)

	if fm.store == nil || fm.genaiClient == nil {
		return "", fmt.Errorf("feedback module not fully initialized")
	}

	if fm.systemPrompt == "" {
		prompt, err := loadPromptFile(fm.systemPromptFile)
		if err != nil {
			slog.Warn("FeedbackModule.ProcessMessage: using default instruction", "error", err)
			prompt = defaultFeedbackInstruction
		}
		fm.systemPrompt = prompt
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(fm.systemPrompt),
	}
	if pc := profileContext(ctx, fm.store, participantID); pc != "" {
		messages = append(messages, openai.SystemMessage(pc))
	}

	history, err := fm.store.GetConversationHistory(ctx, participantID)
	if err != nil {
		slog.Error("FeedbackModule.ProcessMessage: failed to load history", "error", err, "participantID", participantID)
		return "", fmt.Errorf("failed to load conversation history: %w", err)
	}
	bounded := history.Bounded(fm.historyLimit)
	messages = append(messages, historyToMessages(bounded)...)
	if len(bounded) == 0 || bounded[len(bounded)-1].Role != models.RoleUser || bounded[len(bounded)-1].Content != userMessage {
		messages = append(messages, openai.UserMessage(userMessage))
	}

	tools := []openai.ChatCompletionToolParam{}
	executors := map[string]toolExecutor{}
	if fm.stateTransitionTool != nil {
		tools = append(tools, fm.stateTransitionTool.GetToolDefinition())
		executors["transition_state"] = fm.stateTransitionTool.ExecuteStateTransition
	}
	if fm.profileSaveTool != nil {
		tools = append(tools, fm.profileSaveTool.GetToolDefinition())
		executors["save_user_profile"] = fm.profileSaveTool.ExecuteProfileSave
	}

	response, err := runToolLoop(ctx, "feedback", participantID, fm.genaiClient, messages, tools, executors)
	if err != nil {
		slog.Warn("FeedbackModule.ProcessMessage: generation failed, replying with apology",
			"error", err, "participantID", participantID)
		response = generationApology
	}

	if err := fm.store.AddMessage(ctx, participantID, models.RoleAssistant, response); err != nil {
		slog.Error("FeedbackModule.ProcessMessage: failed to record assistant message",
			"error", err, "participantID", participantID)
		return "", fmt.Errorf("failed to record assistant message: %w", err)
	}

	slog.Info("FeedbackModule.ProcessMessage: turn completed",
		"participantID", participantID, "responseLength", len(response))
	return response, nil
}
