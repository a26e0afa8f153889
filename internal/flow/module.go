// Package flow provides shared plumbing for the conversational handler modules.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
	"github.com/openai/openai-go"
)

// generationApology is the user-visible reply produced when the generation
// capability fails. State is left untouched in that case; the inbound
// message has already been recorded.
const generationApology = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// DefaultHistoryLimit bounds how many history messages are presented to the
// language model per turn. -1 means unlimited, 0 none, N the last N.
const DefaultHistoryLimit = 30

// loadPromptFile reads and trims an instruction text file.
func loadPromptFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("prompt file not configured")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %s: %w", path, err)
	}
	prompt := strings.TrimSpace(string(content))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %s is empty", path)
	}
	slog.Debug("loadPromptFile: prompt loaded", "file", path, "length", len(prompt))
	return prompt, nil
}

// historyToMessages converts persisted history into the chat message format.
// System-role rows are skipped; instruction context is rebuilt per turn.
func historyToMessages(msgs []models.ConversationMessage) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, msg := range msgs {
		switch msg.Role {
		case models.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		}
	}
	return out
}

// profileContext renders the participant's stored profile as a system message
// body. Lookup failures degrade to an empty context; the profile is advisory
// input, not a turn requirement.
func profileContext(ctx context.Context, st store.Store, participantID string) string {
	profile, err := st.GetUserProfile(ctx, participantID)
	if err != nil {
		slog.Warn("profileContext: profile lookup failed", "error", err, "participantID", participantID)
		return ""
	}
	if profile == nil {
		return ""
	}
	return "USER PROFILE:\n" + profile.ContextString()
}
