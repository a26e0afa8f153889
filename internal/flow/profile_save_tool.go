// Package flow provides profile save tool functionality shared across handler modules.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// ProfileSaveTool persists participant profile fields collected during
// conversation. Saves are field-level merges: omitted fields keep their
// previously stored values.
type ProfileSaveTool struct {
	store store.Store
}

// NewProfileSaveTool creates a new profile save tool instance.
func NewProfileSaveTool(st store.Store) *ProfileSaveTool {
	slog.Debug("ProfileSaveTool.NewProfileSaveTool: creating profile save tool", "hasStore", st != nil)
	return &ProfileSaveTool{store: st}
}

// GetToolDefinition returns the OpenAI tool definition for saving user profiles.
func (pst *ProfileSaveTool) GetToolDefinition() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        "save_user_profile",
			Description: openai.String("Save or update the user's habit profile. Only provide the fields you learned in this conversation; fields you omit keep their previously saved values."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"habit_domain": map[string]interface{}{
						"type":        "string",
						"description": "The habit area the user wants to work on (e.g. physical activity, hydration, mindfulness)",
					},
					"prompt_anchor": map[string]interface{}{
						"type":        "string",
						"description": "The existing routine or cue the habit prompt should attach to (e.g. morning coffee, phone buzz)",
					},
					"motivational_frame": map[string]interface{}{
						"type":        "string",
						"description": "What motivates the user (e.g. health, energy, appearance, family)",
					},
					"preferred_time": map[string]interface{}{
						"type":        "string",
						"description": "The user's preferred time of day for habit prompts (e.g. 09:00, mornings)",
					},
					"other_personalization": map[string]interface{}{
						"type":        "string",
						"description": "Any other personalization details worth remembering (barriers, tweaks, preferences)",
					},
				},
				"required": []string{},
			},
		},
	}
}

// ExecuteProfileSave merges the provided fields into the stored profile.
func (pst *ProfileSaveTool) ExecuteProfileSave(ctx context.Context, participantID string, args map[string]interface{}) (string, error) {
	slog.Debug("ProfileSaveTool.ExecuteProfileSave: executing profile save",
		"participantID", participantID, "args", args)

	if pst.store == nil {
		err := fmt.Errorf("store is required for profile saves")
		slog.Error("ProfileSaveTool.ExecuteProfileSave: missing store", "error", err)
		return "", err
	}

	var patch models.ProfilePatch
	var savedFields []string

	if v, ok := args["habit_domain"].(string); ok && v != "" {
		patch.HabitDomain = &v
		savedFields = append(savedFields, "habit domain")
	}
	if v, ok := args["prompt_anchor"].(string); ok && v != "" {
		patch.PromptAnchor = &v
		savedFields = append(savedFields, "prompt anchor")
	}
	if v, ok := args["motivational_frame"].(string); ok && v != "" {
		patch.MotivationalFrame = &v
		savedFields = append(savedFields, "motivational frame")
	}
	if v, ok := args["preferred_time"].(string); ok && v != "" {
		patch.PreferredTime = &v
		savedFields = append(savedFields, "preferred time")
	}
	if v, ok := args["other_personalization"].(string); ok && v != "" {
		patch.OtherPersonalization = &v
		savedFields = append(savedFields, "other personalization")
	}

	if patch.IsEmpty() {
		slog.Warn("ProfileSaveTool.ExecuteProfileSave: no recognized fields provided", "participantID", participantID)
		return "No profile fields provided; nothing was saved", nil
	}

	if err := pst.store.MergeUserProfile(ctx, participantID, patch); err != nil {
		slog.Error("ProfileSaveTool.ExecuteProfileSave: failed to merge profile",
			"error", err, "participantID", participantID)
		return "", fmt.Errorf("failed to save profile: %w", err)
	}

	slog.Info("ProfileSaveTool.ExecuteProfileSave: profile saved",
		"participantID", participantID, "fields", savedFields)

	return fmt.Sprintf("Profile saved (%s)", strings.Join(savedFields, ", ")), nil
}
